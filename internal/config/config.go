// Package config loads jihub settings from defaults, a YAML config file,
// a .env file, JIHUB_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/steveyegge/jihub/internal/github"
	"github.com/steveyegge/jihub/internal/jira"
	"github.com/steveyegge/jihub/internal/migrate"
	"github.com/steveyegge/jihub/internal/telemetry"
)

// EnvPrefix prefixes every environment variable, e.g. JIHUB_MIGRATE_REPO.
const EnvPrefix = "JIHUB"

// Config is the complete run configuration.
type Config struct {
	Jira      JiraConfig      `mapstructure:"jira" yaml:"jira"`
	GitHub    GitHubConfig    `mapstructure:"github" yaml:"github"`
	Migrate   MigrateConfig   `mapstructure:"migrate" yaml:"migrate"`
	Parser    ParserConfig    `mapstructure:"parser" yaml:"parser"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// JiraConfig is the source side.
type JiraConfig struct {
	URL         string `mapstructure:"url" yaml:"url" validate:"required,url"`
	User        string `mapstructure:"user" yaml:"user"`
	Token       string `mapstructure:"token" yaml:"token" validate:"required"`
	MaxResults  int    `mapstructure:"max-results" yaml:"max-results" validate:"min=1,max=100"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency" validate:"min=1,max=64"`
}

// GitHubConfig is the destination side.
type GitHubConfig struct {
	Token  string `mapstructure:"token" yaml:"token" validate:"required"`
	APIURL string `mapstructure:"api-url" yaml:"api-url" validate:"required,url"`
	Host   string `mapstructure:"host" yaml:"host" validate:"required,hostname"`
}

// MigrateConfig controls what is migrated and how writes are paced.
type MigrateConfig struct {
	Owner           string        `mapstructure:"owner" yaml:"owner" validate:"required"`
	Repo            string        `mapstructure:"repo" yaml:"repo" validate:"required"`
	JQL             string        `mapstructure:"jql" yaml:"jql" validate:"required"`
	Export          bool          `mapstructure:"export" yaml:"export"`
	ImportOwner     string        `mapstructure:"import-owner" yaml:"import-owner"`
	UploadRepo      string        `mapstructure:"upload-repo" yaml:"upload-repo"`
	ImportPath      string        `mapstructure:"import-path" yaml:"import-path" validate:"required_if=Export true"`
	Branch          string        `mapstructure:"branch" yaml:"branch"`
	Link            bool          `mapstructure:"link" yaml:"link"`
	LinkPRs         bool          `mapstructure:"link-prs" yaml:"link-prs"`
	LinkChildren    bool          `mapstructure:"link-children" yaml:"link-children"`
	LinkRelated     bool          `mapstructure:"link-related" yaml:"link-related"`
	AdditionalLabel string        `mapstructure:"additional-label" yaml:"additional-label"`
	ProjectOwner    string        `mapstructure:"project-owner" yaml:"project-owner"`
	ProjectNumber   int           `mapstructure:"project-number" yaml:"project-number" validate:"min=0"`
	BatchSize       int           `mapstructure:"batch-size" yaml:"batch-size" validate:"min=1"`
	Cooldown        time.Duration `mapstructure:"cooldown" yaml:"cooldown" validate:"min=0"`
	DryRun          bool          `mapstructure:"dry-run" yaml:"dry-run"`
}

// ParserConfig shapes converted issues.
type ParserConfig struct {
	DescriptionTemplate string              `mapstructure:"description-template" yaml:"description-template"`
	StateMapping        map[string][]string `mapstructure:"state-mapping" yaml:"state-mapping" validate:"dive,keys,oneof=open closed,endkeys"`
	UserMappings        map[string]string   `mapstructure:"user-mappings" yaml:"user-mappings"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// TelemetryConfig selects the OpenTelemetry exporters.
type TelemetryConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Stdout          bool          `mapstructure:"stdout" yaml:"stdout"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint" validate:"omitempty,hostname_port"`
	MetricsEndpoint string        `mapstructure:"metrics-endpoint" yaml:"metrics-endpoint" validate:"omitempty,hostname_port"`
	Insecure        bool          `mapstructure:"insecure" yaml:"insecure"`
	SampleRatio     float64       `mapstructure:"sample-ratio" yaml:"sample-ratio" validate:"min=0,max=1"`
	MetricInterval  time.Duration `mapstructure:"metric-interval" yaml:"metric-interval" validate:"omitempty,min=1s"`
}

// envAliases are the conventional variable names accepted besides JIHUB_*.
var envAliases = map[string][]string{
	"jira.url":     {"JIRA_URL"},
	"jira.user":    {"JIRA_USER", "JIRA_EMAIL"},
	"jira.token":   {"JIRA_TOKEN", "JIRA_API_TOKEN"},
	"github.token": {"GITHUB_TOKEN", "GH_TOKEN"},

	"telemetry.enabled":          {"JIHUB_OTEL_ENABLED"},
	"telemetry.stdout":           {"JIHUB_OTEL_STDOUT"},
	"telemetry.endpoint":         {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	"telemetry.metrics-endpoint": {"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("jira.url", "")
	v.SetDefault("jira.user", "")
	v.SetDefault("jira.token", "")
	v.SetDefault("jira.max-results", jira.DefaultMaxResults)
	v.SetDefault("jira.concurrency", jira.DefaultConcurrency)

	v.SetDefault("github.token", "")
	v.SetDefault("github.api-url", github.DefaultAPIEndpoint)
	v.SetDefault("github.host", migrate.DefaultHost)

	v.SetDefault("migrate.owner", "")
	v.SetDefault("migrate.repo", "")
	v.SetDefault("migrate.jql", "")
	v.SetDefault("migrate.export", false)
	v.SetDefault("migrate.import-owner", "")
	v.SetDefault("migrate.upload-repo", "")
	v.SetDefault("migrate.import-path", migrate.DefaultImport)
	v.SetDefault("migrate.branch", github.DefaultBranch)
	v.SetDefault("migrate.link", true)
	v.SetDefault("migrate.link-prs", true)
	v.SetDefault("migrate.link-children", true)
	v.SetDefault("migrate.link-related", true)
	v.SetDefault("migrate.additional-label", "")
	v.SetDefault("migrate.project-owner", "")
	v.SetDefault("migrate.project-number", 0)
	v.SetDefault("migrate.batch-size", migrate.DefaultBatchSize)
	v.SetDefault("migrate.cooldown", migrate.DefaultCooldown)
	v.SetDefault("migrate.dry-run", false)

	v.SetDefault("parser.description-template", migrate.DefaultDescriptionTemplate)
	v.SetDefault("parser.state-mapping", map[string][]string{
		"open":   {"To Do", "Open", "In Progress", "Reopened"},
		"closed": {"Done", "Closed", "Resolved"},
	})
	v.SetDefault("parser.user-mappings", map[string]string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.stdout", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.metrics-endpoint", "")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample-ratio", 1.0)
	v.SetDefault("telemetry.metric-interval", telemetry.DefaultMetricInterval)
}

// LoadOptions locates the inputs of Load.
type LoadOptions struct {
	// ConfigFile is an explicit config path. When empty, jihub.yaml is
	// searched in the working directory and in $HOME/.config/jihub.
	ConfigFile string
	// EnvFile is loaded into the environment first. Missing files are ignored.
	EnvFile string
	// Flags are bound by name: a flag named like a key's last segment
	// (e.g. "repo" for migrate.repo) overrides it when set.
	Flags *pflag.FlagSet
}

// Load reads the configuration without validating it.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("jihub")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "jihub"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
		if err := v.BindEnv(append([]string{key, envKey}, aliases...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Jira.URL = strings.TrimRight(cfg.Jira.URL, "/")
	return &cfg, nil
}

// bindFlags binds every flag whose name matches the last segment of a
// known key.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, key := range v.AllKeys() {
		name := key
		if i := strings.LastIndex(key, "."); i >= 0 {
			name = key[i+1:]
		}
		if prefixed := fs.Lookup(strings.ReplaceAll(key, ".", "-")); prefixed != nil {
			if err := v.BindPFlag(key, prefixed); err != nil {
				return fmt.Errorf("failed to bind flag %s: %w", prefixed.Name, err)
			}
			continue
		}
		if f := fs.Lookup(name); f != nil && strings.HasPrefix(key, "migrate.") {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration and reports every invalid field.
func (c *Config) Validate() error {
	var msgs []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %w", err)
		}
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
		}
	}
	msgs = append(msgs, overlappingStatuses(c.Parser.StateMapping)...)
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// overlappingStatuses reports Jira statuses mapped to more than one state.
// Names compare case-insensitively.
func overlappingStatuses(mapping map[string][]string) []string {
	states := make([]string, 0, len(mapping))
	for state := range mapping {
		states = append(states, state)
	}
	sort.Strings(states)

	owner := make(map[string]string)
	var msgs []string
	for _, state := range states {
		for _, name := range mapping[state] {
			key := strings.ToLower(strings.TrimSpace(name))
			if prev, ok := owner[key]; ok && prev != state {
				msgs = append(msgs, fmt.Sprintf("Config.Parser.StateMapping: status %q is mapped to both %s and %s", name, prev, state))
				continue
			}
			owner[key] = state
		}
	}
	return msgs
}

// Options converts the configuration into migration options.
func (c *Config) Options() migrate.Options {
	m := c.Migrate
	return migrate.Options{
		JiraURL:             c.Jira.URL,
		JQL:                 m.JQL,
		Owner:               m.Owner,
		Repo:                m.Repo,
		Export:              m.Export,
		ImportOwner:         m.ImportOwner,
		UploadRepo:          m.UploadRepo,
		ImportPath:          m.ImportPath,
		Branch:              m.Branch,
		Link:                m.Link,
		LinkPRs:             m.LinkPRs,
		LinkChildren:        m.LinkChildren,
		LinkRelated:         m.LinkRelated,
		AdditionalLabel:     m.AdditionalLabel,
		ProjectOwner:        m.ProjectOwner,
		ProjectNumber:       m.ProjectNumber,
		BatchSize:           m.BatchSize,
		Cooldown:            m.Cooldown,
		DryRun:              m.DryRun,
		DescriptionTemplate: c.Parser.DescriptionTemplate,
		StateMapping:        c.Parser.StateMapping,
		UserMappings:        c.Parser.UserMappings,
		GitHubHost:          c.GitHub.Host,
	}
}

// TelemetryOptions converts the telemetry section for telemetry.Init.
func (c *Config) TelemetryOptions(version string) telemetry.Config {
	t := c.Telemetry
	return telemetry.Config{
		Enabled:         t.Enabled,
		Stdout:          t.Stdout,
		Endpoint:        t.Endpoint,
		MetricsEndpoint: t.MetricsEndpoint,
		Insecure:        t.Insecure,
		SampleRatio:     t.SampleRatio,
		MetricInterval:  t.MetricInterval,
		ServiceName:     "jihub",
		Version:         version,
	}
}

// Masked returns a copy safe to print: tokens are reduced to their last
// four characters.
func (c *Config) Masked() Config {
	out := *c
	out.Jira.Token = mask(c.Jira.Token)
	out.GitHub.Token = mask(c.GitHub.Token)
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
