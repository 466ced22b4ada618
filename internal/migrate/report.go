package migrate

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/jihub/internal/github"
)

// Stats counts what a run did.
type Stats struct {
	Fetched        int `yaml:"fetched" json:"fetched"`
	Excluded       int `yaml:"excluded" json:"excluded"`
	Converted      int `yaml:"converted" json:"converted"`
	Created        int `yaml:"created" json:"created"`
	Failed         int `yaml:"failed" json:"failed"`
	AssetsUploaded int `yaml:"assets_uploaded" json:"assets_uploaded"`
	AssetsReused   int `yaml:"assets_reused" json:"assets_reused"`
	AssetsSkipped  int `yaml:"assets_skipped" json:"assets_skipped"`
	Mutations      int `yaml:"mutations" json:"mutations"`
	Cooldowns      int `yaml:"cooldowns" json:"cooldowns"`
}

// Exclusion is a Jira issue skipped because GitHub already has it.
type Exclusion struct {
	Key    string `yaml:"key" json:"key"`
	Number int    `yaml:"number" json:"number"`
}

// CreatedIssue is a GitHub issue created by the run.
type CreatedIssue struct {
	Key    string `yaml:"key" json:"key"`
	Number int    `yaml:"number" json:"number"`
	URL    string `yaml:"url,omitempty" json:"url,omitempty"`
}

// Failure is a Jira issue that could not be migrated.
type Failure struct {
	Key   string `yaml:"key" json:"key"`
	Stage string `yaml:"stage" json:"stage"`
	Error string `yaml:"error" json:"error"`
}

// Report is the outcome of a run.
type Report struct {
	RunID      string         `yaml:"run_id" json:"run_id"`
	StartedAt  time.Time      `yaml:"started_at" json:"started_at"`
	FinishedAt time.Time      `yaml:"finished_at" json:"finished_at"`
	DryRun     bool           `yaml:"dry_run" json:"dry_run"`
	Stats      Stats          `yaml:"stats" json:"stats"`
	Excluded   []Exclusion    `yaml:"excluded,omitempty" json:"excluded,omitempty"`
	Created    []CreatedIssue `yaml:"created,omitempty" json:"created,omitempty"`
	Failures   []Failure      `yaml:"failures,omitempty" json:"failures,omitempty"`
	Warnings   []string       `yaml:"warnings,omitempty" json:"warnings,omitempty"`
}

func (r *Report) exclude(key string, number int) {
	r.Excluded = append(r.Excluded, Exclusion{Key: key, Number: number})
	r.Stats.Excluded++
}

func (r *Report) created(key string, issue *github.Issue) {
	r.Created = append(r.Created, CreatedIssue{Key: key, Number: issue.Number, URL: issue.HTMLURL})
	r.Stats.Created++
}

func (r *Report) fail(key, stage string, err error) {
	r.Failures = append(r.Failures, Failure{Key: key, Stage: stage, Error: err.Error()})
	r.Stats.Failed++
}

func (r *Report) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// WriteYAML encodes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// Save writes the report to path.
func (r *Report) Save(path string) error {
	f, err := os.Create(path) // #nosec G304 -- path comes from the --report flag
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := r.WriteYAML(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
