// Package migrate converts Jira issues into GitHub issues and drives the
// writes against GitHub.
//
// A run has three ordered phases. Everything is read first (Jira issues with
// their enrichment, the GitHub issues, labels, milestones and asset listing),
// then every remaining Jira issue is converted, then the issues are created
// one by one and finally wired together as children and related records.
// Issues whose title already carries the identity tag "(jira: KEY)" are
// excluded, so an interrupted run is resumed by running it again.
package migrate

import (
	"time"
)

// DefaultDescriptionTemplate is used when no template is configured.
const DefaultDescriptionTemplate = `{{Description}}

### Details

- **Jira:** {{JiraLink}}
- **Reporter:** {{Reporter}}
- **Components:** {{Components}}
- **Sprints:** {{Sprints}}
- **Fix versions:** {{FixVersions}}
- **Story points:** {{StoryPoints}}
- **Attachments:** {{Attachments}}
- **Pull requests:** {{PullRequests}}
`

// Defaults for the write side.
const (
	DefaultBatchSize = 50
	DefaultCooldown  = time.Minute
	DefaultHost      = "github.com"
	DefaultImport    = "jira-import"
)

// Options configures a migration run.
type Options struct {
	// JiraURL is the site base URL, used for browse links.
	JiraURL string
	// JQL selects the Jira issues to migrate.
	JQL string

	// Owner and Repo name the destination repository.
	Owner string
	Repo  string

	// Export turns on attachment transfer. When off, attachments keep
	// pointing at Jira.
	Export bool
	// ImportOwner, UploadRepo, ImportPath and Branch locate uploaded assets.
	ImportOwner string
	UploadRepo  string
	ImportPath  string
	Branch      string
	// Link renders attachments as links. When false they are embedded.
	Link bool

	LinkPRs      bool
	LinkChildren bool
	LinkRelated  bool

	// AdditionalLabel is put on every created issue when set.
	AdditionalLabel string

	// ProjectOwner and ProjectNumber identify the Projects (v2) board.
	// A zero number disables board placement.
	ProjectOwner  string
	ProjectNumber int

	// BatchSize mutations are sent before each Cooldown pause.
	BatchSize int
	Cooldown  time.Duration

	// DryRun reads and converts but writes nothing.
	DryRun bool

	DescriptionTemplate string
	// StateMapping maps "open"/"closed" to the Jira status names that mean it.
	StateMapping map[string][]string
	// UserMappings maps Jira display names to GitHub logins.
	UserMappings map[string]string
	// GitHubHost is the host accepted in pull request links.
	GitHubHost string
}

// withDefaults returns a copy with zero values filled in.
func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Cooldown < 0 {
		o.Cooldown = 0
	}
	if o.DescriptionTemplate == "" {
		o.DescriptionTemplate = DefaultDescriptionTemplate
	}
	if o.GitHubHost == "" {
		o.GitHubHost = DefaultHost
	}
	if o.ImportOwner == "" {
		o.ImportOwner = o.Owner
	}
	if o.UploadRepo == "" {
		o.UploadRepo = o.Repo
	}
	if o.ImportPath == "" {
		o.ImportPath = DefaultImport
	}
	if o.ProjectOwner == "" {
		o.ProjectOwner = o.Owner
	}
	return o
}
