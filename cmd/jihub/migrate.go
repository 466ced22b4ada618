package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/jihub/internal/github"
	"github.com/steveyegge/jihub/internal/jira"
	"github.com/steveyegge/jihub/internal/logging"
	"github.com/steveyegge/jihub/internal/migrate"
	"github.com/steveyegge/jihub/internal/telemetry"
	"github.com/steveyegge/jihub/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the issues matched by a JQL query",
	Long: `Fetch every Jira issue matched by the configured JQL, skip those already in
GitHub, and create the rest with their labels, milestone, comments and
attachments. Children and related issues are linked afterwards.

Writes are sent in batches (--batch-size) separated by a cooldown (--cooldown)
to stay below GitHub's secondary rate limits.`,
	Example: `  jihub migrate --jql 'project = ABC' --owner acme --repo widgets
  jihub migrate --dry-run --report run.yaml`,
	RunE: runMigrate,
}

func init() {
	f := migrateCmd.Flags()
	f.String("jql", "", "JQL selecting the issues to migrate")
	f.String("owner", "", "GitHub repository owner")
	f.String("repo", "", "GitHub repository name")
	f.Bool("export", false, "upload attachments to GitHub instead of linking to Jira")
	f.String("import-path", "", "repository path attachments are uploaded under")
	f.String("additional-label", "", "label added to every created issue")
	f.Int("project-number", 0, "Projects (v2) board number to place issues on")
	f.Int("batch-size", 0, "writes sent between cooldowns")
	f.Duration("cooldown", 0, "pause between write batches")
	f.Bool("dry-run", false, "read and convert but write nothing")
	f.String("report", "", "write a YAML run report to this file")

	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if err := telemetry.Init(ctx, cfg.TelemetryOptions(Version)); err != nil {
		logger.Warnw("telemetry disabled", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("failed to flush telemetry", "error", err)
		}
	}()

	source := jira.NewClient(cfg.Jira.URL, cfg.Jira.User, cfg.Jira.Token)
	source.MaxResults = cfg.Jira.MaxResults
	source.Concurrency = cfg.Jira.Concurrency
	source.Logger = logger

	gh := github.NewClient(cfg.GitHub.Token, cfg.Migrate.Owner, cfg.Migrate.Repo).WithBaseURL(cfg.GitHub.APIURL)

	orch := migrate.NewOrchestrator(migrate.WrapDestination(gh), source, cfg.Options(), logger, nil)
	orch.Uploads = migrate.WrapDestination(gh.ForRepo(orch.Options.ImportOwner, orch.Options.UploadRepo))
	orch.ForRepo = func(owner, repo string) migrate.Destination {
		return migrate.WrapDestination(gh.ForRepo(owner, repo))
	}

	report, runErr := migrate.NewPipeline(source, orch).Run(ctx)

	if path, _ := cmd.Flags().GetString("report"); path != "" {
		if err := report.Save(path); err != nil {
			logger.Errorw("failed to write report", "path", path, "error", err)
		}
	}
	if err := ui.WriteSummary(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("migration aborted: %w", runErr)
	}
	return nil
}
