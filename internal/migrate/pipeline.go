package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/jihub/internal/jira"
	"github.com/steveyegge/jihub/internal/telemetry"
)

// Pipeline runs a whole migration: read everything, exclude what GitHub
// already has, convert, create, then wire relationships.
type Pipeline struct {
	Source       Source
	Orchestrator *Orchestrator
}

// NewPipeline creates a pipeline reading from source and writing through o.
func NewPipeline(source Source, o *Orchestrator) *Pipeline {
	return &Pipeline{Source: source, Orchestrator: o}
}

// Run executes the migration. The report is returned even when the run
// fails part way.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	o := p.Orchestrator
	opts := o.Options

	report := o.report
	report.RunID = uuid.NewString()
	report.StartedAt = time.Now().UTC()
	defer func() { report.FinishedAt = time.Now().UTC() }()

	tracer := telemetry.Tracer("")
	ctx, span := tracer.Start(ctx, "migrate.run", trace.WithAttributes(
		attribute.String("jihub.run_id", report.RunID),
		attribute.String("jihub.repo", opts.Owner+"/"+opts.Repo),
		attribute.Bool("jihub.dry_run", opts.DryRun),
	))
	defer span.End()

	err := p.run(ctx, tracer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return o.Report(), err
}

func (p *Pipeline) run(ctx context.Context, tracer trace.Tracer) error {
	o := p.Orchestrator
	opts := o.Options
	log := o.Logger
	report := o.report

	log.Infow("starting migration", "run", report.RunID, "jql", opts.JQL,
		"repo", opts.Owner+"/"+opts.Repo, "dry_run", opts.DryRun)

	// Read phase.
	readCtx, readSpan := tracer.Start(ctx, "migrate.read")
	issues, err := p.Source.SearchIssues(readCtx, opts.JQL)
	if err != nil {
		readSpan.End()
		return fmt.Errorf("fetch Jira issues: %w", err)
	}
	report.Stats.Fetched = len(issues)
	log.Infow("fetched Jira issues", "count", len(issues))

	if misses := p.Source.DevStatusMisses(); len(issues) > 0 && misses >= int64(len(issues)) {
		msg := "no pull request data was returned for any issue; check that the Jira GitHub integration is installed"
		log.Warnw(msg, "issues", len(issues))
		report.warn(msg)
	}

	if err := o.Load(readCtx); err != nil {
		readSpan.End()
		return fmt.Errorf("load GitHub state: %w", err)
	}
	readSpan.End()

	// Exclusion.
	remaining := make([]*jira.Issue, 0, len(issues))
	for i := range issues {
		issue := &issues[i]
		if existing := o.Existing(issue.Key); existing != nil {
			log.Infow(fmt.Sprintf("Excluding Jira Issue %s because it matches GitHub Issue #%d", issue.Key, existing.Number),
				"key", issue.Key, "number", existing.Number)
			report.exclude(issue.Key, existing.Number)
			continue
		}
		remaining = append(remaining, issue)
	}

	// Convert phase.
	convCtx, convSpan := tracer.Start(ctx, "migrate.convert",
		trace.WithAttributes(attribute.Int("jihub.issue.count", len(remaining))))
	converted := make([]*ConvertedIssue, 0, len(remaining))
	for _, issue := range remaining {
		ci, err := o.Convert(convCtx, issue)
		if err != nil {
			convSpan.End()
			return fmt.Errorf("convert %s: %w", issue.Key, err)
		}
		converted = append(converted, ci)
	}
	convSpan.End()

	// Write phase.
	writeCtx, writeSpan := tracer.Start(ctx, "migrate.write")
	defer writeSpan.End()
	for _, ci := range converted {
		if _, err := o.CreateIssue(writeCtx, ci); err != nil {
			return fmt.Errorf("create %s: %w", ci.Key, err)
		}
	}

	// Relationships are built from every fetched issue, excluded ones too,
	// so new children can hang off parents migrated earlier.
	if opts.LinkChildren {
		if err := o.LinkChildren(writeCtx, jira.BuildLinkGraph(issues, jira.RelationParentOf)); err != nil {
			return fmt.Errorf("link children: %w", err)
		}
	}
	if opts.LinkRelated {
		if err := o.LinkRelated(writeCtx, jira.BuildLinkGraph(issues, jira.RelationRelatesTo)); err != nil {
			return fmt.Errorf("link related issues: %w", err)
		}
	}

	log.Infow("migration finished", "run", report.RunID,
		"created", report.Stats.Created, "excluded", report.Stats.Excluded,
		"failed", report.Stats.Failed, "mutations", o.limiter.Count())
	return nil
}

// IsCritical reports whether err aborted the run because of a critical
// setup failure rather than cancellation or a read error.
func IsCritical(err error) bool {
	return errors.Is(err, ErrCritical)
}
