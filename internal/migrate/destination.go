package migrate

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/jihub/internal/github"
	"github.com/steveyegge/jihub/internal/jira"
	"github.com/steveyegge/jihub/internal/telemetry"
)

// Source is the read side of a run. *jira.Client satisfies it.
type Source interface {
	SearchIssues(ctx context.Context, jql string) ([]jira.Issue, error)
	DownloadAttachment(ctx context.Context, att jira.Attachment) (*jira.Download, error)
	DevStatusMisses() int64
}

// Destination is the GitHub surface the orchestrator writes to.
// *github.Client satisfies it.
type Destination interface {
	ListIssues(ctx context.Context) ([]github.Issue, error)
	ListLabels(ctx context.Context) ([]github.Label, error)
	ListMilestones(ctx context.Context) ([]github.Milestone, error)
	ListContents(ctx context.Context, path, branch string) ([]github.Content, error)
	Committer(ctx context.Context) (*github.Committer, error)

	CreateIssue(ctx context.Context, req github.IssueRequest) (*github.Issue, error)
	UpdateIssue(ctx context.Context, number int, update github.IssueUpdate) (*github.Issue, error)
	CreateComment(ctx context.Context, number int, body string) error
	CreateLabel(ctx context.Context, label github.Label) (*github.Label, error)
	CreateMilestone(ctx context.Context, title string) (*github.Milestone, error)
	PutContent(ctx context.Context, path, branch string, data []byte, committer *github.Committer) (*github.Content, error)

	FetchProject(ctx context.Context, owner string, number int) (*github.Project, error)
	AddProjectItem(ctx context.Context, projectID, contentID string) (string, error)
	SetProjectOption(ctx context.Context, projectID, itemID, fieldID, optionID string) error
}

const destinationScopeName = "github.com/steveyegge/jihub/destination"

// instrumentedDestination wraps a Destination with a client span and
// jihub.github.* metrics per call.
type instrumentedDestination struct {
	inner  Destination
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapDestination returns d decorated with OTel instrumentation. When
// telemetry is disabled d is returned as-is.
func WrapDestination(d Destination) Destination {
	if !telemetry.Enabled() {
		return d
	}
	m := telemetry.Meter(destinationScopeName)
	ops, _ := m.Int64Counter("jihub.github.calls",
		metric.WithDescription("GitHub API calls made"),
	)
	dur, _ := m.Float64Histogram("jihub.github.call.duration",
		metric.WithDescription("GitHub API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("jihub.github.errors",
		metric.WithDescription("GitHub API calls that failed"),
	)
	return &instrumentedDestination{
		inner:  d,
		tracer: telemetry.Tracer(destinationScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

func (d *instrumentedDestination) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("github.operation", name)}, attrs...)
	ctx, span := d.tracer.Start(ctx, "github."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	d.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

func (d *instrumentedDestination) done(ctx context.Context, span trace.Span, start time.Time, err error) {
	d.dur.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.errs.Add(ctx, 1)
	}
	span.End()
}

func (d *instrumentedDestination) ListIssues(ctx context.Context) ([]github.Issue, error) {
	ctx, span, t := d.op(ctx, "ListIssues")
	issues, err := d.inner.ListIssues(ctx)
	span.SetAttributes(attribute.Int("github.issue.count", len(issues)))
	d.done(ctx, span, t, err)
	return issues, err
}

func (d *instrumentedDestination) ListLabels(ctx context.Context) ([]github.Label, error) {
	ctx, span, t := d.op(ctx, "ListLabels")
	labels, err := d.inner.ListLabels(ctx)
	d.done(ctx, span, t, err)
	return labels, err
}

func (d *instrumentedDestination) ListMilestones(ctx context.Context) ([]github.Milestone, error) {
	ctx, span, t := d.op(ctx, "ListMilestones")
	milestones, err := d.inner.ListMilestones(ctx)
	d.done(ctx, span, t, err)
	return milestones, err
}

func (d *instrumentedDestination) ListContents(ctx context.Context, path, branch string) ([]github.Content, error) {
	ctx, span, t := d.op(ctx, "ListContents", attribute.String("github.path", path))
	files, err := d.inner.ListContents(ctx, path, branch)
	d.done(ctx, span, t, err)
	return files, err
}

func (d *instrumentedDestination) Committer(ctx context.Context) (*github.Committer, error) {
	ctx, span, t := d.op(ctx, "Committer")
	c, err := d.inner.Committer(ctx)
	d.done(ctx, span, t, err)
	return c, err
}

func (d *instrumentedDestination) CreateIssue(ctx context.Context, req github.IssueRequest) (*github.Issue, error) {
	ctx, span, t := d.op(ctx, "CreateIssue", attribute.Int("github.assignee.count", len(req.Assignees)))
	issue, err := d.inner.CreateIssue(ctx, req)
	d.done(ctx, span, t, err)
	return issue, err
}

func (d *instrumentedDestination) UpdateIssue(ctx context.Context, number int, update github.IssueUpdate) (*github.Issue, error) {
	ctx, span, t := d.op(ctx, "UpdateIssue", attribute.Int("github.issue.number", number))
	issue, err := d.inner.UpdateIssue(ctx, number, update)
	d.done(ctx, span, t, err)
	return issue, err
}

func (d *instrumentedDestination) CreateComment(ctx context.Context, number int, body string) error {
	ctx, span, t := d.op(ctx, "CreateComment", attribute.Int("github.issue.number", number))
	err := d.inner.CreateComment(ctx, number, body)
	d.done(ctx, span, t, err)
	return err
}

func (d *instrumentedDestination) CreateLabel(ctx context.Context, label github.Label) (*github.Label, error) {
	ctx, span, t := d.op(ctx, "CreateLabel", attribute.String("github.label", label.Name))
	created, err := d.inner.CreateLabel(ctx, label)
	d.done(ctx, span, t, err)
	return created, err
}

func (d *instrumentedDestination) CreateMilestone(ctx context.Context, title string) (*github.Milestone, error) {
	ctx, span, t := d.op(ctx, "CreateMilestone", attribute.String("github.milestone", title))
	m, err := d.inner.CreateMilestone(ctx, title)
	d.done(ctx, span, t, err)
	return m, err
}

func (d *instrumentedDestination) PutContent(ctx context.Context, path, branch string, data []byte, committer *github.Committer) (*github.Content, error) {
	ctx, span, t := d.op(ctx, "PutContent",
		attribute.String("github.path", path),
		attribute.Int("github.content.bytes", len(data)),
	)
	c, err := d.inner.PutContent(ctx, path, branch, data, committer)
	d.done(ctx, span, t, err)
	return c, err
}

func (d *instrumentedDestination) FetchProject(ctx context.Context, owner string, number int) (*github.Project, error) {
	ctx, span, t := d.op(ctx, "FetchProject", attribute.String("github.project.owner", owner))
	p, err := d.inner.FetchProject(ctx, owner, number)
	d.done(ctx, span, t, err)
	return p, err
}

func (d *instrumentedDestination) AddProjectItem(ctx context.Context, projectID, contentID string) (string, error) {
	ctx, span, t := d.op(ctx, "AddProjectItem")
	id, err := d.inner.AddProjectItem(ctx, projectID, contentID)
	d.done(ctx, span, t, err)
	return id, err
}

func (d *instrumentedDestination) SetProjectOption(ctx context.Context, projectID, itemID, fieldID, optionID string) error {
	ctx, span, t := d.op(ctx, "SetProjectOption")
	err := d.inner.SetProjectOption(ctx, projectID, itemID, fieldID, optionID)
	d.done(ctx, span, t, err)
	return err
}
