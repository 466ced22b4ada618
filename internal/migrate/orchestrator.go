package migrate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/jihub/internal/github"
	"github.com/steveyegge/jihub/internal/logging"
	"github.com/steveyegge/jihub/internal/telemetry"
)

// Orchestrator owns every write against GitHub. Writes are sequential, and
// the caches and the mutation counter are only touched by the goroutine
// running the migration.
type Orchestrator struct {
	// Dest is the destination repository.
	Dest Destination
	// Uploads is the repository attachments are uploaded to.
	Uploads Destination
	// ForRepo returns a client for another repository, used to comment on
	// pull requests.
	ForRepo func(owner, repo string) Destination
	// Source downloads attachments.
	Source  Source
	Options Options
	Logger  logging.Logger

	limiter   *RateLimiter
	converted metric.Int64Counter

	existing   []github.Issue
	created    map[string]*github.Issue
	labels     map[string]github.Label
	milestones []github.Milestone
	assets     map[string]github.Content
	committer  *github.Committer
	board      boardCache

	report *Report
}

// NewOrchestrator creates an orchestrator writing to dest. Uploads and
// ForRepo default to dest; sleep may be nil.
func NewOrchestrator(dest Destination, source Source, opts Options, logger logging.Logger, sleep Sleeper) *Orchestrator {
	opts = opts.withDefaults()
	if logger == nil {
		logger = logging.Nop()
	}
	o := &Orchestrator{
		Dest:    dest,
		Uploads: dest,
		ForRepo: func(owner, repo string) Destination { return dest },
		Source:  source,
		Options: opts,
		Logger:  logger,
		limiter: NewRateLimiter(opts.BatchSize, opts.Cooldown, sleep),
		created: make(map[string]*github.Issue),
		labels:  make(map[string]github.Label),
		assets:  make(map[string]github.Content),
		report:  &Report{DryRun: opts.DryRun},
	}
	o.converted, _ = telemetry.Meter("").Int64Counter("jihub.records.converted",
		metric.WithDescription("Jira issues converted to GitHub issue requests"),
	)
	return o
}

// Report returns the run report accumulated so far.
func (o *Orchestrator) Report() *Report {
	o.report.Stats.Mutations = o.limiter.Count()
	o.report.Stats.Cooldowns = o.limiter.Cooldowns()
	return o.report
}

// readList applies the read policy: a 404 is an empty listing, any other
// failure is logged and also yields an empty listing.
func readList[T any](ctx context.Context, log logging.Logger, what string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	items, err := fetch(ctx)
	if err == nil {
		return items, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if github.IsNotFound(err) {
		log.Infow("nothing to list", "what", what)
	} else {
		log.Errorw("failed to list, continuing with none", "what", what, "error", err)
	}
	return nil, nil
}

// Load reads the destination state once: issues, labels, milestones and,
// in export mode, the assets already uploaded.
func (o *Orchestrator) Load(ctx context.Context) error {
	var err error
	if o.existing, err = readList(ctx, o.Logger, "issues", o.Dest.ListIssues); err != nil {
		return err
	}
	labels, err := readList(ctx, o.Logger, "labels", o.Dest.ListLabels)
	if err != nil {
		return err
	}
	for _, l := range labels {
		o.labels[strings.ToLower(l.Name)] = l
	}
	if o.milestones, err = readList(ctx, o.Logger, "milestones", o.Dest.ListMilestones); err != nil {
		return err
	}

	if o.Options.Export {
		files, err := readList(ctx, o.Logger, "assets", func(ctx context.Context) ([]github.Content, error) {
			return o.Uploads.ListContents(ctx, o.Options.ImportPath, o.Options.Branch)
		})
		if err != nil {
			return err
		}
		for _, f := range files {
			o.assets[strings.ToLower(f.Name)] = f
		}
	}

	o.Logger.Infow("loaded GitHub state",
		"issues", len(o.existing),
		"labels", len(o.labels),
		"milestones", len(o.milestones),
		"assets", len(o.assets))
	return nil
}

// Existing finds an issue that was migrated from key in an earlier run.
func (o *Orchestrator) Existing(key string) *github.Issue {
	tag := IdentityTag(key)
	for i := range o.existing {
		if strings.Contains(o.existing[i].Title, tag) {
			return &o.existing[i]
		}
	}
	return nil
}

// lookup finds the GitHub issue for key among created and existing issues.
func (o *Orchestrator) lookup(key string) *github.Issue {
	if issue, ok := o.created[key]; ok {
		return issue
	}
	return o.Existing(key)
}

// CreateIssue creates one converted issue and runs the follow-ups: comments,
// closing, board placement and pull request cross-posts. A rejected issue is
// logged and reported; only cancellation is returned as an error.
func (o *Orchestrator) CreateIssue(ctx context.Context, ci *ConvertedIssue) (*github.Issue, error) {
	if o.Options.DryRun {
		o.Logger.Infow("would create issue", "key", ci.Key, "title", ci.Request.Title,
			"labels", ci.Request.Labels, "comments", len(ci.Comments), "closed", ci.Closed)
		return nil, nil
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	issue, err := o.Dest.CreateIssue(ctx, ci.Request)
	if err != nil && github.IsAssigneeRejected(err) && len(ci.Request.Assignees) > 0 {
		o.Logger.Warnw("assignee rejected, retrying without assignee",
			"key", ci.Key, "assignees", ci.Request.Assignees)
		req := ci.Request
		req.Assignees = nil
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		issue, err = o.Dest.CreateIssue(ctx, req)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		o.Logger.Errorw("failed to create issue", "key", ci.Key, "error", err)
		o.report.fail(ci.Key, "create", err)
		return nil, nil
	}
	o.created[ci.Key] = issue
	o.report.created(ci.Key, issue)
	o.Logger.Infow("created issue", "key", ci.Key, "number", issue.Number)

	for _, body := range ci.Comments {
		if err := o.limiter.Wait(ctx); err != nil {
			return issue, err
		}
		if err := o.Dest.CreateComment(ctx, issue.Number, body); err != nil {
			o.Logger.Errorw("failed to add comment", "key", ci.Key, "number", issue.Number, "error", err)
		}
	}

	if ci.Closed {
		if err := o.limiter.Wait(ctx); err != nil {
			return issue, err
		}
		closed := "closed"
		if _, err := o.Dest.UpdateIssue(ctx, issue.Number, github.IssueUpdate{State: &closed}); err != nil {
			o.Logger.Errorw("failed to close issue", "key", ci.Key, "number", issue.Number, "error", err)
		} else {
			issue.State = closed
		}
	}

	if err := o.placeOnBoard(ctx, ci, issue); err != nil {
		return issue, err
	}

	if len(ci.PullRequests) > 0 {
		if err := o.crossPost(ctx, issue.Number, ci.PullRequests); err != nil {
			return issue, err
		}
	}
	return issue, nil
}

// LinkChildren appends a task list of children created in this run to each
// parent's body. Parents may come from earlier runs.
func (o *Orchestrator) LinkChildren(ctx context.Context, graph map[string][]string) error {
	for _, parentKey := range sortedKeys(graph) {
		parent := o.lookup(parentKey)
		if parent == nil {
			continue
		}
		numbers := o.createdNumbers(graph[parentKey])
		if len(numbers) == 0 {
			continue
		}

		body := parent.Body
		if !strings.Contains(body, "### Children") {
			body += "\n\n### Children"
		}
		for _, n := range numbers {
			body += fmt.Sprintf("\n- [ ] #%d", n)
		}

		if o.Options.DryRun {
			o.Logger.Infow("would link children", "key", parentKey, "children", numbers)
			continue
		}
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := o.Dest.UpdateIssue(ctx, parent.Number, github.IssueUpdate{Body: &body}); err != nil {
			o.Logger.Errorw("failed to link children", "key", parentKey, "number", parent.Number, "error", err)
			continue
		}
		parent.Body = body
		o.Logger.Infow("linked children", "key", parentKey, "number", parent.Number, "children", numbers)
	}
	return nil
}

// LinkRelated comments "Relates to: #a, #b" on each issue with related
// issues created in this run.
func (o *Orchestrator) LinkRelated(ctx context.Context, graph map[string][]string) error {
	for _, key := range sortedKeys(graph) {
		issue := o.lookup(key)
		if issue == nil {
			continue
		}
		numbers := o.createdNumbers(graph[key])
		if len(numbers) == 0 {
			continue
		}
		refs := make([]string, 0, len(numbers))
		for _, n := range numbers {
			refs = append(refs, fmt.Sprintf("#%d", n))
		}
		body := "Relates to: " + strings.Join(refs, ", ")

		if o.Options.DryRun {
			o.Logger.Infow("would link related issues", "key", key, "related", numbers)
			continue
		}
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := o.Dest.CreateComment(ctx, issue.Number, body); err != nil {
			o.Logger.Errorw("failed to link related issues", "key", key, "number", issue.Number, "error", err)
		}
	}
	return nil
}

// createdNumbers maps keys to the numbers of issues created in this run,
// dropping unknown keys and duplicates.
func (o *Orchestrator) createdNumbers(keys []string) []int {
	var numbers []int
	seen := make(map[int]bool)
	for _, k := range keys {
		issue, ok := o.created[k]
		if !ok || seen[issue.Number] {
			continue
		}
		seen[issue.Number] = true
		numbers = append(numbers, issue.Number)
	}
	return numbers
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
