package migrate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/steveyegge/jihub/internal/github"
	"github.com/steveyegge/jihub/internal/jira"
)

// commentTimeLayout renders comment dates in headers.
const commentTimeLayout = "02.01.2006 15:04"

// ConvertedIssue is everything needed to create one GitHub issue.
type ConvertedIssue struct {
	Key          string
	Request      github.IssueRequest
	Closed       bool
	Comments     []string
	Status       string
	Priority     string
	PullRequests []PullRequestRef
	Assets       []Asset
}

// IdentityTag marks a GitHub issue as migrated from the given Jira key.
func IdentityTag(key string) string {
	return "(jira: " + key + ")"
}

// Convert builds the creation request for one Jira issue. Labels and the
// milestone are created on the way. Only critical failures and
// cancellation are returned; everything else degrades in place.
func (o *Orchestrator) Convert(ctx context.Context, issue *jira.Issue) (*ConvertedIssue, error) {
	f := issue.Fields
	ci := &ConvertedIssue{Key: issue.Key}

	labels, err := o.EnsureLabels(ctx, BuildLabels(issue, o.Options.AdditionalLabel))
	if err != nil {
		return nil, err
	}

	var milestoneTitle string
	if n := len(f.FixVersions); n > 0 {
		milestoneTitle = f.FixVersions[n-1].Name
	}
	milestone, err := o.EnsureMilestone(ctx, milestoneTitle)
	if err != nil {
		return nil, err
	}

	assets, err := o.ResolveAttachments(ctx, issue)
	if err != nil {
		return nil, err
	}
	ci.Assets = assets

	ci.Request = github.IssueRequest{
		Title:     f.Summary + " " + IdentityTag(issue.Key),
		Body:      RenderBody(o.Options, issue, assets, o.Logger),
		Labels:    labels,
		Milestone: milestone,
	}
	if login := o.mapAssignee(f.Assignee); login != "" {
		ci.Request.Assignees = []string{login}
	}

	if f.Status != nil {
		ci.Status = f.Status.Name
	}
	if f.Priority != nil {
		ci.Priority = f.Priority.Name
	}
	ci.Closed = o.mapState(issue.Key, ci.Status) == "closed"

	if f.Comment != nil {
		for _, c := range f.Comment.Comments {
			ci.Comments = append(ci.Comments, formatComment(c))
		}
	}
	if o.Options.LinkPRs {
		ci.PullRequests = pullRequests(issue.RemoteLinks, o.Options.GitHubHost)
	}

	if o.converted != nil {
		o.converted.Add(ctx, 1)
	}
	o.report.Stats.Converted++
	return ci, nil
}

// mapState resolves a Jira status through the state mapping. States are
// tried in sorted order so a status listed twice always resolves the same
// way. An unmapped status is treated as open.
func (o *Orchestrator) mapState(key, status string) string {
	states := make([]string, 0, len(o.Options.StateMapping))
	for state := range o.Options.StateMapping {
		states = append(states, state)
	}
	sort.Strings(states)
	for _, state := range states {
		for _, name := range o.Options.StateMapping[state] {
			if strings.EqualFold(name, status) {
				return strings.ToLower(state)
			}
		}
	}
	o.Logger.Warnw("no state mapping for Jira status, defaulting to open", "key", key, "status", status)
	return "open"
}

func (o *Orchestrator) mapAssignee(user *jira.UserField) string {
	if user == nil || user.DisplayName == "" {
		return ""
	}
	for name, login := range o.Options.UserMappings {
		if strings.EqualFold(name, user.DisplayName) {
			return login
		}
	}
	return ""
}

func formatComment(c jira.Comment) string {
	author := "Unknown"
	if c.Author != nil && c.Author.DisplayName != "" {
		author = c.Author.DisplayName
	}
	when := c.Created
	if t, err := jira.ParseTimestamp(c.Created); err == nil {
		when = t.Format(commentTimeLayout)
	}
	return fmt.Sprintf("*%s* wrote on %s:\n\n%s", author, when, c.Body.String())
}

// EnsureMilestone returns the number of the milestone with the given title,
// creating it when missing. An empty title means no milestone. A failed
// creation is critical.
func (o *Orchestrator) EnsureMilestone(ctx context.Context, title string) (*int, error) {
	if title == "" {
		return nil, nil
	}
	for _, m := range o.milestones {
		if strings.EqualFold(m.Title, title) {
			if m.Number == 0 {
				return nil, nil
			}
			n := m.Number
			return &n, nil
		}
	}
	if o.Options.DryRun {
		o.Logger.Infow("would create milestone", "milestone", title)
		o.milestones = append(o.milestones, github.Milestone{Title: title})
		return nil, nil
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	m, err := o.Dest.CreateMilestone(ctx, title)
	if err != nil {
		return nil, critical("create milestone %q: %w", title, err)
	}
	o.milestones = append(o.milestones, *m)
	o.Logger.Infow("created milestone", "milestone", title, "number", m.Number)
	n := m.Number
	return &n, nil
}
