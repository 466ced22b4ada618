package migrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/jihub/internal/github"
	"github.com/steveyegge/jihub/internal/jira"
)

func todoIssue(key string) jira.Issue {
	return jira.Issue{ID: "1" + key, Key: key, Fields: jira.IssueFields{
		Summary: "Issue " + key,
		Status:  &jira.StatusField{Name: "To Do"},
	}}
}

func TestPipelineExcludesMigratedIssues(t *testing.T) {
	dest := newFakeDestination()
	dest.issues = []github.Issue{{Number: 5, Title: "Old (jira: ABC-1)"}}
	source := &fakeSource{issues: []jira.Issue{todoIssue("ABC-1"), todoIssue("ABC-2")}}
	o, logs := newTestOrchestrator(t, dest, source, Options{})

	report, err := NewPipeline(source, o).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, dest.requests, 1)
	assert.Equal(t, "Issue ABC-2 (jira: ABC-2)", dest.requests[0].Title)
	assert.Equal(t, []Exclusion{{Key: "ABC-1", Number: 5}}, report.Excluded)
	require.Len(t, report.Created, 1)
	assert.Equal(t, "ABC-2", report.Created[0].Key)
	assert.Equal(t, 2, report.Stats.Fetched)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, logs.FilterMessage("Excluding Jira Issue ABC-1 because it matches GitHub Issue #5").Len())
}

func TestPipelineCoolsDownOnceForElevenWrites(t *testing.T) {
	dest := newFakeDestination()
	var issues []jira.Issue
	for i := 1; i <= 11; i++ {
		issues = append(issues, jira.Issue{Key: fmt.Sprintf("ABC-%d", i), Fields: jira.IssueFields{Summary: "plain"}})
	}
	source := &fakeSource{issues: issues}

	rec := &recordingSleeper{}
	logger, _ := observedLogger()
	o := NewOrchestrator(dest, source, Options{
		Owner: "acme", Repo: "widgets", BatchSize: 10, Cooldown: time.Minute,
	}, logger, rec.sleep)
	rec.limit = o.limiter

	report, err := NewPipeline(source, o).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, dest.requests, 11)
	assert.Equal(t, []int{10}, rec.calls)
	assert.Equal(t, 11, report.Stats.Mutations)
	assert.Equal(t, 1, report.Stats.Cooldowns)
}

func TestPipelineWarnsWhenNoPullRequestData(t *testing.T) {
	source := &fakeSource{issues: []jira.Issue{todoIssue("ABC-1"), todoIssue("ABC-2")}, misses: 2}
	o, logs := newTestOrchestrator(t, newFakeDestination(), source, Options{})

	report, err := NewPipeline(source, o).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Warnings, 1)
	assert.Equal(t, 1, logs.FilterMessageSnippet("no pull request data").Len())
}

func TestPipelineWiresRelationships(t *testing.T) {
	parent := todoIssue("ABC-1")
	parent.Fields.IssueLinks = []jira.IssueLink{{
		Type:         jira.LinkType{Name: "Hierarchy", Inward: "Child of", Outward: "Parent of"},
		OutwardIssue: &jira.IssueRef{Key: "ABC-2"},
	}}
	child := todoIssue("ABC-2")
	child.Fields.IssueLinks = []jira.IssueLink{{
		Type:        jira.LinkType{Name: "Relates", Inward: "relates to", Outward: "relates to"},
		InwardIssue: &jira.IssueRef{Key: "ABC-3"},
	}}
	related := todoIssue("ABC-3")

	dest := newFakeDestination()
	dest.issues = []github.Issue{{Number: 5, Title: "Parent (jira: ABC-1)", Body: "Body"}}
	source := &fakeSource{issues: []jira.Issue{parent, child, related}}
	o, _ := newTestOrchestrator(t, dest, source, Options{LinkChildren: true, LinkRelated: true})

	_, err := NewPipeline(source, o).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, dest.updates, 1)
	assert.Equal(t, 5, dest.updates[0].Number)
	assert.Equal(t, "Body\n\n### Children\n- [ ] #101", *dest.updates[0].Update.Body)
	assert.Contains(t, dest.comments, postedComment{Number: 101, Body: "Relates to: #102"})
}

func TestPipelineDryRunWritesNothing(t *testing.T) {
	issue := todoIssue("ABC-1")
	issue.Fields.Labels = []string{"backend"}
	issue.Fields.FixVersions = []jira.NamedField{{Name: "1.0"}}
	dest := newFakeDestination()
	source := &fakeSource{issues: []jira.Issue{issue}}
	o, _ := newTestOrchestrator(t, dest, source, Options{DryRun: true, LinkChildren: true, LinkRelated: true})

	report, err := NewPipeline(source, o).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dest.calls)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Stats.Converted)
	assert.Equal(t, 0, report.Stats.Created)
}

func TestPipelineSearchFailureAborts(t *testing.T) {
	source := &fakeSource{searchErr: errors.New("page 2 failed")}
	o, _ := newTestOrchestrator(t, newFakeDestination(), source, Options{})

	_, err := NewPipeline(source, o).Run(context.Background())
	require.Error(t, err)
	assert.False(t, IsCritical(err))
}

func TestPipelineMilestoneFailureIsCritical(t *testing.T) {
	issue := todoIssue("ABC-1")
	issue.Fields.FixVersions = []jira.NamedField{{Name: "1.0"}}
	dest := newFakeDestination()
	dest.milestoneErr = apiError(500)
	source := &fakeSource{issues: []jira.Issue{issue}}
	o, _ := newTestOrchestrator(t, dest, source, Options{})

	_, err := NewPipeline(source, o).Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsCritical(err))
	assert.Empty(t, dest.requests)
}

func TestReportWriteYAML(t *testing.T) {
	r := &Report{RunID: "run-1"}
	r.exclude("ABC-1", 5)
	r.created("ABC-2", &github.Issue{Number: 6, HTMLURL: "https://github.com/acme/widgets/issues/6"})
	r.fail("ABC-3", "create", errors.New("rejected"))

	var buf bytes.Buffer
	require.NoError(t, r.WriteYAML(&buf))
	out := buf.String()
	assert.Contains(t, out, "run_id: run-1")
	assert.Contains(t, out, "excluded: 1")
	assert.Contains(t, out, "key: ABC-2")
	assert.Contains(t, out, "error: rejected")
}
