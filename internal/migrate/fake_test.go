package migrate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/steveyegge/jihub/internal/github"
	"github.com/steveyegge/jihub/internal/jira"
)

type postedComment struct {
	Number int
	Body   string
}

type issueUpdate struct {
	Number int
	Update github.IssueUpdate
}

// fakeDestination is an in-memory GitHub repository that records writes.
type fakeDestination struct {
	issues     []github.Issue
	labels     []github.Label
	milestones []github.Milestone
	contents   []github.Content
	listErr    error
	committer  *github.Committer
	project    *github.Project
	projectErr error

	createIssueErrs []error
	labelErrs       map[string]error
	milestoneErr    error
	putErr          error
	commentErr      error

	calls        []string
	requests     []github.IssueRequest
	comments     []postedComment
	updates      []issueUpdate
	newLabels    []github.Label
	uploads      []string
	itemFields   [][2]string
	nextNumber   int
	projectFetch int
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{nextNumber: 100, committer: &github.Committer{Name: "Dev", Email: "dev@example.com"}}
}

func (f *fakeDestination) record(call string) { f.calls = append(f.calls, call) }

func (f *fakeDestination) ListIssues(ctx context.Context) ([]github.Issue, error) {
	return f.issues, f.listErr
}

func (f *fakeDestination) ListLabels(ctx context.Context) ([]github.Label, error) {
	return f.labels, f.listErr
}

func (f *fakeDestination) ListMilestones(ctx context.Context) ([]github.Milestone, error) {
	return f.milestones, f.listErr
}

func (f *fakeDestination) ListContents(ctx context.Context, path, branch string) ([]github.Content, error) {
	return f.contents, f.listErr
}

func (f *fakeDestination) Committer(ctx context.Context) (*github.Committer, error) {
	if f.committer == nil {
		return nil, fmt.Errorf("no primary email")
	}
	return f.committer, nil
}

func (f *fakeDestination) CreateIssue(ctx context.Context, req github.IssueRequest) (*github.Issue, error) {
	f.record("CreateIssue")
	f.requests = append(f.requests, req)
	if len(f.createIssueErrs) > 0 {
		err := f.createIssueErrs[0]
		f.createIssueErrs = f.createIssueErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.nextNumber++
	issue := github.Issue{
		Number: f.nextNumber,
		NodeID: fmt.Sprintf("I_%d", f.nextNumber),
		Title:  req.Title,
		Body:   req.Body,
		State:  "open",
	}
	f.issues = append(f.issues, issue)
	return &issue, nil
}

func (f *fakeDestination) UpdateIssue(ctx context.Context, number int, update github.IssueUpdate) (*github.Issue, error) {
	f.record("UpdateIssue")
	f.updates = append(f.updates, issueUpdate{Number: number, Update: update})
	return &github.Issue{Number: number}, nil
}

func (f *fakeDestination) CreateComment(ctx context.Context, number int, body string) error {
	f.record("CreateComment")
	if f.commentErr != nil {
		return f.commentErr
	}
	f.comments = append(f.comments, postedComment{Number: number, Body: body})
	return nil
}

func (f *fakeDestination) CreateLabel(ctx context.Context, label github.Label) (*github.Label, error) {
	f.record("CreateLabel")
	if err := f.labelErrs[label.Name]; err != nil {
		return nil, err
	}
	f.newLabels = append(f.newLabels, label)
	return &label, nil
}

func (f *fakeDestination) CreateMilestone(ctx context.Context, title string) (*github.Milestone, error) {
	f.record("CreateMilestone")
	if f.milestoneErr != nil {
		return nil, f.milestoneErr
	}
	m := github.Milestone{Number: len(f.milestones) + 1, Title: title}
	f.milestones = append(f.milestones, m)
	return &m, nil
}

func (f *fakeDestination) PutContent(ctx context.Context, path, branch string, data []byte, committer *github.Committer) (*github.Content, error) {
	f.record("PutContent")
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.uploads = append(f.uploads, path)
	return &github.Content{Path: path, DownloadURL: "https://raw.example.com/" + path, HTMLURL: "https://github.example.com/" + path}, nil
}

func (f *fakeDestination) FetchProject(ctx context.Context, owner string, number int) (*github.Project, error) {
	f.projectFetch++
	return f.project, f.projectErr
}

func (f *fakeDestination) AddProjectItem(ctx context.Context, projectID, contentID string) (string, error) {
	f.record("AddProjectItem")
	return "ITEM_" + contentID, nil
}

func (f *fakeDestination) SetProjectOption(ctx context.Context, projectID, itemID, fieldID, optionID string) error {
	f.record("SetProjectOption")
	f.itemFields = append(f.itemFields, [2]string{fieldID, optionID})
	return nil
}

// fakeSource serves a fixed issue list and attachment bodies.
type fakeSource struct {
	issues    []jira.Issue
	files     map[string][]byte
	misses    int64
	searchErr error
}

func (s *fakeSource) SearchIssues(ctx context.Context, jql string) ([]jira.Issue, error) {
	return s.issues, s.searchErr
}

func (s *fakeSource) DownloadAttachment(ctx context.Context, att jira.Attachment) (*jira.Download, error) {
	data, ok := s.files[att.Content]
	if !ok {
		return nil, fmt.Errorf("download %s: %w", att.Filename, jira.ErrLengthMismatch)
	}
	return &jira.Download{Data: data, Hash: "hash-" + att.Filename}, nil
}

func (s *fakeSource) DevStatusMisses() int64 { return s.misses }

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func observedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

func newTestOrchestrator(t *testing.T, dest *fakeDestination, source *fakeSource, opts Options) (*Orchestrator, *observer.ObservedLogs) {
	t.Helper()
	if opts.Owner == "" {
		opts.Owner, opts.Repo = "acme", "widgets"
	}
	if opts.StateMapping == nil {
		opts.StateMapping = map[string][]string{
			"open":   {"To Do", "In Progress"},
			"closed": {"Done"},
		}
	}
	logger, logs := observedLogger()
	if source == nil {
		source = &fakeSource{}
	}
	return NewOrchestrator(dest, source, opts, logger, noSleep), logs
}

func apiError(status int, fields ...github.FieldError) error {
	return &github.APIError{StatusCode: status, Message: "Validation Failed", Errors: fields}
}
