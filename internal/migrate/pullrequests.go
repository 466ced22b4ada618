package migrate

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/steveyegge/jihub/internal/jira"
)

// PullRequestRef points at a pull request found among an issue's links.
type PullRequestRef struct {
	Owner  string
	Repo   string
	Number int
	URL    string
	Title  string
}

// ParsePullRequestURL recognizes https://<host>/<owner>/<repo>/pull/<n>.
func ParsePullRequestURL(raw, host string) (PullRequestRef, bool) {
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Hostname(), host) {
		return PullRequestRef{}, false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 4 || parts[2] != "pull" || parts[0] == "" || parts[1] == "" {
		return PullRequestRef{}, false
	}
	n, err := strconv.Atoi(parts[3])
	if err != nil || n <= 0 {
		return PullRequestRef{}, false
	}
	return PullRequestRef{Owner: parts[0], Repo: parts[1], Number: n, URL: raw}, true
}

// pullRequests extracts the pull requests among an issue's remote links.
func pullRequests(links []jira.RemoteLink, host string) []PullRequestRef {
	var refs []PullRequestRef
	seen := make(map[string]bool)
	for _, link := range links {
		ref, ok := ParsePullRequestURL(link.URL, host)
		if !ok {
			continue
		}
		id := strings.ToLower(fmt.Sprintf("%s/%s#%d", ref.Owner, ref.Repo, ref.Number))
		if seen[id] {
			continue
		}
		seen[id] = true
		ref.Title = link.Title
		refs = append(refs, ref)
	}
	return refs
}

// crossReference is the comment body pointing a pull request back at the
// created issue.
func crossReference(owner, repo string, pr PullRequestRef, number int) string {
	if strings.EqualFold(pr.Owner, owner) && strings.EqualFold(pr.Repo, repo) {
		return fmt.Sprintf("Relates to #%d", number)
	}
	return fmt.Sprintf("Relates to %s/%s#%d", owner, repo, number)
}

// crossPost comments on every referenced pull request. Failures only warn.
func (o *Orchestrator) crossPost(ctx context.Context, number int, prs []PullRequestRef) error {
	for _, pr := range prs {
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
		body := crossReference(o.Options.Owner, o.Options.Repo, pr, number)
		if err := o.ForRepo(pr.Owner, pr.Repo).CreateComment(ctx, pr.Number, body); err != nil {
			o.Logger.Warnw("failed to cross-post on pull request",
				"pull_request", pr.URL, "issue", number, "error", err)
		}
	}
	return nil
}
