package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides methods to interact with the GitHub API.
type Client struct {
	Token      string // GitHub personal access token
	Owner      string // Repository owner (user or org)
	Repo       string // Repository name
	BaseURL    string // API base URL (default: https://api.github.com)
	HTTPClient Doer

	// NewBackOff returns the retry policy for rate-limited responses.
	NewBackOff func() backoff.BackOff
}

// NewClient creates a new GitHub client.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:   token,
		Owner:   owner,
		Repo:    repo,
		BaseURL: DefaultAPIEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		NewBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = RetryDelay
	return backoff.WithMaxRetries(bo, MaxRetries)
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient Doer) *Client {
	clone := *c
	clone.HTTPClient = httpClient
	return &clone
}

// WithBaseURL returns a new client with a custom base URL (for testing or GitHub Enterprise).
func (c *Client) WithBaseURL(baseURL string) *Client {
	clone := *c
	clone.BaseURL = strings.TrimSuffix(baseURL, "/")
	return &clone
}

// ForRepo returns a client targeting another repository with the same credentials.
func (c *Client) ForRepo(owner, repo string) *Client {
	clone := *c
	clone.Owner = owner
	clone.Repo = repo
	return &clone
}

// repoPath returns the "owner/repo" path segment.
func (c *Client) repoPath() string {
	return c.Owner + "/" + c.Repo
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path

	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}

	return u
}

// doRequest performs an HTTP request with authentication and rate-limit retries.
// Non-success responses are returned as *APIError.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, http.Header, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	newBackOff := c.NewBackOff
	if newBackOff == nil {
		newBackOff = defaultBackOff
	}
	bo := newBackOff()

	for attempt := 1; ; attempt++ {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return nil, nil, fmt.Errorf("request failed (attempt %d): %w", attempt, err)
		}

		const maxResponseSize = 50 * 1024 * 1024
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read response (attempt %d): %w", attempt, err)
		}

		// GitHub signals rate limiting with 429, or 403 plus X-RateLimit-Remaining: 0.
		if isRateLimited(resp) {
			delay := bo.NextBackOff()
			if delay == backoff.Stop {
				return nil, nil, fmt.Errorf("rate limited after %d attempts: %w", attempt, newAPIError(resp.StatusCode, respBody))
			}
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, err := strconv.Atoi(retryAfter); err == nil {
					delay = time.Duration(seconds) * time.Second
				}
			}
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, nil, newAPIError(resp.StatusCode, respBody)
		}

		return respBody, resp.Header, nil
	}
}

func isRateLimited(resp *http.Response) bool {
	return resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0")
}

// linkNextPattern matches the "next" relation in GitHub Link headers.
var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// hasNextPage checks the Link header for a next page URL and returns it.
func hasNextPage(headers http.Header) (string, bool) {
	link := headers.Get("Link")
	if link == "" {
		return "", false
	}
	matches := linkNextPattern.FindStringSubmatch(link)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// fetchPages walks a paginated list endpoint. It stops on a short page or
// when the Link header has no next relation.
func fetchPages[T any](ctx context.Context, c *Client, path string, params map[string]string) ([]T, error) {
	var all []T
	for page := 1; page <= MaxPages; page++ {
		q := map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		for k, v := range params {
			q[k] = v
		}

		respBody, headers, err := c.doRequest(ctx, http.MethodGet, c.buildURL(path, q), nil)
		if err != nil {
			return nil, err
		}

		var items []T
		if err := json.Unmarshal(respBody, &items); err != nil {
			return nil, fmt.Errorf("failed to parse %s response: %w", path, err)
		}
		all = append(all, items...)

		if len(items) < MaxPageSize {
			return all, nil
		}
		if _, ok := hasNextPage(headers); !ok && headers.Get("Link") != "" {
			return all, nil
		}
	}
	return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
}

// ListIssues retrieves every issue of the repository, open and closed.
// Pull requests are filtered out.
func (c *Client) ListIssues(ctx context.Context) ([]Issue, error) {
	items, err := fetchPages[Issue](ctx, c, "/repos/"+c.repoPath()+"/issues", map[string]string{"state": "all"})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issues: %w", err)
	}

	issues := items[:0]
	for _, issue := range items {
		if issue.PullRequest == nil {
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

// ListLabels retrieves every label of the repository.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	labels, err := fetchPages[Label](ctx, c, "/repos/"+c.repoPath()+"/labels", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch labels: %w", err)
	}
	return labels, nil
}

// ListMilestones retrieves every milestone of the repository, open and closed.
func (c *Client) ListMilestones(ctx context.Context) ([]Milestone, error) {
	milestones, err := fetchPages[Milestone](ctx, c, "/repos/"+c.repoPath()+"/milestones", map[string]string{"state": "all"})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch milestones: %w", err)
	}
	return milestones, nil
}

// CreateIssue creates a new issue in GitHub.
func (c *Client) CreateIssue(ctx context.Context, req IssueRequest) (*Issue, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse create response: %w", err)
	}
	return &issue, nil
}

// UpdateIssue updates an existing issue in GitHub.
// GitHub uses PATCH for issue updates.
func (c *Client) UpdateIssue(ctx context.Context, number int, update IssueUpdate) (*Issue, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPatch, urlStr, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update issue #%d: %w", number, err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse update response: %w", err)
	}
	return &issue, nil
}

// CreateComment adds a comment to an issue or pull request.
func (c *Client) CreateComment(ctx context.Context, number int, body string) error {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number)+"/comments", nil)
	if _, _, err := c.doRequest(ctx, http.MethodPost, urlStr, map[string]string{"body": body}); err != nil {
		return fmt.Errorf("failed to comment on #%d: %w", number, err)
	}
	return nil
}

// CreateLabel creates a repository label.
func (c *Client) CreateLabel(ctx context.Context, label Label) (*Label, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/labels", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, Label{
		Name:        label.Name,
		Color:       label.Color,
		Description: label.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create label %q: %w", label.Name, err)
	}

	var created Label
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("failed to parse label response: %w", err)
	}
	return &created, nil
}

// CreateMilestone creates a repository milestone.
func (c *Client) CreateMilestone(ctx context.Context, title string) (*Milestone, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/milestones", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, map[string]string{"title": title})
	if err != nil {
		return nil, fmt.Errorf("failed to create milestone %q: %w", title, err)
	}

	var milestone Milestone
	if err := json.Unmarshal(respBody, &milestone); err != nil {
		return nil, fmt.Errorf("failed to parse milestone response: %w", err)
	}
	return &milestone, nil
}

// AuthenticatedUser returns the user owning the token.
func (c *Client) AuthenticatedUser(ctx context.Context) (*User, error) {
	respBody, _, err := c.doRequest(ctx, http.MethodGet, c.buildURL("/user", nil), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch authenticated user: %w", err)
	}

	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	return &user, nil
}

// Committer resolves the token owner's name and single primary email.
func (c *Client) Committer(ctx context.Context) (*Committer, error) {
	user, err := c.AuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}

	respBody, _, err := c.doRequest(ctx, http.MethodGet, c.buildURL("/user/emails", nil), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user emails: %w", err)
	}

	var emails []Email
	if err := json.Unmarshal(respBody, &emails); err != nil {
		return nil, fmt.Errorf("failed to parse emails response: %w", err)
	}

	var primary []Email
	for _, e := range emails {
		if e.Primary {
			primary = append(primary, e)
		}
	}
	if len(primary) != 1 {
		return nil, fmt.Errorf("expected exactly one primary email, found %d", len(primary))
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	return &Committer{Name: name, Email: primary[0].Email}, nil
}
