// Package github provides client and data types for the GitHub REST API.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient("test-token", "owner", "repo").WithBaseURL(server.URL).WithHTTPClient(server.Client())
	client.NewBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, MaxRetries)
	}
	return client
}

// TestNewClient verifies the constructor creates a properly configured client.
func TestNewClient(t *testing.T) {
	client := NewClient("test-token", "owner", "repo")

	assert.Equal(t, "test-token", client.Token)
	assert.Equal(t, "owner", client.Owner)
	assert.Equal(t, "repo", client.Repo)
	assert.Equal(t, DefaultAPIEndpoint, client.BaseURL)
	assert.NotNil(t, client.HTTPClient)
}

// TestClientBuilders verifies the copy-on-write builders leave the original alone.
func TestClientBuilders(t *testing.T) {
	base := NewClient("token", "owner", "repo")

	custom := &http.Client{Timeout: 60 * time.Second}
	withHTTP := base.WithHTTPClient(custom)
	assert.Same(t, custom, withHTTP.HTTPClient)
	assert.NotSame(t, custom, base.HTTPClient)

	enterprise := base.WithBaseURL("https://github.example.com/api/v3/")
	assert.Equal(t, "https://github.example.com/api/v3", enterprise.BaseURL)
	assert.Equal(t, DefaultAPIEndpoint, base.BaseURL)

	other := base.ForRepo("acme", "widgets")
	assert.Equal(t, "acme/widgets", other.repoPath())
	assert.Equal(t, "owner/repo", base.repoPath())
	assert.Equal(t, "token", other.Token)
}

// TestBuildURL verifies URL construction for API endpoints.
func TestBuildURL(t *testing.T) {
	client := NewClient("token", "owner", "repo")

	assert.Equal(t, "https://api.github.com/repos/owner/repo/issues", client.buildURL("/repos/owner/repo/issues", nil))
	assert.Equal(t, "https://api.github.com/repos/owner/repo/issues?per_page=100&state=all",
		client.buildURL("/repos/owner/repo/issues", map[string]string{"state": "all", "per_page": "100"}))
}

func TestListIssuesPagesAndSkipsPullRequests(t *testing.T) {
	var pages []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/issues", r.URL.Path)
		assert.Equal(t, "all", r.URL.Query().Get("state"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2022-11-28", r.Header.Get("X-GitHub-Api-Version"))

		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		var issues []Issue
		switch page {
		case "1":
			for i := 1; i <= MaxPageSize; i++ {
				issues = append(issues, Issue{Number: i, Title: "issue " + strconv.Itoa(i)})
			}
		case "2":
			issues = []Issue{
				{Number: 101, Title: "last"},
				{Number: 102, Title: "a PR", PullRequest: &PullRef{URL: "https://api.github.com/pulls/102"}},
			}
		}
		_ = json.NewEncoder(w).Encode(issues)
	})

	issues, err := client.ListIssues(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, pages)
	assert.Len(t, issues, 101)
	assert.Equal(t, 101, issues[len(issues)-1].Number)
}

func TestCreateIssueSendsRequest(t *testing.T) {
	milestone := 4
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/owner/repo/issues", r.URL.Path)

		var req IssueRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Fix it (jira: ABC-1)", req.Title)
		assert.Equal(t, []string{"alice"}, req.Assignees)
		if assert.NotNil(t, req.Milestone) {
			assert.Equal(t, 4, *req.Milestone)
		}

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number": 12, "node_id": "I_12", "title": "Fix it (jira: ABC-1)"}`))
	})

	issue, err := client.CreateIssue(context.Background(), IssueRequest{
		Title:     "Fix it (jira: ABC-1)",
		Body:      "body",
		Assignees: []string{"alice"},
		Milestone: &milestone,
	})
	require.NoError(t, err)
	assert.Equal(t, 12, issue.Number)
	assert.Equal(t, "I_12", issue.NodeID)
}

func TestDoRequestRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"name": "bug", "color": "c5c5c5"}`))
		}
	})

	label, err := client.CreateLabel(context.Background(), Label{Name: "bug", Color: "c5c5c5"})
	require.NoError(t, err)
	assert.Equal(t, "bug", label.Name)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoRequestGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.ListLabels(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(MaxRetries+1), calls.Load())
}

func TestDoRequestReturnsAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Validation Failed","errors":[{"resource":"Issue","field":"assignees","code":"invalid"}]}`))
	})

	_, err := client.CreateIssue(context.Background(), IssueRequest{Title: "x", Assignees: []string{"ghost"}})
	require.Error(t, err)
	assert.True(t, IsAssigneeRejected(err))
	assert.False(t, IsAlreadyExists(err))
	assert.False(t, IsNotFound(err))
}

func TestCommitterRequiresSinglePrimaryEmail(t *testing.T) {
	tests := []struct {
		name    string
		emails  string
		want    *Committer
		wantErr bool
	}{
		{
			name:   "one primary",
			emails: `[{"email":"a@example.com","primary":false},{"email":"b@example.com","primary":true}]`,
			want:   &Committer{Name: "Octo Cat", Email: "b@example.com"},
		},
		{
			name:    "no primary",
			emails:  `[{"email":"a@example.com","primary":false}]`,
			wantErr: true,
		},
		{
			name:    "two primaries",
			emails:  `[{"email":"a@example.com","primary":true},{"email":"b@example.com","primary":true}]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/user":
					_, _ = w.Write([]byte(`{"login":"octocat","name":"Octo Cat"}`))
				case "/user/emails":
					_, _ = w.Write([]byte(tt.emails))
				default:
					http.NotFound(w, r)
				}
			})

			got, err := client.Committer(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListContentsRecurses(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dev", r.URL.Query().Get("ref"))
		switch r.URL.Path {
		case "/repos/owner/repo/contents/assets":
			_, _ = w.Write([]byte(`[
				{"name":"ABC-1-img.png","path":"assets/ABC-1-img.png","type":"file","download_url":"https://raw/ABC-1-img.png"},
				{"name":"old","path":"assets/old","type":"dir"}
			]`))
		case "/repos/owner/repo/contents/assets/old":
			_, _ = w.Write([]byte(`[{"name":"ABC-2-log.txt","path":"assets/old/ABC-2-log.txt","type":"file"}]`))
		default:
			http.NotFound(w, r)
		}
	})

	files, err := client.ListContents(context.Background(), "assets", "dev")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "ABC-1-img.png", files[0].Name)
	assert.Equal(t, "assets/old/ABC-2-log.txt", files[1].Path)

	_, err = client.ListContents(context.Background(), "missing", "dev")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestPutContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/repos/owner/repo/contents/assets/ABC-1-img.png", r.URL.Path)

		var upload ContentUpload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&upload))
		assert.Equal(t, "Upload file ABC-1-img.png", upload.Message)
		assert.Equal(t, DefaultBranch, upload.Branch)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png")), upload.Content)
		if assert.NotNil(t, upload.Committer) {
			assert.Equal(t, "dev@example.com", upload.Committer.Email)
		}

		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprint(w, `{"content":{"name":"ABC-1-img.png","html_url":"https://github.com/x","download_url":"https://raw/x"}}`)
	})

	content, err := client.PutContent(context.Background(), "assets/ABC-1-img.png", "", []byte("png"),
		&Committer{Name: "Dev", Email: "dev@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://raw/x", content.DownloadURL)
}
