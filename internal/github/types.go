// Package github provides client and data types for the GitHub REST and
// GraphQL APIs.
//
// This package covers the write side of a migration: listing and creating
// issues, labels and milestones, uploading repository contents, and placing
// issues on a Projects (v2) board.
package github

import (
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for rate-limited requests.
	MaxRetries = 3

	// RetryDelay is the base delay between retries (exponential backoff).
	RetryDelay = time.Second

	// MaxPageSize is the maximum number of items to fetch per page.
	MaxPageSize = 100

	// MaxPages is the maximum number of pages to fetch before stopping.
	MaxPages = 1000

	// DefaultBranch is used for content uploads when none is configured.
	DefaultBranch = "main"
)

// Issue represents an issue from the GitHub API.
type Issue struct {
	ID          int        `json:"id"`
	NodeID      string     `json:"node_id"`
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	State       string     `json:"state"` // "open" or "closed"
	Labels      []Label    `json:"labels"`
	Assignees   []User     `json:"assignees,omitempty"`
	Milestone   *Milestone `json:"milestone,omitempty"`
	HTMLURL     string     `json:"html_url"`
	PullRequest *PullRef   `json:"pull_request,omitempty"` // Non-nil if this is a PR
}

// PullRef indicates an issue is actually a pull request.
type PullRef struct {
	URL string `json:"url,omitempty"`
}

// IssueRequest is the body of an issue creation call.
type IssueRequest struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Labels    []string `json:"labels,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
	Milestone *int     `json:"milestone,omitempty"`
}

// IssueUpdate is the body of an issue PATCH. Nil fields are left alone.
type IssueUpdate struct {
	Body  *string `json:"body,omitempty"`
	State *string `json:"state,omitempty"`
}

// User represents a GitHub user.
type User struct {
	ID    int    `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name,omitempty"`
}

// Email is one entry of /user/emails.
type Email struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Committer identifies the author of uploaded files.
type Committer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Label represents a GitHub label.
type Label struct {
	ID          int    `json:"id,omitempty"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// Milestone represents a GitHub milestone.
type Milestone struct {
	ID     int    `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
}

// Content is an entry of a repository contents listing.
type Content struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"` // "file" or "dir"
	SHA         string `json:"sha"`
	HTMLURL     string `json:"html_url"`
	DownloadURL string `json:"download_url"`
}

// ContentUpload is the body of a contents PUT.
type ContentUpload struct {
	Message   string     `json:"message"`
	Content   string     `json:"content"` // base64
	Branch    string     `json:"branch,omitempty"`
	Committer *Committer `json:"committer,omitempty"`
}

// Project is a Projects (v2) board with its fields.
type Project struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Fields []ProjectField `json:"-"`
}

// ProjectField is a board field. Options is set for single-select fields.
type ProjectField struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Options []ProjectOption `json:"options,omitempty"`
}

// ProjectOption is one choice of a single-select field.
type ProjectOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
