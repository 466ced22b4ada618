// Package jira provides the read side of a migration: a Jira Cloud REST
// client, the issue data model, and text extraction from Atlassian Document
// Format (ADF) trees.
package jira

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// API configuration constants.
const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the page size used when none is configured.
	DefaultMaxResults = 100

	// DefaultConcurrency bounds per-page enrichment fetches.
	DefaultConcurrency = 8

	// MaxPages stops pagination if the server keeps handing out tokens.
	MaxPages = 10000
)

// searchFields is the field list requested for every search page.
const searchFields = "id,key,labels,issuetype,project,status,description,summary,components,fixVersions,versions,customfield_10028,customfield_10020,attachment,assignee,issuelinks,reporter,comment,priority,created"

// Issue represents a Jira issue from the REST API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`

	// RemoteLinks is filled by the enrichment fetcher, not by the search response.
	RemoteLinks []RemoteLink `json:"-"`
}

// IssueFields contains the fields of a Jira issue.
type IssueFields struct {
	Summary     string          `json:"summary"`
	Description Description     `json:"description"`
	Status      *StatusField    `json:"status"`
	Priority    *PriorityField  `json:"priority"`
	IssueType   *IssueTypeField `json:"issuetype"`
	Project     *ProjectField   `json:"project"`
	Assignee    *UserField      `json:"assignee"`
	Reporter    *UserField      `json:"reporter"`
	Labels      []string        `json:"labels"`
	Components  []NamedField    `json:"components"`
	FixVersions []NamedField    `json:"fixVersions"`
	Versions    []NamedField    `json:"versions"`
	StoryPoints *float64        `json:"customfield_10028"`
	Sprints     []Sprint        `json:"customfield_10020"`
	Attachments []Attachment    `json:"attachment"`
	IssueLinks  []IssueLink     `json:"issuelinks"`
	Comment     *CommentPage    `json:"comment"`
	Created     string          `json:"created"`
}

// StatusField represents a Jira issue status.
type StatusField struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	StatusCategory *StatusCategory `json:"statusCategory"`
}

// StatusCategory groups statuses; ColorName drives the label color.
type StatusCategory struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	ColorName string `json:"colorName"`
}

// PriorityField represents a Jira issue priority.
type PriorityField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IssueTypeField represents a Jira issue type.
type IssueTypeField struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ProjectField represents a Jira project.
type ProjectField struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// UserField represents a Jira user.
type UserField struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// NamedField covers components and versions.
type NamedField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Attachment is a file declared on an issue.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Content  string `json:"content"` // download URL
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// IssueLink is a typed link to another issue. Exactly one of InwardIssue
// and OutwardIssue is normally set.
type IssueLink struct {
	ID           string    `json:"id"`
	Type         LinkType  `json:"type"`
	InwardIssue  *IssueRef `json:"inwardIssue,omitempty"`
	OutwardIssue *IssueRef `json:"outwardIssue,omitempty"`
}

// LinkType names both directions of a link, e.g. "is child of" / "Parent of".
type LinkType struct {
	Name    string `json:"name"`
	Inward  string `json:"inward"`
	Outward string `json:"outward"`
}

// IssueRef is the abbreviated issue embedded in a link.
type IssueRef struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// CommentPage is the comment field as embedded in a search result.
type CommentPage struct {
	Comments []Comment `json:"comments"`
	Total    int       `json:"total"`
}

// Comment is a single issue comment. The body is ADF in API v3.
type Comment struct {
	ID      string      `json:"id"`
	Author  *UserField  `json:"author"`
	Body    Description `json:"body"`
	Created string      `json:"created"`
}

// RemoteLink is an external link attached to an issue, either a Jira remote
// link or a pull request reported by the dev-status API.
type RemoteLink struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
}

// SearchResult represents a page of the JQL search response.
type SearchResult struct {
	StartAt       int     `json:"startAt"`
	MaxResults    int     `json:"maxResults"`
	Total         int     `json:"total"`
	NextPageToken string  `json:"nextPageToken"`
	IsLast        bool    `json:"isLast"`
	Issues        []Issue `json:"issues"`
}

// DescriptionKind tags which form a Description arrived in.
type DescriptionKind int

const (
	// DescriptionAbsent is a missing or null description.
	DescriptionAbsent DescriptionKind = iota
	// DescriptionText is a plain string (API v2 style or pre-rendered).
	DescriptionText
	// DescriptionDocument is an ADF tree.
	DescriptionDocument
)

// Description is a rich-text field decoded at the JSON boundary into one of
// three shapes: absent, plain text, or an ADF document.
type Description struct {
	Kind DescriptionKind
	Text string
	Doc  *ADFNode
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Description) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*d = Description{}
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("decode text description: %w", err)
		}
		*d = Description{Kind: DescriptionText, Text: s}
		return nil
	}

	var node ADFNode
	if err := json.Unmarshal(trimmed, &node); err != nil {
		return fmt.Errorf("decode ADF description: %w", err)
	}
	*d = Description{Kind: DescriptionDocument, Doc: &node}
	return nil
}

// String renders the description as flattened markup.
func (d Description) String() string {
	switch d.Kind {
	case DescriptionText:
		return d.Text
	case DescriptionDocument:
		return ExtractText(d.Doc)
	default:
		return ""
	}
}

// TextDescription builds a plain-text description.
func TextDescription(s string) Description {
	return Description{Kind: DescriptionText, Text: s}
}

// DocumentDescription wraps an ADF tree.
func DocumentDescription(doc *ADFNode) Description {
	if doc == nil {
		return Description{}
	}
	return Description{Kind: DescriptionDocument, Doc: doc}
}

// ADFNode is a node of an Atlassian Document Format tree.
type ADFNode struct {
	Type    string                 `json:"type"`
	Text    string                 `json:"text,omitempty"`
	Attrs   map[string]interface{} `json:"attrs,omitempty"`
	Content []ADFNode              `json:"content,omitempty"`
	Marks   []ADFMark              `json:"marks,omitempty"`
}

// ADFMark is inline formatting applied to a text node.
type ADFMark struct {
	Type  string                 `json:"type"`
	Attrs map[string]interface{} `json:"attrs,omitempty"`
}

// Sprint is one entry of the sprint custom field. Older Jira instances
// serialize sprints as "com.atlassian...Sprint@1f[id=1,name=Sprint 1,...]"
// strings; newer ones send objects.
type Sprint struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Sprint) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return fmt.Errorf("decode sprint: %w", err)
		}
		*s = Sprint{Name: sprintNameFromLegacy(raw)}
		return nil
	}

	type plain Sprint
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return fmt.Errorf("decode sprint: %w", err)
	}
	*s = Sprint(p)
	return nil
}

// sprintNameFromLegacy pulls the name= attribute out of a legacy sprint
// string. Strings without one are returned trimmed.
func sprintNameFromLegacy(raw string) string {
	idx := strings.LastIndex(raw, "name=")
	if idx < 0 {
		return strings.TrimSpace(raw)
	}
	name := raw[idx+len("name="):]
	if end := strings.IndexAny(name, ",]"); end >= 0 {
		name = name[:end]
	}
	return strings.TrimSpace(name)
}
