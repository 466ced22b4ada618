package jira

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(s string) ADFNode { return ADFNode{Type: "text", Text: s} }

func paragraph(children ...ADFNode) ADFNode {
	return ADFNode{Type: "paragraph", Content: children}
}

func doc(children ...ADFNode) *ADFNode {
	return &ADFNode{Type: "doc", Content: children}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		doc  *ADFNode
		want string
	}{
		{
			name: "nil document",
			doc:  nil,
			want: "",
		},
		{
			name: "paragraphs end with newline",
			doc:  doc(paragraph(text("first")), paragraph(text("second"))),
			want: "first\nsecond",
		},
		{
			name: "link mark",
			doc: doc(paragraph(ADFNode{
				Type:  "text",
				Text:  "docs",
				Marks: []ADFMark{{Type: "strong"}, {Type: "link", Attrs: map[string]interface{}{"href": "https://example.com"}}},
			})),
			want: "[docs](https://example.com)",
		},
		{
			name: "cards emit bare url",
			doc: doc(
				paragraph(ADFNode{Type: "inlineCard", Attrs: map[string]interface{}{"url": "https://a.example"}}),
				ADFNode{Type: "blockCard", Attrs: map[string]interface{}{"url": "https://b.example"}},
			),
			want: "https://a.example\nhttps://b.example",
		},
		{
			name: "hard break",
			doc:  doc(paragraph(text("a"), ADFNode{Type: "hardBreak"}, text("b"))),
			want: "a\nb",
		},
		{
			name: "emoji glyph and short name fallback",
			doc: doc(paragraph(
				ADFNode{Type: "emoji", Attrs: map[string]interface{}{"text": "😀", "shortName": ":grinning:"}},
				ADFNode{Type: "emoji", Attrs: map[string]interface{}{"shortName": ":custom:"}},
			)),
			want: "😀:custom:",
		},
		{
			name: "empty paragraph adds no newline",
			doc:  doc(paragraph(), paragraph(text("x"))),
			want: "x",
		},
		{
			name: "paragraph after hard break does not double newline",
			doc:  doc(paragraph(text("a"), ADFNode{Type: "hardBreak"}), paragraph(text("b"))),
			want: "a\nb",
		},
		{
			name: "heading and nested list",
			doc: doc(
				ADFNode{Type: "heading", Content: []ADFNode{text("Title")}},
				ADFNode{Type: "bulletList", Content: []ADFNode{
					{Type: "listItem", Content: []ADFNode{paragraph(text("one"))}},
					{Type: "listItem", Content: []ADFNode{paragraph(text("two"))}},
				}},
			),
			want: "Title\none\ntwo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractText(tt.doc))
		})
	}
}

// TestExtractTextDeepDocument verifies very deep trees do not recurse.
func TestExtractTextDeepDocument(t *testing.T) {
	root := &ADFNode{Type: "doc"}
	cur := root
	for i := 0; i < 200000; i++ {
		cur.Content = []ADFNode{{Type: "blockquote"}}
		cur = &cur.Content[0]
	}
	cur.Content = []ADFNode{paragraph(text("bottom"))}

	assert.Equal(t, "bottom", ExtractText(root))
}

func TestDescriptionUnmarshal(t *testing.T) {
	var fields struct {
		A Description `json:"a"`
		B Description `json:"b"`
		C Description `json:"c"`
		D Description `json:"d"`
	}
	raw := `{
		"b": null,
		"c": "plain text",
		"d": {"type":"doc","version":1,"content":[{"type":"paragraph","content":[{"type":"text","text":"hello"}]}]}
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &fields))

	assert.Equal(t, DescriptionAbsent, fields.A.Kind)
	assert.Equal(t, "", fields.A.String())
	assert.Equal(t, DescriptionAbsent, fields.B.Kind)
	assert.Equal(t, DescriptionText, fields.C.Kind)
	assert.Equal(t, "plain text", fields.C.String())
	assert.Equal(t, DescriptionDocument, fields.D.Kind)
	assert.Equal(t, "hello", fields.D.String())
}

func TestSprintUnmarshal(t *testing.T) {
	raw := `[
		"com.atlassian.greenhopper.service.sprint.Sprint@1a2b[id=3,rapidViewId=1,state=CLOSED,name=Sprint 3,startDate=2020]",
		{"id": 4, "name": "Sprint 4", "state": "active"},
		"no attributes"
	]`
	var sprints []Sprint
	require.NoError(t, json.Unmarshal([]byte(raw), &sprints))
	require.Len(t, sprints, 3)

	assert.Equal(t, "Sprint 3", sprints[0].Name)
	assert.Equal(t, Sprint{ID: 4, Name: "Sprint 4", State: "active"}, sprints[1])
	assert.Equal(t, "no attributes", sprints[2].Name)
}

func TestIssueDecodesSearchFields(t *testing.T) {
	raw := `{
		"id": "10001",
		"key": "ABC-1",
		"fields": {
			"summary": "Fix it",
			"status": {"name": "Done", "statusCategory": {"colorName": "green"}},
			"customfield_10028": 3.5,
			"issuelinks": [{"type": {"name": "Hierarchy", "inward": "is child of", "outward": "Parent of"}, "outwardIssue": {"key": "ABC-2"}}],
			"attachment": [{"filename": "img.png", "content": "https://jira/img.png", "size": 12}]
		}
	}`
	var issue Issue
	require.NoError(t, json.Unmarshal([]byte(raw), &issue))

	assert.Equal(t, "ABC-1", issue.Key)
	require.NotNil(t, issue.Fields.StoryPoints)
	assert.InDelta(t, 3.5, *issue.Fields.StoryPoints, 0.0001)
	assert.Equal(t, "green", issue.Fields.Status.StatusCategory.ColorName)
	require.Len(t, issue.Fields.IssueLinks, 1)
	assert.Equal(t, "ABC-2", issue.Fields.IssueLinks[0].OutwardIssue.Key)
	assert.Equal(t, int64(12), issue.Fields.Attachments[0].Size)
	assert.True(t, strings.HasSuffix(issue.Fields.Attachments[0].Content, "img.png"))
}
