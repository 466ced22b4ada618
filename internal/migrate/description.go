package migrate

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/steveyegge/jihub/internal/jira"
	"github.com/steveyegge/jihub/internal/logging"
)

const notAvailable = "N/A"

// wikiLinkPattern matches a Jira wiki link [label|url] or [url]. Matches
// followed by "(" are already markdown links and are left alone.
var wikiLinkPattern = regexp.MustCompile(`\[([^\[\]\n]{1,255})\]`)

// ConvertWikiLinks rewrites Jira wiki links to markdown.
func ConvertWikiLinks(text string) string {
	matches := wikiLinkPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if end < len(text) && text[end] == '(' {
			continue
		}
		content := text[m[2]:m[3]]

		var repl string
		if label, target, ok := strings.Cut(content, "|"); ok && strings.TrimSpace(target) != "" {
			repl = markdownLink(strings.TrimSpace(label), strings.TrimSpace(target))
		} else if looksLikeURL(content) {
			repl = markdownLink(path.Base(strings.TrimRight(content, "/")), content)
		} else {
			continue
		}

		b.WriteString(text[last:start])
		b.WriteString(repl)
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

func looksLikeURL(s string) bool {
	return strings.Contains(s, "://") || strings.HasPrefix(s, "/") || strings.HasPrefix(s, "www.")
}

// RenderBody fills the description template for an issue. Every token that
// has no value renders as N/A. {{PullRequests}} lists only pull request links
// on the GitHub host, and only when LinkPRs is set.
func RenderBody(opts Options, issue *jira.Issue, assets []Asset, log logging.Logger) string {
	f := issue.Fields
	embed := !opts.Link

	desc := strings.ReplaceAll(f.Description.String(), "\u00a0", " ")
	desc, unpaired := SubstitutePlaceholders(desc, assets, embed, log, issue.Key)
	desc = ConvertWikiLinks(desc)

	var storyPoints string
	if f.StoryPoints != nil {
		storyPoints = strconv.FormatFloat(*f.StoryPoints, 'f', -1, 64)
	}
	var reporter string
	if f.Reporter != nil {
		reporter = f.Reporter.DisplayName
	}
	jiraLink := jira.BrowseURL(opts.JiraURL, issue.Key)

	sprints := make([]string, 0, len(f.Sprints))
	for _, s := range f.Sprints {
		if s.Name != "" {
			sprints = append(sprints, s.Name)
		}
	}
	var links []string
	if opts.LinkPRs {
		host := opts.GitHubHost
		if host == "" {
			host = DefaultHost
		}
		for _, pr := range pullRequests(issue.RemoteLinks, host) {
			title := pr.Title
			if title == "" {
				title = pr.URL
			}
			links = append(links, markdownLink(title, pr.URL))
		}
	}

	r := strings.NewReplacer(
		"{{Description}}", orNA(desc),
		"{{Components}}", orNA(joinNames(f.Components)),
		"{{Sprints}}", orNA(strings.Join(sprints, ", ")),
		"{{FixVersions}}", orNA(joinNames(f.FixVersions)),
		"{{StoryPoints}}", orNA(storyPoints),
		"{{Attachments}}", orNA(attachmentList(unpaired, embed)),
		"{{Reporter}}", orNA(reporter),
		"{{JiraLink}}", orNA(jiraLink),
		"{{PullRequests}}", orNA(strings.Join(links, ", ")),
	)
	return r.Replace(opts.DescriptionTemplate)
}

func joinNames(fields []jira.NamedField) string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Name != "" {
			names = append(names, f.Name)
		}
	}
	return strings.Join(names, ", ")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}
