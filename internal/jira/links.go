package jira

import "strings"

// Relation names used when wiring migrated issues together.
const (
	RelationParentOf  = "Parent of"
	RelationRelatesTo = "relates to"
)

// BuildLinkGraph maps each issue key to the keys it links to under the given
// relation. A link matches when its inward label equals the relation and an
// inward issue is present, or its outward label equals it and an outward
// issue is present. Self-links, cycles and duplicates are kept.
func BuildLinkGraph(issues []Issue, relation string) map[string][]string {
	graph := make(map[string][]string)
	for _, issue := range issues {
		if len(issue.Fields.IssueLinks) == 0 {
			continue
		}

		var targets []string
		for _, link := range issue.Fields.IssueLinks {
			inward := strings.EqualFold(link.Type.Inward, relation) && link.InwardIssue != nil
			outward := strings.EqualFold(link.Type.Outward, relation) && link.OutwardIssue != nil
			if !inward && !outward {
				continue
			}
			if link.InwardIssue != nil {
				targets = append(targets, link.InwardIssue.Key)
			} else {
				targets = append(targets, link.OutwardIssue.Key)
			}
		}
		if len(targets) > 0 {
			graph[issue.Key] = append(graph[issue.Key], targets...)
		}
	}
	return graph
}
