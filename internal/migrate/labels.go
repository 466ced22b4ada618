package migrate

import (
	"context"
	"strings"

	"github.com/steveyegge/jihub/internal/github"
	"github.com/steveyegge/jihub/internal/jira"
)

// Label colors.
const (
	colorTag        = "c5c5c5"
	colorType       = "d4ecff"
	colorAdditional = "d4c5f9"
	colorGreen      = "0e8a16"
	colorYellow     = "fbca04"
	colorPurple     = "d4c5f9"
	colorRed        = "b60205"
	colorDefault    = "c5c5c5"
)

const maxLabelDescription = 100

// statusColors maps Jira status category colors to label colors.
var statusColors = map[string]string{
	"green":       colorGreen,
	"yellow":      colorYellow,
	"medium-gray": colorPurple,
	"blue-gray":   colorPurple,
	"red":         colorRed,
}

// priorityColors covers the usual Jira priority names, English and French.
var priorityColors = map[string]string{
	"haute":    colorRed,
	"high":     colorRed,
	"highest":  colorRed,
	"critical": colorRed,
	"urgent":   colorRed,
	"moyenne":  colorYellow,
	"medium":   colorYellow,
	"normal":   colorYellow,
	"basse":    colorGreen,
	"low":      colorGreen,
	"lowest":   colorGreen,
	"trivial":  colorGreen,
}

// BuildLabels returns the labels an issue should carry, deduplicated by
// case-insensitive name with the first occurrence winning.
func BuildLabels(issue *jira.Issue, additional string) []github.Label {
	f := issue.Fields
	var labels []github.Label
	for _, tag := range f.Labels {
		labels = append(labels, github.Label{Name: tag, Color: colorTag})
	}
	if f.IssueType != nil && f.IssueType.Name != "" {
		labels = append(labels, github.Label{
			Name:        "type: " + f.IssueType.Name,
			Color:       colorType,
			Description: truncateDescription(f.IssueType.Description),
		})
	}
	if f.Status != nil && f.Status.Name != "" {
		color := colorDefault
		if f.Status.StatusCategory != nil {
			if c, ok := statusColors[strings.ToLower(f.Status.StatusCategory.ColorName)]; ok {
				color = c
			}
		}
		labels = append(labels, github.Label{
			Name:        "status: " + f.Status.Name,
			Color:       color,
			Description: "Jira status: " + f.Status.Name,
		})
	}
	if f.Priority != nil && f.Priority.Name != "" {
		color, ok := priorityColors[strings.ToLower(f.Priority.Name)]
		if !ok {
			color = colorDefault
		}
		labels = append(labels, github.Label{
			Name:        "priority: " + f.Priority.Name,
			Color:       color,
			Description: "Jira priority: " + f.Priority.Name,
		})
	}
	if additional != "" {
		labels = append(labels, github.Label{
			Name:        additional,
			Color:       colorAdditional,
			Description: "Static label for import source",
		})
	}
	return dedupeLabels(labels)
}

func dedupeLabels(labels []github.Label) []github.Label {
	seen := make(map[string]bool, len(labels))
	out := labels[:0]
	for _, l := range labels {
		k := strings.ToLower(l.Name)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, l)
	}
	return out
}

func truncateDescription(s string) string {
	r := []rune(s)
	if len(r) <= maxLabelDescription {
		return s
	}
	return string(r[:maxLabelDescription-3]) + "..."
}

// EnsureLabels creates the labels missing from the repository and returns
// the names to put on the issue. A label that already exists counts as
// created; other failures are logged and the label is still requested.
func (o *Orchestrator) EnsureLabels(ctx context.Context, labels []github.Label) ([]string, error) {
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		names = append(names, label.Name)
		key := strings.ToLower(label.Name)
		if _, ok := o.labels[key]; ok {
			continue
		}
		if o.Options.DryRun {
			o.Logger.Infow("would create label", "label", label.Name)
			o.labels[key] = label
			continue
		}

		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		created, err := o.Dest.CreateLabel(ctx, label)
		switch {
		case err == nil:
			o.labels[key] = *created
			o.Logger.Debugw("created label", "label", label.Name)
		case github.IsAlreadyExists(err):
			o.labels[key] = label
			o.Logger.Warnw("label already exists", "label", label.Name)
		default:
			o.Logger.Errorw("failed to create label", "label", label.Name, "error", err)
		}
	}
	return names, nil
}
