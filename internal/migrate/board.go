package migrate

import (
	"context"
	"strings"

	"github.com/steveyegge/jihub/internal/github"
)

// Board fields that mirror Jira values.
const (
	boardStatusField   = "Status"
	boardPriorityField = "Priority"
)

// boardCache holds the project fetched on first use. A failed fetch is
// cached too, so the board is only asked for once.
type boardCache struct {
	loaded  bool
	project *github.Project
}

func (o *Orchestrator) project(ctx context.Context) *github.Project {
	if o.Options.ProjectNumber <= 0 {
		return nil
	}
	if !o.board.loaded {
		o.board.loaded = true
		project, err := o.Dest.FetchProject(ctx, o.Options.ProjectOwner, o.Options.ProjectNumber)
		if err != nil {
			o.Logger.Warnw("project board unavailable, skipping board placement",
				"owner", o.Options.ProjectOwner, "number", o.Options.ProjectNumber, "error", err)
		} else {
			o.Logger.Infow("loaded project board", "title", project.Title, "fields", len(project.Fields))
		}
		o.board.project = project
	}
	return o.board.project
}

// placeOnBoard adds the issue to the board and sets its Status and Priority
// fields. Every failure here only warns.
func (o *Orchestrator) placeOnBoard(ctx context.Context, ci *ConvertedIssue, issue *github.Issue) error {
	project := o.project(ctx)
	if project == nil {
		return nil
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return err
	}
	itemID, err := o.Dest.AddProjectItem(ctx, project.ID, issue.NodeID)
	if err != nil {
		o.Logger.Warnw("failed to add issue to board", "key", ci.Key, "number", issue.Number, "error", err)
		return nil
	}

	for _, fv := range []struct{ field, value string }{
		{boardStatusField, ci.Status},
		{boardPriorityField, ci.Priority},
	} {
		if fv.value == "" {
			continue
		}
		field := findField(project, fv.field)
		if field == nil {
			o.Logger.Warnw("board has no such field", "field", fv.field)
			continue
		}
		option := MatchOption(field.Options, fv.value)
		if option == nil {
			o.Logger.Warnw("no board option matches value",
				"key", ci.Key, "field", fv.field, "value", fv.value, "available", optionNames(field.Options))
			continue
		}
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := o.Dest.SetProjectOption(ctx, project.ID, itemID, field.ID, option.ID); err != nil {
			o.Logger.Warnw("failed to set board field", "key", ci.Key, "field", fv.field, "error", err)
		}
	}
	return nil
}

func findField(project *github.Project, name string) *github.ProjectField {
	for i := range project.Fields {
		if strings.EqualFold(project.Fields[i].Name, name) {
			return &project.Fields[i]
		}
	}
	return nil
}

// MatchOption picks the option for value: an exact case-insensitive name
// first, then an option whose name contains value or is contained in it.
func MatchOption(options []github.ProjectOption, value string) *github.ProjectOption {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return nil
	}
	for i := range options {
		if strings.ToLower(options[i].Name) == v {
			return &options[i]
		}
	}
	for i := range options {
		name := strings.ToLower(options[i].Name)
		if name == "" {
			continue
		}
		if strings.Contains(name, v) || strings.Contains(v, name) {
			return &options[i]
		}
	}
	return nil
}

func optionNames(options []github.ProjectOption) []string {
	names := make([]string, 0, len(options))
	for _, opt := range options {
		names = append(names, opt.Name)
	}
	return names
}
