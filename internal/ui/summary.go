package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/steveyegge/jihub/internal/migrate"
)

const maxErrorWidth = 100

// WriteSummary prints a short report of a run.
func WriteSummary(w io.Writer, r *migrate.Report) error {
	_, err := io.WriteString(w, RenderSummary(r))
	return err
}

// RenderSummary formats a run report for the terminal.
func RenderSummary(r *migrate.Report) string {
	var b strings.Builder
	s := r.Stats

	title := "Migration summary"
	if r.DryRun {
		title += " (dry run)"
	}
	b.WriteString(RenderCategory(title) + "\n")
	b.WriteString(RenderSeparator() + "\n")

	row := func(icon, label string, value int) {
		fmt.Fprintf(&b, "%s %s%d\n", icon, LabelStyle.Render(label), value)
	}
	row(MutedStyle.Render(IconSkip), "Fetched", s.Fetched)
	row(MutedStyle.Render(IconSkip), "Already migrated", s.Excluded)
	row(PassStyle.Render(IconPass), "Created", s.Created)
	if s.Failed > 0 {
		row(FailStyle.Render(IconFail), "Failed", s.Failed)
	}
	if s.AssetsUploaded+s.AssetsReused+s.AssetsSkipped > 0 {
		row(PassStyle.Render(IconPass), "Assets uploaded", s.AssetsUploaded)
		row(MutedStyle.Render(IconSkip), "Assets reused", s.AssetsReused)
		if s.AssetsSkipped > 0 {
			row(WarnStyle.Render(IconWarn), "Assets skipped", s.AssetsSkipped)
		}
	}
	row(MutedStyle.Render(IconSkip), "GitHub writes", s.Mutations)
	row(MutedStyle.Render(IconSkip), "Cooldowns", s.Cooldowns)

	for _, f := range r.Failures {
		fmt.Fprintf(&b, "%s %s %s\n", FailStyle.Render(IconFail), f.Key, MutedStyle.Render("("+f.Stage+")"))
		fmt.Fprintf(&b, "  %s%s\n", TreeLast, truncate(f.Error, maxErrorWidth))
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "%s %s\n", WarnStyle.Render(IconWarn), w)
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
