package commands

import (
	"fmt"
	"strings"

	"github.com/MacPhobos/audio-ident-sub000/pkg/cli"
)

// renderSummary builds the human-readable end-of-batch report.
func renderSummary(reports []fileReport) string {
	styles := cli.NewStyles(cli.DefaultTheme)
	rule := styles.Dim.Render(strings.Repeat("=", 60))

	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString(styles.Title.Render("ingest report") + "\n")
	b.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d   %s %d   %s %d\n",
		styles.Label.Render("total"), len(reports),
		styles.Label.Render("ingested"), countStatus(reports, "ingested"),
		styles.Label.Render("duplicates"), countStatus(reports, "duplicate"),
		styles.Label.Render("skipped"), countStatus(reports, "skipped"),
		styles.Label.Render("errors"), countStatus(reports, "error")))

	writeRows := func(status, heading string) {
		rows := byStatus(reports, status)
		if len(rows) == 0 {
			return
		}
		b.WriteString(styles.Warn.Render(heading) + "\n")
		for _, r := range rows {
			detail := r.Detail
			if r.Status == "skipped" && r.DurationSec > 0 {
				detail = fmt.Sprintf("%s (%s)", detail, cli.FormatSeconds(r.DurationSec))
			}
			b.WriteString("  " + r.Path + "  " + styles.Dim.Render(detail) + "\n")
		}
	}
	writeRows("error", "failed:")
	writeRows("skipped", "skipped:")

	b.WriteString(rule + "\n")
	return b.String()
}

func byStatus(reports []fileReport, status string) []fileReport {
	var out []fileReport
	for _, r := range reports {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}
