package repl

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/uniseg"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/mongopilot/mongopilot/internal/history"
)

// looksLikeJSON reports whether a shell result is a JSON document or array
// worth reformatting.
func looksLikeJSON(s string) bool {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "{") && !strings.HasPrefix(t, "[") {
		return false
	}
	return gjson.Valid(t)
}

// isErrorDocument reports whether a JSON result is a server error document.
// The shell prints these on stdout like any other result; they carry an
// errmsg field or ok:0.
func isErrorDocument(s string) bool {
	if v := gjson.Get(s, "errmsg"); v.Exists() {
		return true
	}
	if v := gjson.Get(s, "ok"); v.Exists() && v.Float() == 0 {
		return true
	}
	return false
}

// formatResult renders a shell result for display. JSON documents are
// reindented, and colored when the output is a terminal.
func formatResult(out string, prettyOn, colored bool) string {
	if !prettyOn || !looksLikeJSON(out) {
		return out
	}

	b := pretty.Pretty([]byte(strings.TrimSpace(out)))
	if colored {
		b = pretty.Color(b, nil)
	}
	return strings.TrimRight(string(b), "\n")
}

// formatHistory renders history entries as a table, newest first. Column
// widths are computed by display width so wide runes line up; maxWidth 0
// leaves scripts untruncated.
func formatHistory(entries []history.Entry, maxWidth int) string {
	if len(entries) == 0 {
		return "history is empty"
	}

	const (
		timeWidth   = 8 // 15:04:05
		statusWidth = 7
		durWidth    = 7
	)

	scriptWidth := 0
	if maxWidth > 0 {
		scriptWidth = maxWidth - timeWidth - statusWidth - durWidth - 6
		if scriptWidth < 10 {
			scriptWidth = 10
		}
	}

	var b strings.Builder
	b.WriteString(padWidth("TIME", timeWidth))
	b.WriteString("  ")
	b.WriteString(padWidth("STATUS", statusWidth))
	b.WriteString("  ")
	b.WriteString(padWidth("MS", durWidth))
	b.WriteString("  SCRIPT\n")

	for _, e := range entries {
		script := e.Script
		if scriptWidth > 0 {
			script = truncateWidth(script, scriptWidth)
		}
		b.WriteString(padWidth(e.StartedAt.Local().Format("15:04:05"), timeWidth))
		b.WriteString("  ")
		b.WriteString(padWidth(e.Status, statusWidth))
		b.WriteString("  ")
		b.WriteString(padWidth(formatDuration(e.DurationMS), durWidth))
		b.WriteString("  ")
		b.WriteString(script)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDuration(ms int64) string {
	if ms >= 10*int64(time.Second/time.Millisecond) {
		return fmt.Sprintf("%.0fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%d", ms)
}

// truncateWidth shortens s to at most max display columns, marking the cut
// with an ASCII ellipsis. Grapheme clusters are never split.
func truncateWidth(s string, max int) string {
	if max <= 0 || uniseg.StringWidth(s) <= max {
		return s
	}

	budget := max - 3 // room for "..."
	var b strings.Builder
	w := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		cw := g.Width()
		if w+cw > budget {
			break
		}
		b.WriteString(g.Str())
		w += cw
	}
	return b.String() + "..."
}

// padWidth pads s with spaces to the given display width.
func padWidth(s string, width int) string {
	d := width - uniseg.StringWidth(s)
	if d <= 0 {
		return s
	}
	return s + strings.Repeat(" ", d)
}
