package shell

import (
	"strconv"
	"strings"
)

// eol terminates every line of the wire framing: a request is the
// single-line script, the sequence id, each followed by eol; a response is
// complete when a stdout chunk ends with the sequence id followed by eol.
const eol = "\n"

// morePrompt is the continuation line the shell prints when a cursor has
// more results available. It is an artifact of paging, not part of the
// result, and is stripped from a trailing position only.
const morePrompt = `Type "it" for more`

// delimiter returns the terminator line for a sequence id.
func delimiter(id int64) string {
	return strconv.FormatInt(id, 10) + eol
}

// flattenScript collapses a script to a single line by trimming each line
// and concatenating. The framing protocol relies on line-oriented echoing,
// so embedded newlines from editor formatting must never reach the shell.
func flattenScript(script string) string {
	lines := strings.Split(script, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, "")
}

// cleanOutput turns the raw correlated output into the command's result:
// empty lines are dropped, one trailing continuation prompt is removed
// (occurrences in the middle of the output are real data and kept), and the
// remaining lines are joined with eol.
func cleanOutput(raw string) string {
	lines := strings.Split(raw, eol)
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line != "" {
			kept = append(kept, line)
		}
	}
	if n := len(kept); n > 0 && kept[n-1] == morePrompt {
		kept = kept[:n-1]
	}
	return strings.Join(kept, eol)
}
