package detect

import (
	"strconv"
	"strings"
)

// AddedLine is one line introduced by a unified-diff hunk, with its
// post-change line number.
type AddedLine struct {
	Number int
	Text   string
}

var hunkPrefix = "@@"

// AddedLines walks a unified-diff patch and returns the lines added by
// it, numbered on the new side of the diff. Context lines advance the
// counter, removals do not.
func AddedLines(patch string) []AddedLine {
	if patch == "" {
		return nil
	}
	var out []AddedLine
	lineNo := 0
	for _, raw := range strings.Split(patch, "\n") {
		if strings.HasPrefix(raw, hunkPrefix) {
			lineNo = parseHunkStart(raw)
			continue
		}
		if lineNo == 0 {
			continue
		}
		switch {
		case strings.HasPrefix(raw, "+"):
			out = append(out, AddedLine{Number: lineNo, Text: raw[1:]})
			lineNo++
		case strings.HasPrefix(raw, "-"):
			// removed from the old side only
		case strings.HasPrefix(raw, `\`):
			// "\ No newline at end of file"
		default:
			lineNo++
		}
	}
	return out
}

// parseHunkStart extracts the new-side start line from a hunk header,
// e.g. "@@ -10,4 +12,6 @@" yields 12. Returns 0 on malformed headers.
func parseHunkStart(header string) int {
	plus := strings.Index(header, "+")
	if plus < 0 {
		return 0
	}
	rest := header[plus+1:]
	end := strings.IndexAny(rest, ", @")
	if end < 0 {
		end = len(rest)
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil || n < 1 {
		return 0
	}
	return n
}
