// ABOUTME: Text-level repairs for malformed GFM tables in assistant answers
// ABOUTME: Row normalizer, broken-table reassembler, compact-table fixer, stream reassembler

package markdown

import (
	"regexp"
	"strings"

	"github.com/2389/docchat/internal/sse"
)

// minTableCells is the smallest cell count treated as a table.
const minTableCells = 3

// separatorCell is the cell text emitted in generated separator rows.
const separatorCell = "---"

var (
	// dashCell matches a separator cell, alignment colons included.
	dashCell = regexp.MustCompile(`^:?-+:?$`)
	// dashLine matches the pure-dash line that closes a broken header.
	dashLine = regexp.MustCompile(`^\|[-\s]*-[-\s]*$`)

	framePrefix    = regexp.MustCompile(`^` + regexp.QuoteMeta(sse.Marker) + `\s?`)
	trailingSpaces = regexp.MustCompile(`[ \t]+\n`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// Repair applies every table transform to a complete answer. Rows glued
// to prose are split off before compact lines are expanded, so a row the
// normalizer would detach is already standalone when the compact fixer
// looks at it. Compact lines are expanded before one-cell runs are
// regrouped so stray dash rows are gone first.
func Repair(md string) string {
	return NormalizeRows(FixBrokenTables(FixCompactTables(NormalizeRows(md))))
}

// NormalizeRows makes sure a table never shares a line with, or directly
// follows, prose. A row glued after text on the same line is moved to its
// own line, and the first row of every table block is preceded by a blank
// line. Rows inside a block are left adjacent.
func NormalizeRows(md string) string {
	lines := splitLines(md)
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		if !isRow(line) {
			if prose, row, ok := splitGluedRow(line); ok {
				out = append(out, prose, "", row)
				continue
			}
			out = append(out, line)
			continue
		}

		if n := len(out); n > 0 && strings.TrimSpace(out[n-1]) != "" && !isRow(out[n-1]) {
			out = append(out, "")
		}
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}

// splitGluedRow separates "text | a | b |" into its prose and row parts.
func splitGluedRow(line string) (string, string, bool) {
	idx := strings.Index(line, "|")
	if idx <= 0 {
		return "", "", false
	}
	prose := strings.TrimRight(line[:idx], " \t")
	row := strings.TrimRight(line[idx:], " \t")
	if strings.TrimSpace(prose) == "" {
		return "", "", false
	}
	if !strings.HasSuffix(row, "|") || strings.Count(row, "|") < minTableCells {
		return "", "", false
	}
	return prose, row, true
}

// FixBrokenTables rebuilds tables that arrive one cell per line:
//
//	| Col1
//	| Col2
//	|-----
//	| v1
//	| v2
//
// becomes a header row, a separator row and data rows regrouped to the
// header's column count.
func FixBrokenTables(md string) string {
	lines := splitLines(md)
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); {
		j := i
		for j < len(lines) && isSingleCell(lines[j]) {
			j++
		}
		if j == i {
			out = append(out, lines[i])
			i++
			continue
		}

		if j < len(lines) && dashLine.MatchString(strings.TrimSpace(lines[j])) {
			header := cellTexts(lines[i:j])
			k := j + 1
			for k < len(lines) && isSingleCell(lines[k]) {
				k++
			}
			data := cellTexts(lines[j+1 : k])

			if len(header)+len(data) >= minTableCells {
				out = append(out, formatRow(header), separatorRow(len(header)))
				out = append(out, groupRows(data, len(header))...)
				i = k
				continue
			}
		}

		out = append(out, lines[i:j]...)
		i = j
	}

	return strings.Join(out, "\n")
}

// isSingleCell reports whether line holds exactly one cell: a leading
// marker, no other marker, and content that is not a dash run.
func isSingleCell(line string) bool {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "|") || strings.Count(t, "|") != 1 {
		return false
	}
	return !dashLine.MatchString(t)
}

// cellTexts extracts the content of single-cell lines.
func cellTexts(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "|")))
	}
	return out
}

// FixCompactTables expands tables squeezed onto one line, such as
//
//	| A | B | C | --- | --- | --- | 1 | 2 | 3 |
//
// The column count comes from the first all-dash cell, or from the total
// cell count when the line carries no separator. A line that already
// belongs to a multi-line table is left as is; within such tables any
// all-dash row after the mandatory separator is removed.
func FixCompactTables(md string) string {
	lines := splitLines(md)
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		if !isCompactCandidate(lines, i) {
			out = append(out, line)
			continue
		}
		out = append(out, expandCompact(line)...)
	}

	return strings.Join(dropStraySeparators(out), "\n")
}

// isCompactCandidate decides whether lines[i] is a standalone table line.
func isCompactCandidate(lines []string, i int) bool {
	line := lines[i]
	idx := strings.Index(line, "|")
	if idx < 0 {
		return false
	}
	cs := cells(line[idx:])
	if len(cs) < minTableCells || isSeparatorRow(line) || dashCell.MatchString(cs[0]) {
		return false
	}
	if i+1 < len(lines) && isSeparatorRow(lines[i+1]) {
		return false
	}
	if i > 0 && isRow(lines[i-1]) {
		return false
	}
	return true
}

// expandCompact re-emits a compact line as prose (if any) plus table rows.
func expandCompact(line string) []string {
	idx := strings.Index(line, "|")
	prose := strings.TrimRight(line[:idx], " \t")
	cs := cells(line[idx:])

	cols := len(cs)
	content := make([]string, 0, len(cs))
	for n, c := range cs {
		if dashCell.MatchString(c) {
			if n < cols {
				cols = n
			}
			continue
		}
		content = append(content, c)
	}

	var out []string
	if strings.TrimSpace(prose) != "" {
		out = append(out, prose)
	}
	out = append(out, formatRow(content[:cols]), separatorRow(cols))
	out = append(out, groupRows(content[cols:], cols)...)
	return out
}

// dropStraySeparators removes all-dash rows beyond row index 1 of tables
// whose row 1 is the separator.
func dropStraySeparators(lines []string) []string {
	out := make([]string, 0, len(lines))
	pos := 0
	hasSeparator := false

	for _, line := range lines {
		if !isRow(line) {
			pos = 0
			hasSeparator = false
			out = append(out, line)
			continue
		}
		if pos == 1 {
			hasSeparator = isSeparatorRow(line)
		}
		if pos > 1 && hasSeparator && isSeparatorRow(line) {
			continue
		}
		out = append(out, line)
		pos++
	}
	return out
}

// ReassembleStream joins raw event-stream frames into one answer. Frames
// without the data marker are ignored; the marker and one optional
// whitespace character are stripped. Trailing blanks before newlines are
// removed and runs of blank lines collapse to one.
func ReassembleStream(frames []string) string {
	var b strings.Builder
	for _, f := range frames {
		if !strings.HasPrefix(f, sse.Marker) {
			continue
		}
		b.WriteString(framePrefix.ReplaceAllString(f, ""))
	}

	s := trailingSpaces.ReplaceAllString(b.String(), "\n")
	return blankRuns.ReplaceAllString(s, "\n\n")
}

func splitLines(md string) []string {
	return strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n")
}

// isRow reports whether line starts with a cell marker.
func isRow(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), "|")
}

// isSeparatorRow reports whether line is a row made only of dash cells.
func isSeparatorRow(line string) bool {
	if !isRow(line) {
		return false
	}
	cs := cells(line)
	if len(cs) == 0 {
		return false
	}
	for _, c := range cs {
		if !dashCell.MatchString(c) {
			return false
		}
	}
	return true
}

// cells splits a row on the marker and keeps the non-empty trimmed cells.
func cells(row string) []string {
	var out []string
	for _, c := range strings.Split(row, "|") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func formatRow(cs []string) string {
	return "| " + strings.Join(cs, " | ") + " |"
}

func separatorRow(cols int) string {
	cs := make([]string, cols)
	for i := range cs {
		cs[i] = separatorCell
	}
	return formatRow(cs)
}

// groupRows chunks cells into rows of cols; the last row may be short.
func groupRows(cs []string, cols int) []string {
	var rows []string
	for start := 0; start < len(cs); start += cols {
		rows = append(rows, formatRow(cs[start:min(start+cols, len(cs))]))
	}
	return rows
}
