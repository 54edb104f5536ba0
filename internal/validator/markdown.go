// Package validator classifies Markdown lines and checks pipe tables for
// structural problems. The line checks never build a document model: every
// call re-derives line kinds from the literal text. CheckRendered is the
// one exception and asks a GFM parser what it would draw.
package validator

import (
	"fmt"
	"regexp"
	"strings"
)

// LineKind 行类型
type LineKind int

const (
	LineProse LineKind = iota
	LineBlank
	LineFence // opening or closing fence
	LineCode  // inside a fenced block
	LineTableRow
	LineTableSeparator
)

// String returns the string representation of a LineKind
func (k LineKind) String() string {
	switch k {
	case LineProse:
		return "prose"
	case LineBlank:
		return "blank"
	case LineFence:
		return "fence"
	case LineCode:
		return "code"
	case LineTableRow:
		return "table-row"
	case LineTableSeparator:
		return "table-separator"
	default:
		return "unknown"
	}
}

var (
	separatorPattern = regexp.MustCompile(`^\|[ \t|:-]+\|[ \t]*\r?$`)
	rowPattern       = regexp.MustCompile(`^\|(.+)\|[ \t]*\r?$`)
	fencePattern     = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})")
)

// Line is one classified line of a document.
type Line struct {
	Index int
	Text  string
	Kind  LineKind
	Pipes int // unescaped pipes, table lines only
}

// IsSeparator reports whether line matches the table separator grammar.
func IsSeparator(line string) bool {
	return separatorPattern.MatchString(line) && strings.Contains(line, "-")
}

// IsTableRow reports whether line is a pipe-delimited content row: it starts
// and ends with a pipe and has at least one more in between.
func IsTableRow(line string) bool {
	return !IsSeparator(line) && rowPattern.MatchString(line) && CountPipes(line) >= 3
}

// CountPipes counts pipes that are not escaped with a backslash.
func CountPipes(line string) int {
	return len(PipeOffsets(line))
}

// PipeOffsets returns the byte offsets of unescaped pipes in line.
func PipeOffsets(line string) []int {
	var offsets []int
	escaped := false
	for i := 0; i < len(line); i++ {
		switch {
		case escaped:
			escaped = false
		case line[i] == '\\':
			escaped = true
		case line[i] == '|':
			offsets = append(offsets, i)
		}
	}
	return offsets
}

// Cells splits a pipe-delimited row into its cell texts, untrimmed. The
// empty text before the first pipe and after the last pipe is dropped.
func Cells(line string) []string {
	offsets := PipeOffsets(strings.TrimRight(line, " \t\r"))
	if len(offsets) < 2 {
		return nil
	}
	cells := make([]string, 0, len(offsets)-1)
	for i := 0; i+1 < len(offsets); i++ {
		cells = append(cells, line[offsets[i]+1:offsets[i+1]])
	}
	return cells
}

// Columns returns the column count of a table line (pipes - 1).
func Columns(line string) int {
	n := CountPipes(line) - 1
	if n < 0 {
		return 0
	}
	return n
}

// Classify splits text on "\n" and classifies every line; a trailing "\r"
// stays in Text. Lines inside fenced code are LineCode, never table lines.
func Classify(text string) []Line {
	raw := strings.Split(text, "\n")
	lines := make([]Line, len(raw))

	fence := ""
	for i, s := range raw {
		l := Line{Index: i, Text: s}
		if m := fencePattern.FindStringSubmatch(s); m != nil {
			switch {
			case fence == "":
				fence = m[1]
				l.Kind = LineFence
			case m[1][0] == fence[0] && len(m[1]) >= len(fence) && strings.TrimSpace(s) == m[1]:
				fence = ""
				l.Kind = LineFence
			default:
				l.Kind = LineCode
			}
			lines[i] = l
			continue
		}

		switch {
		case fence != "":
			l.Kind = LineCode
		case strings.TrimSpace(s) == "":
			l.Kind = LineBlank
		case IsSeparator(s):
			l.Kind = LineTableSeparator
			l.Pipes = CountPipes(s)
		case IsTableRow(s):
			l.Kind = LineTableRow
			l.Pipes = CountPipes(s)
		default:
			l.Kind = LineProse
		}
		lines[i] = l
	}
	return lines
}

// Table is a run of consecutive table lines.
type Table struct {
	Start     int // first line index (the header when it is a row)
	End       int // one past the last line
	Separator int // index of the separator after the header, -1 when missing
}

// Header reports whether the block begins with a content row.
func (t Table) Header(lines []Line) bool {
	return lines[t.Start].Kind == LineTableRow
}

// Tables groups consecutive table rows and separators into blocks.
func Tables(lines []Line) []Table {
	var tables []Table
	for i := 0; i < len(lines); {
		if !isTableKind(lines[i].Kind) {
			i++
			continue
		}
		t := Table{Start: i, Separator: -1}
		j := i
		for j < len(lines) && isTableKind(lines[j].Kind) {
			j++
		}
		t.End = j
		if lines[i].Kind == LineTableRow && i+1 < j && lines[i+1].Kind == LineTableSeparator {
			t.Separator = i + 1
		}
		tables = append(tables, t)
		i = j
	}
	return tables
}

func isTableKind(k LineKind) bool {
	return k == LineTableRow || k == LineTableSeparator
}

// IssueKind identifies a structural problem.
type IssueKind string

const (
	IssueMissingSeparator IssueKind = "missing_separator"
	IssueColumnMismatch   IssueKind = "column_mismatch" // separator disagrees with header
	IssueShortRow         IssueKind = "short_row"
	IssueExtraCells       IssueKind = "extra_cells"
	IssueStraySeparator   IssueKind = "stray_separator"
	IssueUnclosedFence    IssueKind = "unclosed_fence"
	IssueRenderMismatch   IssueKind = "render_mismatch" // renderer disagrees with the line scan
)

// Issue is one structural anomaly. Fixable issues are repaired by the
// postprocessor; the others are only reported.
type Issue struct {
	Line    int       `json:"line"` // 1-based
	Kind    IssueKind `json:"kind"`
	Message string    `json:"message"`
	Fixable bool      `json:"fixable"`
}

// String returns a human readable form of the issue
func (i Issue) String() string {
	return fmt.Sprintf("line %d: %s (%s)", i.Line, i.Message, i.Kind)
}

// ValidateTables checks every table block of text against its header.
func ValidateTables(text string) []Issue {
	lines := Classify(text)
	var issues []Issue

	for _, t := range Tables(lines) {
		if !t.Header(lines) {
			issues = append(issues, Issue{
				Line:    t.Start + 1,
				Kind:    IssueStraySeparator,
				Message: "separator line without a header row",
			})
			continue
		}

		cols := Columns(lines[t.Start].Text)
		if t.Separator < 0 {
			issues = append(issues, Issue{
				Line:    t.Start + 1,
				Kind:    IssueMissingSeparator,
				Message: fmt.Sprintf("header row with %d columns has no separator", cols),
				Fixable: true,
			})
		} else if got := Columns(lines[t.Separator].Text); got != cols {
			issues = append(issues, Issue{
				Line:    t.Separator + 1,
				Kind:    IssueColumnMismatch,
				Message: fmt.Sprintf("separator has %d columns, header has %d", got, cols),
				Fixable: true,
			})
		}

		for i := t.Start + 1; i < t.End; i++ {
			if i == t.Separator {
				continue
			}
			l := lines[i]
			if l.Kind == LineTableSeparator {
				issues = append(issues, Issue{
					Line:    i + 1,
					Kind:    IssueStraySeparator,
					Message: "separator line inside table body",
				})
				continue
			}
			switch got := Columns(l.Text); {
			case got < cols:
				issues = append(issues, Issue{
					Line:    i + 1,
					Kind:    IssueShortRow,
					Message: fmt.Sprintf("row has %d cells, header has %d", got, cols),
					Fixable: true,
				})
			case got > cols:
				issues = append(issues, Issue{
					Line:    i + 1,
					Kind:    IssueExtraCells,
					Message: fmt.Sprintf("row has %d cells, header has %d", got, cols),
				})
			}
		}
	}

	if n := len(lines); n > 0 && unclosedFence(lines) {
		issues = append(issues, Issue{
			Line:    n,
			Kind:    IssueUnclosedFence,
			Message: "fenced code block is never closed",
		})
	}
	return issues
}

func unclosedFence(lines []Line) bool {
	open := false
	for _, l := range lines {
		if l.Kind == LineFence {
			open = !open
		}
	}
	return open
}
