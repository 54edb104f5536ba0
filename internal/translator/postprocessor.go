package translator

import (
	"strings"

	"md-translator/internal/logger"
	"md-translator/internal/validator"
)

// synthesizeSeparator builds a separator for cols columns. aligns holds the
// existing separator cells whose colons should be kept, if any.
func synthesizeSeparator(cols int, aligns []string) string {
	var sb strings.Builder
	sb.WriteByte('|')
	for i := 0; i < cols; i++ {
		cell := "---"
		if i < len(aligns) {
			a := strings.TrimSpace(aligns[i])
			left, right := strings.HasPrefix(a, ":"), strings.HasSuffix(a, ":")
			switch {
			case left && right && len(a) > 1:
				cell = ":---:"
			case left:
				cell = ":---"
			case right:
				cell = "---:"
			}
		}
		sb.WriteString(cell)
		sb.WriteByte('|')
	}
	return sb.String()
}

// padRow appends empty cells until the row has cols columns.
func padRow(row string, cols int) string {
	missing := cols - validator.Columns(row)
	if missing <= 0 {
		return row
	}
	return strings.TrimRight(row, " \t") + strings.Repeat("  |", missing)
}

// Repair fixes table structure after restoration, using each header row's
// pipe count as ground truth: a missing separator is synthesized (also at
// the end of the document), a separator with the wrong column count is
// regenerated, and short rows are padded. Rows with extra cells and stray
// separators are only reported. Running it on well-formed tables changes
// nothing.
func Repair(text string) (string, []validator.Issue) {
	src := text
	text, crlf := toLF(text)
	lines := validator.Classify(text)
	tables := validator.Tables(lines)
	if len(tables) == 0 {
		return src, nil
	}

	var issues []validator.Issue
	out := make([]string, 0, len(lines)+len(tables))
	next := 0
	for _, t := range tables {
		for ; next < t.Start; next++ {
			out = append(out, lines[next].Text)
		}
		next = t.End

		if !t.Header(lines) {
			issues = append(issues, validator.Issue{
				Line:    t.Start + 1,
				Kind:    validator.IssueStraySeparator,
				Message: "separator line without a header row",
			})
			for i := t.Start; i < t.End; i++ {
				out = append(out, lines[i].Text)
			}
			continue
		}

		header := lines[t.Start].Text
		cols := validator.Columns(header)
		out = append(out, header)

		switch {
		case t.Separator < 0:
			out = append(out, synthesizeSeparator(cols, nil))
			issues = append(issues, validator.Issue{
				Line:    t.Start + 1,
				Kind:    validator.IssueMissingSeparator,
				Message: "separator synthesized from header",
				Fixable: true,
			})
		case validator.Columns(lines[t.Separator].Text) != cols:
			out = append(out, synthesizeSeparator(cols, validator.Cells(lines[t.Separator].Text)))
			issues = append(issues, validator.Issue{
				Line:    t.Separator + 1,
				Kind:    validator.IssueColumnMismatch,
				Message: "separator regenerated to match header",
				Fixable: true,
			})
		default:
			out = append(out, lines[t.Separator].Text)
		}

		body := t.Start + 1
		if t.Separator >= 0 {
			body = t.Separator + 1
		}
		for i := body; i < t.End; i++ {
			l := lines[i]
			if l.Kind == validator.LineTableSeparator {
				issues = append(issues, validator.Issue{
					Line:    i + 1,
					Kind:    validator.IssueStraySeparator,
					Message: "separator line inside table body",
				})
				out = append(out, l.Text)
				continue
			}
			switch got := validator.Columns(l.Text); {
			case got < cols:
				out = append(out, padRow(l.Text, cols))
				issues = append(issues, validator.Issue{
					Line:    i + 1,
					Kind:    validator.IssueShortRow,
					Message: "row padded to header width",
					Fixable: true,
				})
			case got > cols:
				out = append(out, l.Text)
				issues = append(issues, validator.Issue{
					Line:    i + 1,
					Kind:    validator.IssueExtraCells,
					Message: "row has more cells than the header",
				})
			default:
				out = append(out, l.Text)
			}
		}
	}
	for ; next < len(lines); next++ {
		out = append(out, lines[next].Text)
	}

	if len(issues) > 0 {
		fixed := 0
		for _, is := range issues {
			if is.Fixable {
				fixed++
			}
		}
		logger.Info("table structure repaired",
			logger.Int("issues", len(issues)),
			logger.Int("fixed", fixed))
	}
	return withLineEnding(strings.Join(out, "\n"), crlf), issues
}
