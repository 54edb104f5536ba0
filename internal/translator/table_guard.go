package translator

import (
	"strings"

	"md-translator/internal/logger"
	"md-translator/internal/validator"
)

// guardTables hides table grammar from the transform. Separator lines are
// replaced by a single token line and recorded in the separator set; every
// unescaped pipe of a content row becomes its own pipe token. Lines inside
// fenced code are left alone. It runs on the raw input, so span offsets
// are taken directly from the line positions.
func (p *protection) guardTables(text string) string {
	lines := validator.Classify(text)
	out := make([]string, len(lines))

	offset := 0
	rows := 0
	for i, l := range lines {
		switch l.Kind {
		case validator.LineTableSeparator:
			tok, n := p.gen.Next(KindTableSeparator)
			p.seps.Put(SeparatorEntry{
				Token:   tok,
				Line:    l.Text,
				Index:   i,
				Columns: validator.Columns(l.Text),
				Ordinal: n,
			})
			p.spans[tok] = Span{Kind: KindTableSeparator, Original: l.Text, Start: offset, End: offset + len(l.Text)}
			out[i] = tok

		case validator.LineTableRow:
			rows++
			var sb strings.Builder
			last := 0
			for _, at := range validator.PipeOffsets(l.Text) {
				tok, n := p.gen.Next(KindTablePipe)
				p.vault.Put(Entry{Token: tok, Kind: KindTablePipe, Original: "|", Ordinal: n})
				p.spans[tok] = Span{Kind: KindTablePipe, Original: "|", Start: offset + at, End: offset + at + 1}
				sb.WriteString(l.Text[last:at])
				sb.WriteString(tok)
				last = at + 1
			}
			sb.WriteString(l.Text[last:])
			out[i] = sb.String()

		default:
			out[i] = l.Text
		}
		offset += len(l.Text) + 1
	}

	if p.seps.Len() > 0 || rows > 0 {
		logger.Debug("table structure guarded",
			logger.Int("separators", p.seps.Len()),
			logger.Int("rows", rows))
	}
	return strings.Join(out, "\n")
}
