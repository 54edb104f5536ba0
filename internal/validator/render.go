package validator

import (
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// gfm 只启用表格扩展
var gfm = goldmark.New(goldmark.WithExtensions(extension.Table))

// RenderedTables parses src as GitHub Flavored Markdown and returns the
// column count of every table a renderer would draw, in document order.
func RenderedTables(src string) []int {
	source := []byte(src)
	doc := gfm.Parser().Parse(text.NewReader(source))

	var cols []int
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*east.Table); ok {
			cols = append(cols, len(t.Alignments))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return cols
}

// CheckRendered compares the line scan with a GFM parse. Every block the
// line scan treats as a table (header row plus separator) should render
// as a table with the header's column count, and nothing else should.
func CheckRendered(src string) []Issue {
	lines := Classify(src)

	type scanned struct {
		line int
		cols int
	}
	var want []scanned
	for _, t := range Tables(lines) {
		if t.Header(lines) && t.Separator >= 0 {
			want = append(want, scanned{line: t.Start + 1, cols: Columns(lines[t.Start].Text)})
		}
	}
	got := RenderedTables(src)

	var issues []Issue
	for i, w := range want {
		if i >= len(got) {
			issues = append(issues, Issue{
				Line:    w.line,
				Kind:    IssueRenderMismatch,
				Message: "table is not rendered as a table",
			})
			continue
		}
		if got[i] != w.cols {
			issues = append(issues, Issue{
				Line:    w.line,
				Kind:    IssueRenderMismatch,
				Message: fmt.Sprintf("table renders with %d columns, header has %d", got[i], w.cols),
			})
		}
	}
	if extra := len(got) - len(want); extra > 0 {
		issues = append(issues, Issue{
			Line:    len(lines),
			Kind:    IssueRenderMismatch,
			Message: fmt.Sprintf("%d table(s) render that the line scan does not see", extra),
		})
	}
	return issues
}
