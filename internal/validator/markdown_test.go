package validator

import (
	"testing"
)

// =============================================================================
// Line classification
// =============================================================================

func TestIsSeparator(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"|---|---|", true},
		{"| :--- | ---: |", true},
		{"|:-:|", true},
		{"|---|---|  ", true},
		{"|---|---|\r", true},
		{"|   |   |", false},
		{"---", false},
		{"| a | b |", false},
		{" |---|", false},
	}
	for _, tt := range tests {
		if got := IsSeparator(tt.line); got != tt.want {
			t.Errorf("IsSeparator(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestIsTableRow(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"| a | b |", true},
		{"| a | b |\r", true},
		{"| a |", false},
		{"|---|---|", false},
		{"a | b", false},
		{`| a \| b |`, false},
		{`| a \| b | c |`, true},
	}
	for _, tt := range tests {
		if got := IsTableRow(tt.line); got != tt.want {
			t.Errorf("IsTableRow(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestCountPipesSkipsEscaped(t *testing.T) {
	if got := CountPipes(`| a \| b | c |`); got != 3 {
		t.Errorf("CountPipes = %d, want 3", got)
	}
	if got := CountPipes(`\\|`); got != 1 {
		t.Errorf("escaped backslash before pipe: got %d, want 1", got)
	}
}

func TestCells(t *testing.T) {
	cells := Cells("| a | b c |  ")
	if len(cells) != 2 || cells[0] != " a " || cells[1] != " b c " {
		t.Errorf("unexpected cells %q", cells)
	}
	if Cells("no pipes") != nil {
		t.Error("expected nil for non-row")
	}
	if cells := Cells("| a | b |\r"); len(cells) != 2 || cells[1] != " b " {
		t.Errorf("CRLF row cells %q", cells)
	}
}

func TestClassifyCRLF(t *testing.T) {
	lines := Classify("| a | b |\r\n|---|---|\r\n| 1 | 2 |\r\n")
	want := []LineKind{LineTableRow, LineTableSeparator, LineTableRow, LineBlank}
	for i, k := range want {
		if lines[i].Kind != k {
			t.Errorf("line %d kind = %v, want %v", i, lines[i].Kind, k)
		}
	}
	if lines[0].Pipes != 3 {
		t.Errorf("pipes = %d, want 3", lines[0].Pipes)
	}

	issues := ValidateTables("| A | B |\r\n| 1 | 2 |\r\n")
	if len(issues) != 1 || issues[0].Kind != IssueMissingSeparator {
		t.Errorf("ValidateTables(CRLF) = %v", issues)
	}
}

func TestClassifyFenceAware(t *testing.T) {
	text := "intro\n\n```md\n| a | b |\n|---|---|\n```\n| x | y |\n|---|---|"
	lines := Classify(text)

	want := []LineKind{LineProse, LineBlank, LineFence, LineCode, LineCode, LineFence, LineTableRow, LineTableSeparator}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i, k := range want {
		if lines[i].Kind != k {
			t.Errorf("line %d: got %s, want %s", i, lines[i].Kind, k)
		}
	}
	if lines[6].Pipes != 3 {
		t.Errorf("expected 3 pipes on header, got %d", lines[6].Pipes)
	}
}

func TestClassifyFenceNeedsMatchingCloser(t *testing.T) {
	lines := Classify("~~~\n```\n| a | b |\n~~~")
	if lines[1].Kind != LineCode || lines[2].Kind != LineCode || lines[3].Kind != LineFence {
		t.Errorf("unexpected kinds: %v %v %v", lines[1].Kind, lines[2].Kind, lines[3].Kind)
	}
}

// =============================================================================
// Table validation
// =============================================================================

func TestTables(t *testing.T) {
	lines := Classify("| a | b |\n|---|---|\n| 1 | 2 |\n\n| c | d |\n| 3 | 4 |")
	tables := Tables(lines)
	if len(tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(tables))
	}
	if tables[0].Separator != 1 || tables[0].End != 3 {
		t.Errorf("unexpected first table %+v", tables[0])
	}
	if tables[1].Separator != -1 || tables[1].Start != 4 {
		t.Errorf("unexpected second table %+v", tables[1])
	}
}

func TestValidateTables(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []IssueKind
	}{
		{"well formed", "| a | b |\n|---|---|\n| 1 | 2 |", nil},
		{"missing separator", "| a | b |\n| 1 | 2 |", []IssueKind{IssueMissingSeparator}},
		{"separator mismatch", "| a | b |\n|---|\n| 1 | 2 |", []IssueKind{IssueColumnMismatch}},
		{"short row", "| a | b | c |\n|---|---|---|\n| 1 | 2 |", []IssueKind{IssueShortRow}},
		{"extra cells", "| a | b |\n|---|---|\n| 1 | 2 | 3 |", []IssueKind{IssueExtraCells}},
		{"stray separator", "|---|---|\n| 1 | 2 |", []IssueKind{IssueStraySeparator}},
		{"unclosed fence", "```\ncode", []IssueKind{IssueUnclosedFence}},
		{"table inside fence", "```\n| a | b |\n| 1 |\n```", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := ValidateTables(tt.text)
			if len(issues) != len(tt.want) {
				t.Fatalf("got %v, want kinds %v", issues, tt.want)
			}
			for i, k := range tt.want {
				if issues[i].Kind != k {
					t.Errorf("issue %d: got %s, want %s", i, issues[i].Kind, k)
				}
			}
		})
	}
}

func TestIssueFixableFlags(t *testing.T) {
	issues := ValidateTables("| a | b |\n| 1 | 2 | 3 |")
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %v", issues)
	}
	if !issues[0].Fixable || issues[1].Fixable {
		t.Errorf("unexpected fixable flags: %+v", issues)
	}
	if issues[0].Line != 1 || issues[1].Line != 2 {
		t.Errorf("unexpected line numbers: %+v", issues)
	}
}
