package translator

import (
	"testing"

	"md-translator/internal/validator"
)

// ============================================================
// Separator synthesis
// ============================================================

func TestSynthesizeSeparator(t *testing.T) {
	tests := []struct {
		name     string
		cols     int
		aligns   []string
		expected string
	}{
		{"two columns", 2, nil, "|---|---|"},
		{"keeps alignment", 3, []string{" :-- ", " :-: ", "--:"}, "|:---|:---:|---:|"},
		{"more columns than aligns", 3, []string{":-"}, "|:---|---|---|"},
		{"single colon", 1, []string{":"}, "|:---|"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := synthesizeSeparator(tt.cols, tt.aligns); got != tt.expected {
				t.Errorf("synthesizeSeparator() = %q, want %q", got, tt.expected)
			}
		})
	}
}

// ============================================================
// Repair
// ============================================================

func TestRepair(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		kinds    []validator.IssueKind
	}{
		{
			name:     "missing separator",
			input:    "| A | B |\n| 1 | 2 |",
			expected: "| A | B |\n|---|---|\n| 1 | 2 |",
			kinds:    []validator.IssueKind{validator.IssueMissingSeparator},
		},
		{
			name:     "header alone at end of document",
			input:    "intro\n\n| A | B | C |",
			expected: "intro\n\n| A | B | C |\n|---|---|---|",
			kinds:    []validator.IssueKind{validator.IssueMissingSeparator},
		},
		{
			name:     "separator column drift",
			input:    "| A | B |\n|:--|\n| 1 | 2 |",
			expected: "| A | B |\n|:---|---|\n| 1 | 2 |",
			kinds:    []validator.IssueKind{validator.IssueColumnMismatch},
		},
		{
			name:     "short row padded",
			input:    "| A | B | C |\n|---|---|---|\n| 1 | 2 |",
			expected: "| A | B | C |\n|---|---|---|\n| 1 | 2 |  |",
			kinds:    []validator.IssueKind{validator.IssueShortRow},
		},
		{
			name:     "extra cells reported only",
			input:    "| A | B |\n|---|---|\n| 1 | 2 | 3 |",
			expected: "| A | B |\n|---|---|\n| 1 | 2 | 3 |",
			kinds:    []validator.IssueKind{validator.IssueExtraCells},
		},
		{
			name:     "stray separator reported only",
			input:    "text\n|---|---|\nmore",
			expected: "text\n|---|---|\nmore",
			kinds:    []validator.IssueKind{validator.IssueStraySeparator},
		},
		{
			name:     "tables in code fences are ignored",
			input:    "```\n| A | B |\n| 1 | 2 |\n```",
			expected: "```\n| A | B |\n| 1 | 2 |\n```",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, issues := Repair(tt.input)
			if got != tt.expected {
				t.Errorf("Repair() = %q, want %q", got, tt.expected)
			}
			if len(issues) != len(tt.kinds) {
				t.Fatalf("Repair() issues = %v, want kinds %v", issues, tt.kinds)
			}
			for i, is := range issues {
				if is.Kind != tt.kinds[i] {
					t.Errorf("issue %d kind = %s, want %s", i, is.Kind, tt.kinds[i])
				}
			}
		})
	}
}

func TestRepair_MissingSeparatorLine(t *testing.T) {
	_, issues := Repair("para\n\n| A | B |\n| 1 | 2 |")
	if len(issues) != 1 || issues[0].Line != 3 || !issues[0].Fixable {
		t.Errorf("issues = %v", issues)
	}
}

func TestRepair_CRLF(t *testing.T) {
	got, issues := Repair("| A | B |\r\n| 1 |\r\n")
	want := "| A | B |\r\n|---|---|\r\n| 1 |  |\r\n"
	if got != want {
		t.Errorf("Repair() = %q, want %q", got, want)
	}
	if len(issues) != 2 {
		t.Errorf("issues = %v, want missing separator and short row", issues)
	}
	if again, _ := Repair(got); again != got {
		t.Errorf("Repair not idempotent on CRLF: %q", again)
	}
}

func TestRepair_Idempotent(t *testing.T) {
	inputs := []string{
		"| A | B |\n|---|---|\n| 1 | 2 |",
		"| A | B |\n| :-: | --: |\n| 1 | 2 |\n\ntext\n\n| C | D | E |\n|---|---|---|",
		"| A | B |\n| 1 | 2 |",
		"| A | B | C |\n|--|\n| 1 |  2 |",
		"no tables here",
	}
	for _, in := range inputs {
		once, _ := Repair(in)
		twice, issues := Repair(once)
		if twice != once {
			t.Errorf("Repair not idempotent:\n%q\n%q", once, twice)
		}
		for _, is := range issues {
			if is.Fixable {
				t.Errorf("fixable issue left after repair: %v", is)
			}
		}
	}
}

func TestRepair_WellFormedUnchanged(t *testing.T) {
	in := "# Doc\n\n| A | B |\n| :-- | --: |\n| 1 | 2 |\n| 3 | 4 |\n"
	got, issues := Repair(in)
	if got != in {
		t.Errorf("Repair() changed a well-formed table: %q", got)
	}
	if len(issues) != 0 {
		t.Errorf("unexpected issues: %v", issues)
	}
}
