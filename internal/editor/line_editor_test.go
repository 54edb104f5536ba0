package editor

import (
	"os"
	"path/filepath"
	"testing"

	"md-translator/internal/types"
)

func writeTemp(t *testing.T, content []byte) (string, string) {
	t.Helper()
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "note.md")
	if err := os.WriteFile(testFile, content, 0644); err != nil {
		t.Fatal(err)
	}
	return tmpDir, testFile
}

func TestFileEditor_Selection(t *testing.T) {
	_, testFile := writeTemp(t, []byte("line1\nline2\nline3\nline4\nline5\n"))
	ed, err := NewFileEditor(testFile, nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		start   int
		end     int
		want    string
		wantErr bool
	}{
		{name: "all lines", start: 1, end: -1, want: "line1\nline2\nline3\nline4\nline5"},
		{name: "first three", start: 1, end: 3, want: "line1\nline2\nline3"},
		{name: "middle", start: 2, end: 4, want: "line2\nline3\nline4"},
		{name: "last line", start: 5, end: 5, want: "line5"},
		{name: "start zero", start: 0, end: 2, wantErr: true},
		{name: "past end", start: 4, end: 6, wantErr: true},
		{name: "reversed", start: 3, end: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ed.ClearSelection()
			err := ed.SelectLines(tt.start, tt.end)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SelectLines() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if types.CodeOf(err) != types.ErrInvalidInput {
					t.Errorf("error code = %s", types.CodeOf(err))
				}
				return
			}
			got, err := ed.Selection()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Selection() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileEditor_NoSelection(t *testing.T) {
	_, testFile := writeTemp(t, []byte("a\nb\n"))
	ed, _ := NewFileEditor(testFile, nil)

	sel, err := ed.Selection()
	if err != nil || sel != "" {
		t.Errorf("Selection() = %q, %v", sel, err)
	}
	if err := ed.ReplaceSelection("x"); types.CodeOf(err) != types.ErrInvalidInput {
		t.Errorf("ReplaceSelection() without selection error = %v", err)
	}
}

func TestFileEditor_ReplaceSelection(t *testing.T) {
	tests := []struct {
		name     string
		start    int
		end      int
		text     string
		expected string
	}{
		{"same line count", 2, 3, "B\nC", "a\nB\nC\nd\n"},
		{"fewer lines", 1, 3, "ABC", "ABC\nd\n"},
		{"more lines", 4, 4, "d1\nd2", "a\nb\nc\nd1\nd2\n"},
		{"crlf input normalized", 2, 2, "X\r\nY", "a\nX\nY\nc\nd\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, testFile := writeTemp(t, []byte("a\nb\nc\nd\n"))
			ed, _ := NewFileEditor(testFile, nil)
			if err := ed.SelectLines(tt.start, tt.end); err != nil {
				t.Fatal(err)
			}
			if err := ed.ReplaceSelection(tt.text); err != nil {
				t.Fatalf("ReplaceSelection() error = %v", err)
			}
			data, _ := os.ReadFile(testFile)
			if string(data) != tt.expected {
				t.Errorf("file = %q, want %q", data, tt.expected)
			}
			sel, _ := ed.Selection()
			if sel != normalizeNewlines(tt.text) {
				t.Errorf("selection after replace = %q", sel)
			}
		})
	}
}

func TestFileEditor_SetFullText(t *testing.T) {
	tmpDir, testFile := writeTemp(t, []byte("old\n"))
	backups := NewBackupManager(filepath.Join(tmpDir, ".backups"))
	ed, _ := NewFileEditor(testFile, backups)

	if err := ed.SelectLines(1, 1); err != nil {
		t.Fatal(err)
	}
	if err := ed.SetFullText("new\ntext"); err != nil {
		t.Fatalf("SetFullText() error = %v", err)
	}

	data, _ := os.ReadFile(testFile)
	if string(data) != "new\ntext" {
		t.Errorf("file = %q", data)
	}
	if sel, _ := ed.Selection(); sel != "" {
		t.Errorf("selection should be cleared, got %q", sel)
	}

	list, err := backups.ListBackups(testFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 backup, got %d", len(list))
	}
	old, _ := os.ReadFile(list[0])
	if string(old) != "old\n" {
		t.Errorf("backup content = %q", old)
	}
}

func TestFileEditor_PreservesLineEndings(t *testing.T) {
	_, testFile := writeTemp(t, []byte("| A | B |\r\n|---|---|\r\n| 1 | 2 |\r\n"))
	ed, _ := NewFileEditor(testFile, nil)

	text, err := ed.FullText()
	if err != nil {
		t.Fatal(err)
	}
	if text != "| A | B |\n|---|---|\n| 1 | 2 |\n" {
		t.Errorf("FullText() = %q", text)
	}

	if err := ed.SetFullText("| X | Y |\n|---|---|\n| 1 | 2 |\n"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(testFile)
	if string(data) != "| X | Y |\r\n|---|---|\r\n| 1 | 2 |\r\n" {
		t.Errorf("file = %q", data)
	}
}

func TestFileEditor_PreservesEncoding(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
	}{
		{"utf-8 bom", EncodingUTF8BOM},
		{"gbk", EncodingGBK},
		{"utf-16le", EncodingUTF16LE},
		{"utf-16be", EncodingUTF16BE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Encode("数据库\n设置\n", tt.encoding)
			if err != nil {
				t.Fatal(err)
			}
			_, testFile := writeTemp(t, raw)
			ed, _ := NewFileEditor(testFile, nil)

			if err := ed.SelectLines(2, 2); err != nil {
				t.Fatal(err)
			}
			if sel, _ := ed.Selection(); sel != "设置" {
				t.Fatalf("Selection() = %q", sel)
			}
			if err := ed.ReplaceSelection("設定"); err != nil {
				t.Fatal(err)
			}

			data, _ := os.ReadFile(testFile)
			if got := DetectEncoding(data); got != tt.encoding {
				t.Errorf("encoding after write = %s, want %s", got, tt.encoding)
			}
			text, _ := Decode(data, tt.encoding)
			if text != "数据库\n設定\n" {
				t.Errorf("content = %q", text)
			}
		})
	}
}

func TestNewFileEditor_Errors(t *testing.T) {
	tmpDir := t.TempDir()
	if _, err := NewFileEditor(filepath.Join(tmpDir, "missing.md"), nil); types.CodeOf(err) != types.ErrFileNotFound {
		t.Errorf("missing file error = %v", err)
	}
	if _, err := NewFileEditor(tmpDir, nil); types.CodeOf(err) != types.ErrInvalidInput {
		t.Errorf("directory error = %v", err)
	}
}

func TestFileEditor_CountLines(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"", 1},
		{"one", 1},
		{"one\n", 1},
		{"one\ntwo\n\n", 3},
	}
	for _, tt := range tests {
		_, testFile := writeTemp(t, []byte(tt.content))
		ed, _ := NewFileEditor(testFile, nil)
		got, err := ed.CountLines()
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("CountLines(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}
