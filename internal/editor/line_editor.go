package editor

import (
	"fmt"
	"os"
	"strings"

	"md-translator/internal/logger"
	"md-translator/internal/types"
)

// FileEditor is an Editor over a file on disk. The selection is an
// optional 1-based, inclusive line range. Content is decoded from the
// file's own encoding and written back in it, with the original line
// endings, after a backup.
type FileEditor struct {
	path    string
	backups *BackupManager

	// line range; zero means no selection
	start int
	end   int
}

// NewFileEditor opens path for editing. A nil backup manager disables
// backups.
func NewFileEditor(path string, backups *BackupManager) (*FileEditor, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewAppErrorWithDetails(types.ErrFileNotFound, "file does not exist", path, err)
		}
		return nil, types.NewAppError(types.ErrInternal, "failed to stat file", err)
	}
	if info.IsDir() {
		return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput, "path is a directory", path, nil)
	}
	return &FileEditor{path: path, backups: backups}, nil
}

// Path returns the edited file.
func (e *FileEditor) Path() string {
	return e.path
}

// SelectLines selects lines start..end (1-based, inclusive). end -1 means
// the last line.
func (e *FileEditor) SelectLines(start, end int) error {
	doc, err := e.load()
	if err != nil {
		return err
	}
	total := len(doc.lines)
	if end == -1 {
		end = total
	}
	if start < 1 || end < start || end > total {
		return types.NewAppErrorWithDetails(types.ErrInvalidInput, "invalid line range",
			rangeString(start, end, total), nil)
	}
	e.start, e.end = start, end
	return nil
}

// ClearSelection drops the line selection.
func (e *FileEditor) ClearSelection() {
	e.start, e.end = 0, 0
}

func (e *FileEditor) FullText() (string, error) {
	doc, err := e.load()
	if err != nil {
		return "", err
	}
	return doc.text(), nil
}

func (e *FileEditor) Selection() (string, error) {
	if e.start == 0 {
		return "", nil
	}
	doc, err := e.load()
	if err != nil {
		return "", err
	}
	if e.end > len(doc.lines) {
		return "", types.NewAppError(types.ErrInvalidInput, "selection is past the end of the file", nil)
	}
	return strings.Join(doc.lines[e.start-1:e.end], "\n"), nil
}

func (e *FileEditor) SetFullText(text string) error {
	doc, err := e.load()
	if err != nil {
		return err
	}
	next := parseLines(text)
	next.encoding, next.crlf = doc.encoding, doc.crlf
	if err := e.write(next); err != nil {
		return err
	}
	e.ClearSelection()
	return nil
}

// ReplaceSelection replaces the selected lines with text, which may span
// a different number of lines; the selection then covers the new lines.
func (e *FileEditor) ReplaceSelection(text string) error {
	if e.start == 0 {
		return types.NewAppError(types.ErrInvalidInput, "no selection to replace", nil)
	}
	doc, err := e.load()
	if err != nil {
		return err
	}
	if e.end > len(doc.lines) {
		return types.NewAppError(types.ErrInvalidInput, "selection is past the end of the file", nil)
	}

	repl := strings.Split(normalizeNewlines(text), "\n")
	lines := make([]string, 0, len(doc.lines)-(e.end-e.start+1)+len(repl))
	lines = append(lines, doc.lines[:e.start-1]...)
	lines = append(lines, repl...)
	lines = append(lines, doc.lines[e.end:]...)
	doc.lines = lines

	if err := e.write(doc); err != nil {
		return err
	}
	e.end = e.start + len(repl) - 1
	return nil
}

// CountLines returns the number of lines in the file.
func (e *FileEditor) CountLines() (int, error) {
	doc, err := e.load()
	if err != nil {
		return 0, err
	}
	return len(doc.lines), nil
}

// fileDoc is the decoded file split into lines.
type fileDoc struct {
	lines        []string
	finalNewline bool
	crlf         bool
	encoding     string
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func parseLines(content string) *fileDoc {
	doc := &fileDoc{crlf: strings.Contains(content, "\r\n")}
	content = normalizeNewlines(content)
	if strings.HasSuffix(content, "\n") {
		doc.finalNewline = true
		content = content[:len(content)-1]
	}
	doc.lines = strings.Split(content, "\n")
	return doc
}

func (d *fileDoc) text() string {
	s := strings.Join(d.lines, "\n")
	if d.finalNewline {
		s += "\n"
	}
	return s
}

func (d *fileDoc) bytesOnDisk() ([]byte, error) {
	s := d.text()
	if d.crlf {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	return Encode(s, d.encoding)
}

func (e *FileEditor) load() (*fileDoc, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		logger.Error("failed to read file", err, logger.String("path", e.path))
		return nil, types.NewAppErrorWithDetails(types.ErrFileNotFound, "failed to read file", e.path, err)
	}

	enc := DetectEncoding(data)
	if enc == EncodingUnknown {
		return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput, "unrecognized file encoding", e.path, nil)
	}
	content, err := Decode(data, enc)
	if err != nil {
		return nil, err
	}

	doc := parseLines(content)
	doc.encoding = enc
	return doc, nil
}

// write backs the file up, writes doc and restores the backup on failure.
func (e *FileEditor) write(doc *fileDoc) error {
	data, err := doc.bytesOnDisk()
	if err != nil {
		return err
	}

	var backup string
	if e.backups != nil {
		if backup, err = e.backups.CreateBackup(e.path); err != nil {
			return err
		}
	}

	info, err := os.Stat(e.path)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to stat file", err)
	}
	if err := os.WriteFile(e.path, data, info.Mode().Perm()); err != nil {
		logger.Error("failed to write file", err, logger.String("path", e.path))
		if backup != "" {
			if rerr := e.backups.Restore(backup, e.path); rerr != nil {
				logger.Error("failed to restore backup", rerr, logger.String("backup", backup))
			}
		}
		return types.NewAppError(types.ErrInternal, "failed to write file", err)
	}

	if e.backups != nil {
		_ = e.backups.CleanupBackups(e.path, DefaultKeepBackups)
	}
	logger.Info("file updated",
		logger.String("path", e.path),
		logger.String("encoding", doc.encoding),
		logger.Int("lines", len(doc.lines)))
	return nil
}

func rangeString(start, end, total int) string {
	return fmt.Sprintf("lines %d-%d of %d", start, end, total)
}
