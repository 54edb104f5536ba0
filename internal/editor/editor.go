package editor

import (
	"strings"
	"sync"

	"md-translator/internal/types"
)

// Editor is the host editor buffer. Text is read at invocation time and
// written back once, after an operation succeeds.
type Editor interface {
	FullText() (string, error)
	Selection() (string, error)
	SetFullText(text string) error
	ReplaceSelection(text string) error
}

// Buffer is an in-memory Editor. The selection is a byte range.
type Buffer struct {
	mu       sync.Mutex
	text     string
	selStart int
	selEnd   int
}

// NewBuffer creates a buffer with no selection.
func NewBuffer(text string) *Buffer {
	return &Buffer{text: text}
}

// Select sets the selection to text[start:end].
func (b *Buffer) Select(start, end int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if start < 0 || end < start || end > len(b.text) {
		return types.NewAppError(types.ErrInvalidInput, "selection out of range", nil)
	}
	b.selStart, b.selEnd = start, end
	return nil
}

// SelectText selects the first occurrence of s.
func (b *Buffer) SelectText(s string) error {
	b.mu.Lock()
	i := strings.Index(b.text, s)
	b.mu.Unlock()
	if i < 0 || s == "" {
		return types.NewAppError(types.ErrInvalidInput, "text not found in buffer", nil)
	}
	return b.Select(i, i+len(s))
}

func (b *Buffer) FullText() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text, nil
}

func (b *Buffer) Selection() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text[b.selStart:b.selEnd], nil
}

// SetFullText replaces the buffer and clears the selection.
func (b *Buffer) SetFullText(text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
	b.selStart, b.selEnd = 0, 0
	return nil
}

// ReplaceSelection swaps the selected range for text and selects the
// replacement.
func (b *Buffer) ReplaceSelection(text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = b.text[:b.selStart] + text + b.text[b.selEnd:]
	b.selEnd = b.selStart + len(text)
	return nil
}
