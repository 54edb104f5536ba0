package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Editor = (*Buffer)(nil)
	_ Editor = (*FileEditor)(nil)
)

func TestBuffer(t *testing.T) {
	b := NewBuffer("hello world")

	sel, err := b.Selection()
	require.NoError(t, err)
	assert.Empty(t, sel)

	require.NoError(t, b.SelectText("world"))
	sel, _ = b.Selection()
	assert.Equal(t, "world", sel)

	require.NoError(t, b.ReplaceSelection("世界"))
	text, _ := b.FullText()
	assert.Equal(t, "hello 世界", text)
	sel, _ = b.Selection()
	assert.Equal(t, "世界", sel)

	require.NoError(t, b.SetFullText("reset"))
	sel, _ = b.Selection()
	assert.Empty(t, sel)
}

func TestBuffer_SelectErrors(t *testing.T) {
	b := NewBuffer("abc")
	assert.Error(t, b.Select(2, 1))
	assert.Error(t, b.Select(0, 4))
	assert.Error(t, b.Select(-1, 1))
	assert.Error(t, b.SelectText("zz"))
	assert.Error(t, b.SelectText(""))
}
