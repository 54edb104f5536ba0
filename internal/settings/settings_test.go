package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerWithPath(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "settings.json")
	m := NewManagerWithPath(filePath)

	require.NotNil(t, m)
	assert.Equal(t, filePath, m.GetFilePath())
	assert.Empty(t, m.Names())
}

func TestSetCredentialPersists(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "sub", "settings.json")
	m := NewManagerWithPath(filePath)

	require.NoError(t, m.SetCredential(CredentialDeepL, "key-123"))
	require.NoError(t, m.SetCredential(CredentialGemini, "g-456"))

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded := NewManagerWithPath(filePath)
	assert.Equal(t, "key-123", reloaded.Credential(CredentialDeepL))
	assert.Equal(t, []string{CredentialDeepL, CredentialGemini}, reloaded.Names())

	require.NoError(t, reloaded.SetCredential(CredentialDeepL, ""))
	assert.Equal(t, "", NewManagerWithPath(filePath).Credential(CredentialDeepL))
}

func TestLoadInvalidJSON(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(filePath, []byte("{not json"), 0600))

	m := &Manager{filePath: filePath, settings: emptySettings()}
	assert.Error(t, m.Load())
	assert.Equal(t, "", m.Credential(CredentialOpenAI))
}
