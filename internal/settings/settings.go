// Package settings stores backend credentials in a local settings.json,
// kept apart from the shareable configuration file.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	// SettingsFileName is the name of the settings file
	SettingsFileName = "settings.json"
)

// Credential names understood by the config layer.
const (
	CredentialDeepL  = "deepl"
	CredentialOpenAI = "openai"
	CredentialGemini = "gemini"
)

// LocalSettings is the on-disk shape of settings.json.
type LocalSettings struct {
	Credentials map[string]string `json:"credentials"`
}

// Manager manages the local settings file
type Manager struct {
	filePath string
	settings *LocalSettings
	mu       sync.RWMutex
}

// NewManager creates a manager for settings.json under the user config dir.
func NewManager() (*Manager, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return NewManagerWithPath(filepath.Join(dir, "md-translator", SettingsFileName)), nil
}

// NewManagerWithPath creates a manager for a custom path. A missing or
// unreadable file yields empty settings.
func NewManagerWithPath(filePath string) *Manager {
	m := &Manager{
		filePath: filePath,
		settings: emptySettings(),
	}
	_ = m.Load()
	return m
}

func emptySettings() *LocalSettings {
	return &LocalSettings{Credentials: make(map[string]string)}
}

// Load loads settings from the file
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		m.settings = emptySettings()
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var s LocalSettings
	if err := json.Unmarshal(data, &s); err != nil {
		m.settings = emptySettings()
		return err
	}
	if s.Credentials == nil {
		s.Credentials = make(map[string]string)
	}
	m.settings = &s
	return nil
}

// Save writes settings with owner-only permissions.
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.settings, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.filePath), 0700); err != nil {
		return err
	}
	return os.WriteFile(m.filePath, data, 0600)
}

// Credential returns the stored secret for name, or "".
func (m *Manager) Credential(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings.Credentials[name]
}

// SetCredential stores a secret and saves. An empty value removes it.
func (m *Manager) SetCredential(name, value string) error {
	m.mu.Lock()
	if value == "" {
		delete(m.settings.Credentials, name)
	} else {
		m.settings.Credentials[name] = value
	}
	m.mu.Unlock()

	return m.Save()
}

// Names lists the credentials that are set, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.settings.Credentials))
	for k := range m.settings.Credentials {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// GetFilePath returns the settings file path
func (m *Manager) GetFilePath() string {
	return m.filePath
}
