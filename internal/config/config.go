// Package config provides configuration management for md-translator.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"md-translator/internal/logger"
	"md-translator/internal/settings"
	"md-translator/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "md-translator.json"

	EnvDeepLAPIKey   = "DEEPL_API_KEY"
	EnvDeepLAPIType  = "DEEPL_API_TYPE"
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvGeminiAPIKey  = "GEMINI_API_KEY"
	EnvTargetLang    = "MDT_TARGET_LANG"
	EnvKeywords      = "MDT_KEYWORDS"

	BackendDeepL  = "deepl"
	BackendOpenAI = "openai"
	BackendGemini = "gemini"

	GranularityDocument = "document"
	GranularityCell     = "cell"

	DefaultBackend         = BackendDeepL
	DefaultDeepLAPIType    = "free"
	DefaultTargetLang      = "ZH-HANT"
	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultGeminiModel     = "gemini-2.0-flash"
	DefaultConverterConfig = "s2twp"
	DefaultConcurrency     = 1
	DefaultTimeout         = 60
	DefaultLogLevel        = "info"

	// DefaultKeywords is the keyword list shipped with the plugin settings.
	DefaultKeywords = "API, SDK, REST, HTTP, JSON, XML, CSS, HTML, JavaScript, TypeScript, Python, React, Vue, Angular, Node.js, npm, Git, GitHub"
)

// ConfigManager loads, defaults and saves the configuration record.
type ConfigManager struct {
	configPath string
	config     *types.Config
	secrets    *settings.Manager
}

// NewConfigManager creates a ConfigManager for configPath. An empty path
// selects md-translator.json under the user config directory.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			logger.Error("failed to get user config directory", err)
			return nil, types.NewAppError(types.ErrConfig, "failed to get user config directory", err)
		}
		configPath = filepath.Join(dir, "md-translator", DefaultConfigFileName)
	}

	logger.Info("ConfigManager initialized", logger.String("configPath", configPath))
	return &ConfigManager{
		configPath: configPath,
		config:     defaultConfig(),
	}, nil
}

// WithSettings attaches a credential store consulted after config and env.
func (m *ConfigManager) WithSettings(s *settings.Manager) *ConfigManager {
	m.secrets = s
	return m
}

func defaultConfig() *types.Config {
	return &types.Config{
		Backend:           DefaultBackend,
		DeepLAPIType:      DefaultDeepLAPIType,
		DefaultTargetLang: DefaultTargetLang,
		TechnicalKeywords: DefaultKeywords,
		Granularity:       GranularityDocument,
		Concurrency:       DefaultConcurrency,
		TimeoutSeconds:    DefaultTimeout,
		OpenAIBaseURL:     DefaultOpenAIBaseURL,
		OpenAIModel:       DefaultOpenAIModel,
		GeminiModel:       DefaultGeminiModel,
		ConverterConfig:   DefaultConverterConfig,
		LogLevel:          DefaultLogLevel,
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the config file (JSON, or YAML by extension), loads .env,
// applies environment overrides and fills defaults for empty fields.
// A missing file is not an error.
func (m *ConfigManager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", logger.Err(err))
	}

	data, err := os.ReadFile(m.configPath)
	switch {
	case os.IsNotExist(err):
		logger.Info("config file not found, using defaults", logger.String("path", m.configPath))
		m.config = defaultConfig()
	case err != nil:
		logger.Error("failed to read config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to read config file", err)
	default:
		cfg := defaultConfig()
		if isYAML(m.configPath) {
			err = yaml.Unmarshal(data, cfg)
		} else {
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			logger.Error("invalid config file format", err, logger.String("path", m.configPath))
			return types.NewAppError(types.ErrConfig, "invalid config file format", err)
		}
		m.config = cfg
		logger.Info("configuration loaded",
			logger.String("path", m.configPath),
			logger.String("backend", cfg.Backend),
			logger.String("target", cfg.DefaultTargetLang))
	}

	m.applyEnv()
	m.applyDefaults()
	return nil
}

func (m *ConfigManager) applyEnv() {
	if v := os.Getenv(EnvDeepLAPIType); v != "" {
		m.config.DeepLAPIType = v
	}
	if v := os.Getenv(EnvOpenAIBaseURL); v != "" && m.config.OpenAIBaseURL == DefaultOpenAIBaseURL {
		m.config.OpenAIBaseURL = v
	}
	if v := os.Getenv(EnvTargetLang); v != "" {
		m.config.DefaultTargetLang = v
	}
	if v := os.Getenv(EnvKeywords); v != "" {
		m.config.TechnicalKeywords = v
	}
}

func (m *ConfigManager) applyDefaults() {
	c := m.config
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	c.Backend = strings.ToLower(c.Backend)
	if c.DeepLAPIType != "pro" {
		c.DeepLAPIType = DefaultDeepLAPIType
	}
	if c.DefaultTargetLang == "" {
		c.DefaultTargetLang = DefaultTargetLang
	}
	c.DefaultTargetLang = strings.ToUpper(c.DefaultTargetLang)
	if c.Granularity != GranularityCell {
		c.Granularity = GranularityDocument
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = DefaultTimeout
	}
	if c.OpenAIBaseURL == "" {
		c.OpenAIBaseURL = DefaultOpenAIBaseURL
	}
	if c.OpenAIModel == "" {
		c.OpenAIModel = DefaultOpenAIModel
	}
	if c.GeminiModel == "" {
		c.GeminiModel = DefaultGeminiModel
	}
	if c.ConverterConfig == "" {
		c.ConverterConfig = DefaultConverterConfig
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Save writes the configuration, creating the directory if needed.
func (m *ConfigManager) Save() error {
	logger.Debug("saving configuration", logger.String("path", m.configPath))

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(m.configPath) {
		data, err = yaml.Marshal(m.config)
	} else {
		data, err = json.MarshalIndent(m.config, "", "  ")
	}
	if err != nil {
		logger.Error("failed to marshal config", err)
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved", logger.String("path", m.configPath))
	return nil
}

// GetConfig returns a copy of the current configuration.
func (m *ConfigManager) GetConfig() types.Config {
	if m.config == nil {
		return *defaultConfig()
	}
	return *m.config
}

// SetConfig replaces the configuration.
func (m *ConfigManager) SetConfig(cfg *types.Config) {
	m.config = cfg
	m.applyDefaults()
}

// GetConfigPath returns the path to the config file.
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}

// Keywords splits the comma-separated keyword list, trimming blanks.
func (m *ConfigManager) Keywords() []string {
	return ParseKeywords(m.GetConfig().TechnicalKeywords)
}

// ParseKeywords splits a comma-separated list, dropping empty items.
func ParseKeywords(list string) []string {
	var out []string
	for _, k := range strings.Split(list, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Credential resolves a backend credential: config file, then environment,
// then the settings store.
func (m *ConfigManager) Credential(backend string) string {
	cfg := m.GetConfig()
	var value, env string
	switch backend {
	case BackendDeepL:
		value, env = cfg.DeepLAPIKey, EnvDeepLAPIKey
	case BackendOpenAI:
		value, env = cfg.OpenAIAPIKey, EnvOpenAIAPIKey
	case BackendGemini:
		value, env = cfg.GeminiAPIKey, EnvGeminiAPIKey
	default:
		return ""
	}
	if value != "" {
		return value
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	if m.secrets != nil {
		return m.secrets.Credential(backend)
	}
	return ""
}

// RequireCredential returns a CONFIG_ERROR when the backend has no key.
func (m *ConfigManager) RequireCredential(backend string) (string, error) {
	key := m.Credential(backend)
	if key == "" {
		return "", types.NewAppErrorWithDetails(types.ErrConfig,
			"API key is missing in settings", "backend "+backend, nil)
	}
	return key, nil
}

// Set updates a single field by its config key and saves. Used by the CLI.
func (m *ConfigManager) Set(key, value string) error {
	if m.config == nil {
		m.config = defaultConfig()
	}
	c := m.config
	switch key {
	case "backend":
		c.Backend = value
	case "deepl_api_type":
		c.DeepLAPIType = value
	case "default_target_lang":
		c.DefaultTargetLang = value
	case "technical_keywords":
		c.TechnicalKeywords = value
	case "granularity":
		c.Granularity = value
	case "concurrency":
		n, err := strconv.Atoi(value)
		if err != nil {
			return types.NewAppError(types.ErrInvalidInput, "concurrency must be a number", err)
		}
		c.Concurrency = n
	case "openai_base_url":
		c.OpenAIBaseURL = value
	case "openai_model":
		c.OpenAIModel = value
	case "gemini_model":
		c.GeminiModel = value
	case "converter_config":
		c.ConverterConfig = value
	case "converter_dict_dir":
		c.ConverterDictDir = value
	case "formality":
		c.Tuning.Formality = value
	case "glossary_id":
		c.Tuning.GlossaryID = value
	case "context":
		c.Tuning.Context = value
	default:
		return types.NewAppErrorWithDetails(types.ErrInvalidInput, "unknown config key", key, nil)
	}
	m.applyDefaults()
	return m.Save()
}
