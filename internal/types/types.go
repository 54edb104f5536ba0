// Package types defines the configuration record and error types shared by
// the md-translator packages.
package types

import "errors"

// Config is the read-only configuration record consumed by one operation.
type Config struct {
	Backend           string `json:"backend" yaml:"backend"`                 // deepl, openai or gemini
	DeepLAPIKey       string `json:"deepl_api_key" yaml:"deepl_api_key"`
	DeepLAPIType      string `json:"deepl_api_type" yaml:"deepl_api_type"`   // free or pro
	DefaultTargetLang string `json:"default_target_lang" yaml:"default_target_lang"`
	TechnicalKeywords string `json:"technical_keywords" yaml:"technical_keywords"` // comma separated

	Granularity    string `json:"granularity" yaml:"granularity"` // document or cell
	Concurrency    int    `json:"concurrency" yaml:"concurrency"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`

	Tuning TransformTuning `json:"tuning" yaml:"tuning"`

	OpenAIAPIKey  string `json:"openai_api_key" yaml:"openai_api_key"`
	OpenAIBaseURL string `json:"openai_base_url" yaml:"openai_base_url"`
	OpenAIModel   string `json:"openai_model" yaml:"openai_model"`
	GeminiAPIKey  string `json:"gemini_api_key" yaml:"gemini_api_key"`
	GeminiModel   string `json:"gemini_model" yaml:"gemini_model"`

	// ConverterConfig is the OpenCC configuration for local conversion.
	ConverterConfig  string `json:"converter_config" yaml:"converter_config"`
	// ConverterDictDir holds OpenCC-format user dictionaries applied after
	// conversion.
	ConverterDictDir string `json:"converter_dict_dir" yaml:"converter_dict_dir"`

	LogFilePath    string `json:"log_file_path" yaml:"log_file_path"`
	LogLevel       string `json:"log_level" yaml:"log_level"`
	DiagnosticsDir string `json:"diagnostics_dir" yaml:"diagnostics_dir"`
	BackupDir      string `json:"backup_dir" yaml:"backup_dir"`
}

// TransformTuning holds optional backend parameters. Zero values are never
// sent; they change only what the backend does, never protection.
type TransformTuning struct {
	PreserveFormatting bool   `json:"preserve_formatting" yaml:"preserve_formatting"`
	SplitSentences     string `json:"split_sentences" yaml:"split_sentences"` // "0", "1" or "nonewlines"
	TagHandling        string `json:"tag_handling" yaml:"tag_handling"`       // xml or html
	Formality          string `json:"formality" yaml:"formality"`
	GlossaryID         string `json:"glossary_id" yaml:"glossary_id"`
	StyleID            string `json:"style_id" yaml:"style_id"`
	Context            string `json:"context" yaml:"context"`
}

// IsZero reports whether no tuning parameter is configured.
func (t TransformTuning) IsZero() bool {
	return t == TransformTuning{}
}

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	ErrConfig       ErrorCode = "CONFIG_ERROR"    // missing credential or unusable config
	ErrTransport    ErrorCode = "TRANSPORT_ERROR" // non-success status from the backend
	ErrAPIRateLimit ErrorCode = "API_RATE_LIMIT"
	ErrNetwork      ErrorCode = "NETWORK_ERROR"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsTransport reports whether err is one of the transport error codes.
func IsTransport(err error) bool {
	switch CodeOf(err) {
	case ErrTransport, ErrAPIRateLimit, ErrNetwork:
		return true
	}
	return false
}
