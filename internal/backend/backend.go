// Package backend implements the text transforms the translator sends
// protected text through: DeepL, OpenAI-compatible chat models, Gemini,
// and a local Chinese script converter.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"md-translator/internal/config"
	"md-translator/internal/logger"
	"md-translator/internal/types"
)

// TargetTraditional is the variant served by the local converter.
const TargetTraditional = "ZH-HANT"

// DefaultTimeout is the default HTTP client timeout for backend calls
const DefaultTimeout = 60 * time.Second

// Transformer turns text into text. It may fail per call and may disturb
// whitespace or case inside the text it receives.
type Transformer interface {
	Name() string
	Transform(ctx context.Context, text, targetLang string) (string, error)
}

// Credentials resolves API keys by backend name.
type Credentials interface {
	RequireCredential(backend string) (string, error)
}

// IsLocalTarget reports whether target only needs script conversion.
func IsLocalTarget(target string) bool {
	return strings.EqualFold(strings.TrimSpace(target), TargetTraditional)
}

// Select returns the transformer for target: the local converter for
// ZH-HANT, otherwise the configured network backend. A missing credential
// is a CONFIG_ERROR.
func Select(ctx context.Context, cfg types.Config, creds Credentials, target string) (Transformer, error) {
	if IsLocalTarget(target) {
		logger.Debug("selected local converter", logger.String("target", target))
		c, err := NewConverterFromDir(cfg.ConverterConfig, cfg.ConverterDictDir)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return SelectNetwork(ctx, cfg, creds)
}

// ConnectionTester is implemented by backends with their own connection
// check.
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

// TestConnection checks t, translating a short word when it has no check
// of its own.
func TestConnection(ctx context.Context, t Transformer) error {
	if ct, ok := t.(ConnectionTester); ok {
		return ct.TestConnection(ctx)
	}
	_, err := t.Transform(ctx, "Hello", TargetTraditional)
	return err
}

// SelectNetwork returns the configured network backend regardless of the
// target language.
func SelectNetwork(ctx context.Context, cfg types.Config, creds Credentials) (Transformer, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	switch cfg.Backend {
	case config.BackendDeepL, "":
		key, err := creds.RequireCredential(config.BackendDeepL)
		if err != nil {
			return nil, err
		}
		return NewDeepL(key, cfg.DeepLAPIType, cfg.Tuning, timeout), nil
	case config.BackendOpenAI:
		key, err := creds.RequireCredential(config.BackendOpenAI)
		if err != nil {
			return nil, err
		}
		return NewOpenAI(ctx, key, cfg.OpenAIBaseURL, cfg.OpenAIModel, timeout)
	case config.BackendGemini:
		key, err := creds.RequireCredential(config.BackendGemini)
		if err != nil {
			return nil, err
		}
		return NewGemini(ctx, key, cfg.GeminiModel)
	default:
		return nil, types.NewAppErrorWithDetails(types.ErrConfig, "unknown backend", cfg.Backend, nil)
	}
}

// handleHTTPError maps a non-success status to an AppError. Server errors
// carry "status 5xx" in their details so callers can retry them.
func handleHTTPError(statusCode int, body []byte) error {
	details := gjson.GetBytes(body, "message").String()
	if details == "" {
		details = gjson.GetBytes(body, "error.message").String()
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return types.NewAppErrorWithDetails(types.ErrTransport,
			"API authentication failed", "invalid API key or unauthorized access", nil)
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppErrorWithDetails(types.ErrAPIRateLimit, "API rate limit exceeded", details, nil)
	case statusCode == 456:
		// DeepL: character quota exceeded
		return types.NewAppErrorWithDetails(types.ErrTransport, "API quota exceeded", details, nil)
	case statusCode >= 500:
		return types.NewAppErrorWithDetails(types.ErrTransport, "API server error",
			fmt.Sprintf("status %d: %s", statusCode, details), nil)
	default:
		return types.NewAppErrorWithDetails(types.ErrTransport, "API request failed",
			fmt.Sprintf("status %d: %s", statusCode, details), nil)
	}
}
