package backend

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"md-translator/internal/logger"
	"md-translator/internal/types"
)

// translatePrompt tells a chat model to leave placeholder tokens alone.
const translatePrompt = `You are a translation engine. Translate the user's text into the language with code %s.
Rules:
- Output only the translation, no explanations.
- Keep every line break exactly where it is.
- Tokens made of capital letters and digits such as XXINLINECODEXX0001XX are placeholders: copy them unchanged, without spaces, in the same position.`

// OpenAI translates through an OpenAI-compatible chat model.
type OpenAI struct {
	chatModel model.BaseChatModel
	model     string
}

// NewOpenAI creates a chat model client for baseURL.
func NewOpenAI(ctx context.Context, apiKey, baseURL, modelName string, timeout time.Duration) (*OpenAI, error) {
	cfg := &openai.ChatModelConfig{
		Model:   modelName,
		APIKey:  apiKey,
		Timeout: timeout,
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		logger.Error("failed to create chat model", err, logger.String("model", modelName))
		return nil, types.NewAppError(types.ErrConfig, "failed to create chat model", err)
	}
	return &OpenAI{chatModel: chatModel, model: modelName}, nil
}

// newOpenAIWithModel wraps an existing chat model.
func newOpenAIWithModel(m model.BaseChatModel, name string) *OpenAI {
	return &OpenAI{chatModel: m, model: name}
}

// Name returns the backend name
func (o *OpenAI) Name() string { return "openai:" + o.model }

// Transform translates text into target.
func (o *OpenAI) Transform(ctx context.Context, text, target string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(strings.Replace(translatePrompt, "%s", strings.ToUpper(target), 1)),
		schema.UserMessage(text),
	}

	logger.Debug("calling chat model", logger.String("model", o.model), logger.Int("length", len(text)))
	resp, err := o.chatModel.Generate(ctx, msgs)
	if err != nil {
		return "", classifyClientError("chat model request failed", err)
	}
	if resp == nil || resp.Content == "" {
		return "", types.NewAppError(types.ErrTransport, "chat model returned no content", nil)
	}
	return resp.Content, nil
}

// classifyClientError maps SDK errors, which carry the status in their
// text, onto the transport error codes.
func classifyClientError(message string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "rate limit"):
		return types.NewAppErrorWithDetails(types.ErrAPIRateLimit, message, msg, err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return types.NewAppErrorWithDetails(types.ErrTransport, message, msg, err)
	case containsServerStatus(msg):
		return types.NewAppErrorWithDetails(types.ErrTransport, message, "status 5xx: "+msg, err)
	case strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "connection"):
		return types.NewAppErrorWithDetails(types.ErrNetwork, message, msg, err)
	default:
		return types.NewAppErrorWithDetails(types.ErrTransport, message, msg, err)
	}
}

func containsServerStatus(msg string) bool {
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}
