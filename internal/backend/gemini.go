package backend

import (
	"context"
	"strings"

	genai "google.golang.org/genai"

	"md-translator/internal/logger"
	"md-translator/internal/types"
)

// Gemini translates through the Gemini API.
type Gemini struct {
	cli   *genai.Client
	model string
}

// NewGemini creates a Gemini client for model.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		logger.Error("failed to create gemini client", err, logger.String("model", model))
		return nil, types.NewAppError(types.ErrConfig, "failed to create gemini client", err)
	}
	return &Gemini{cli: cli, model: model}, nil
}

// Name returns the backend name
func (g *Gemini) Name() string { return "gemini:" + g.model }

// Transform translates text into target.
func (g *Gemini) Transform(ctx context.Context, text, target string) (string, error) {
	prompt := strings.Replace(translatePrompt, "%s", strings.ToUpper(target), 1)

	logger.Debug("calling gemini", logger.String("model", g.model), logger.Int("length", len(text)))
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: prompt}}},
		},
	)
	if err != nil {
		return "", classifyClientError("gemini request failed", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", types.NewAppError(types.ErrTransport, "gemini returned no content", nil)
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
