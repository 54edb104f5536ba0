package backend

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"md-translator/internal/logger"
	"md-translator/internal/types"
)

const (
	// DeepLFreeURL is the endpoint for free-tier keys
	DeepLFreeURL = "https://api-free.deepl.com/v2/translate"
	// DeepLProURL is the endpoint for pro keys
	DeepLProURL = "https://api.deepl.com/v2/translate"
)

// DeepL calls the DeepL translate API.
type DeepL struct {
	apiKey string
	apiURL string
	tuning types.TransformTuning
	client *http.Client
}

// NewDeepL creates a DeepL backend. apiType "pro" selects the pro endpoint.
func NewDeepL(apiKey, apiType string, tuning types.TransformTuning, timeout time.Duration) *DeepL {
	apiURL := DeepLFreeURL
	if strings.EqualFold(apiType, "pro") {
		apiURL = DeepLProURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DeepL{
		apiKey: apiKey,
		apiURL: apiURL,
		tuning: tuning,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the backend name
func (d *DeepL) Name() string { return "deepl" }

// SetAPIURL sets the API URL (useful for testing with mock servers).
func (d *DeepL) SetAPIURL(url string) {
	d.apiURL = url
}

// APIURL returns the endpoint in use.
func (d *DeepL) APIURL() string {
	return d.apiURL
}

// buildBody builds the JSON request. Tuning parameters are only present
// when configured.
func (d *DeepL) buildBody(text, target string) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	set := func(path string, value interface{}) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, value)
		}
	}

	set("text", []string{text})
	set("target_lang", strings.ToUpper(target))
	set("enable_beta_languages", true)

	t := d.tuning
	if t.PreserveFormatting {
		set("preserve_formatting", true)
	}
	if t.SplitSentences != "" {
		set("split_sentences", t.SplitSentences)
	}
	if t.TagHandling != "" {
		set("tag_handling", t.TagHandling)
	}
	if t.Formality != "" {
		set("formality", t.Formality)
	}
	if t.GlossaryID != "" {
		set("glossary_id", t.GlossaryID)
	}
	if t.StyleID != "" {
		set("style_id", t.StyleID)
	}
	if t.Context != "" {
		set("context", t.Context)
	}
	return body, err
}

// Transform translates text into target.
func (d *DeepL) Transform(ctx context.Context, text, target string) (string, error) {
	body, err := d.buildBody(text, target)
	if err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to build request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+d.apiKey)

	logger.Debug("calling DeepL",
		logger.String("url", d.apiURL),
		logger.String("target", target),
		logger.Int("length", len(text)))

	resp, err := d.client.Do(req)
	if err != nil {
		return "", types.NewAppError(types.ErrNetwork, "failed to reach DeepL", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.NewAppError(types.ErrNetwork, "failed to read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", handleHTTPError(resp.StatusCode, respBody)
	}

	out := gjson.GetBytes(respBody, "translations.0.text")
	if !out.Exists() {
		return "", types.NewAppErrorWithDetails(types.ErrTransport, "unexpected response", string(respBody), nil)
	}

	logger.Debug("DeepL responded",
		logger.String("detected", gjson.GetBytes(respBody, "translations.0.detected_source_language").String()),
		logger.Int("length", len(out.String())))
	return out.String(), nil
}

// TestConnection translates "Hello" to check the key and endpoint.
func (d *DeepL) TestConnection(ctx context.Context) error {
	_, err := d.Transform(ctx, "Hello", TargetTraditional)
	return err
}
