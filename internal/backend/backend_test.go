package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"md-translator/internal/config"
	"md-translator/internal/types"
)

type fakeCredentials map[string]string

func (f fakeCredentials) RequireCredential(backend string) (string, error) {
	if k := f[backend]; k != "" {
		return k, nil
	}
	return "", types.NewAppError(types.ErrConfig, "API key is missing in settings", nil)
}

// ============================================================
// Select
// ============================================================

func TestIsLocalTarget(t *testing.T) {
	assert.True(t, IsLocalTarget("ZH-HANT"))
	assert.True(t, IsLocalTarget(" zh-hant "))
	assert.False(t, IsLocalTarget("ZH-HANS"))
	assert.False(t, IsLocalTarget("DE"))
}

func TestSelect(t *testing.T) {
	ctx := context.Background()
	creds := fakeCredentials{config.BackendDeepL: "dk", config.BackendOpenAI: "ok", config.BackendGemini: "gk"}

	tr, err := Select(ctx, types.Config{Backend: config.BackendDeepL}, fakeCredentials{}, "zh-hant")
	require.NoError(t, err)
	assert.Equal(t, "opencc", tr.Name())

	tr, err = Select(ctx, types.Config{Backend: config.BackendDeepL, DeepLAPIType: "pro"}, creds, "DE")
	require.NoError(t, err)
	d, ok := tr.(*DeepL)
	require.True(t, ok)
	assert.Equal(t, DeepLProURL, d.APIURL())

	tr, err = Select(ctx, types.Config{Backend: config.BackendOpenAI, OpenAIModel: "gpt-4o-mini"}, creds, "DE")
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-4o-mini", tr.Name())

	tr, err = Select(ctx, types.Config{Backend: config.BackendGemini, GeminiModel: "gemini-2.0-flash"}, creds, "DE")
	require.NoError(t, err)
	assert.Equal(t, "gemini:gemini-2.0-flash", tr.Name())
}

func TestSelect_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Select(ctx, types.Config{Backend: config.BackendDeepL}, fakeCredentials{}, "DE")
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))

	_, err = Select(ctx, types.Config{Backend: "babelfish"}, fakeCredentials{"babelfish": "x"}, "DE")
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))
}

func TestSelectNetwork_IgnoresTarget(t *testing.T) {
	tr, err := SelectNetwork(context.Background(), types.Config{Backend: config.BackendDeepL}, fakeCredentials{config.BackendDeepL: "dk"})
	require.NoError(t, err)
	assert.Equal(t, "deepl", tr.Name())
}

func TestTestConnection_FallsBackToTransform(t *testing.T) {
	c, err := DefaultConverter()
	require.NoError(t, err)
	assert.NoError(t, TestConnection(context.Background(), c))

	f := &fakeChatModel{err: errors.New("dial tcp: connection refused")}
	err = TestConnection(context.Background(), newOpenAIWithModel(f, "m"))
	assert.Equal(t, types.ErrNetwork, types.CodeOf(err))
}

// ============================================================
// Chat model backend
// ============================================================

type fakeChatModel struct {
	reply string
	err   error
	got   []*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.got = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestOpenAI_Transform(t *testing.T) {
	fake := &fakeChatModel{reply: "Hallo XXTAGXX0001XX"}
	o := newOpenAIWithModel(fake, "test-model")

	out, err := o.Transform(context.Background(), "Hello XXTAGXX0001XX", "de")
	require.NoError(t, err)
	assert.Equal(t, "Hallo XXTAGXX0001XX", out)

	require.Len(t, fake.got, 2)
	assert.Equal(t, schema.System, fake.got[0].Role)
	assert.Contains(t, fake.got[0].Content, "code DE")
	assert.Equal(t, "Hello XXTAGXX0001XX", fake.got[1].Content)
}

func TestOpenAI_Transform_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorCode
	}{
		{"rate limit", errors.New("error, status code: 429, message: Rate limit reached"), types.ErrAPIRateLimit},
		{"auth", errors.New("error, status code: 401, message: invalid key"), types.ErrTransport},
		{"server", errors.New("error, status code: 503, message: overloaded"), types.ErrTransport},
		{"network", errors.New("dial tcp: connection refused"), types.ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOpenAIWithModel(&fakeChatModel{err: tt.err}, "m")
			_, err := o.Transform(context.Background(), "x", "DE")
			assert.Equal(t, tt.want, types.CodeOf(err))
		})
	}

	o := newOpenAIWithModel(&fakeChatModel{reply: ""}, "m")
	_, err := o.Transform(context.Background(), "x", "DE")
	assert.Equal(t, types.ErrTransport, types.CodeOf(err))
}
