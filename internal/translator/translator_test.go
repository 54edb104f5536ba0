package translator

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"md-translator/internal/config"
	"md-translator/internal/types"
)

// fakeTransformer records calls and delegates to fn.
type fakeTransformer struct {
	mu    sync.Mutex
	fn    func(call int, text string) (string, error)
	calls int
	seen  []string
}

func (f *fakeTransformer) Name() string { return "fake" }

func (f *fakeTransformer) Transform(ctx context.Context, text, target string) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.seen = append(f.seen, text)
	f.mu.Unlock()
	return f.fn(call, text)
}

func identity(_ int, text string) (string, error) { return text, nil }

func upper(_ int, text string) (string, error) { return strings.ToUpper(text), nil }

func testOptions() *Options {
	o := DefaultOptions()
	o.Keywords = nil
	o.RetryDelay = 0
	return o
}

func newTestEngine(t *testing.T, fn func(int, string) (string, error), mutate func(*Options)) (*Engine, *fakeTransformer) {
	t.Helper()
	f := &fakeTransformer{fn: fn}
	o := testOptions()
	if mutate != nil {
		mutate(o)
	}
	e, err := NewEngine(f, o)
	require.NoError(t, err)
	return e, f
}

// ============================================================
// Engine construction
// ============================================================

func TestNewEngine(t *testing.T) {
	_, err := NewEngine(nil, nil)
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))

	o := testOptions()
	o.Granularity = "page"
	_, err = NewEngine(&fakeTransformer{fn: identity}, o)
	assert.Equal(t, types.ErrInvalidInput, types.CodeOf(err))

	e, err := NewEngine(&fakeTransformer{fn: identity}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, e.Detector().Rules())
}

// ============================================================
// Document mode
// ============================================================

func TestTranslateDocument_InlineCodeBeforeTable(t *testing.T) {
	text := "`code` | A | B |\n|---|---|\nrow|1|2"
	e, _ := newTestEngine(t, identity, func(o *Options) { o.Keywords = []string{"API"} })

	out, res, err := e.TranslateDocument(context.Background(), text, "DE")
	require.NoError(t, err)
	assert.Equal(t, text, out)
	assert.Zero(t, res.Report.Shortfall())
	assert.Empty(t, res.Issues)
	assert.NotEmpty(t, res.OperationID)
	assert.Equal(t, "fake", res.Backend)
}

func TestTranslateDocument_KeepsOuterWhitespace(t *testing.T) {
	e, f := newTestEngine(t, upper, nil)

	out, _, err := e.TranslateDocument(context.Background(), "\n\n  hello `x`  \n", "DE")
	require.NoError(t, err)
	assert.Equal(t, "\n\n  HELLO `x`  \n", out)
	require.Len(t, f.seen, 1)
	assert.False(t, strings.HasPrefix(f.seen[0], "\n"))
}

func TestTranslateDocument_Blank(t *testing.T) {
	e, f := newTestEngine(t, upper, nil)
	out, res, err := e.TranslateDocument(context.Background(), " \n ", "DE")
	require.NoError(t, err)
	assert.Equal(t, " \n ", out)
	assert.Zero(t, f.calls)
	assert.Zero(t, res.Units)
}

func TestTranslateDocument_KeywordCasing(t *testing.T) {
	e, _ := newTestEngine(t, func(_ int, s string) (string, error) {
		return strings.ToLower(s), nil
	}, func(o *Options) { o.Keywords = []string{"API", "GitHub"} })

	out, res, err := e.TranslateDocument(context.Background(), "Call the API on GitHub", "DE")
	require.NoError(t, err)
	assert.Equal(t, "call the API on GitHub", out)
	assert.Zero(t, res.Report.Shortfall())
}

func TestTranslateDocument_LostSeparatorRepaired(t *testing.T) {
	text := "| A | B |\n|---|---|\n| 1 | 2 |"
	dropSep := regexp.MustCompile(`(?m)^XXSEPXX\d+XX\n`)
	e, _ := newTestEngine(t, func(_ int, s string) (string, error) {
		return dropSep.ReplaceAllString(s, ""), nil
	}, nil)

	out, res, err := e.TranslateDocument(context.Background(), text, "DE")
	require.NoError(t, err)
	assert.Equal(t, text, out)
	assert.Equal(t, 1, res.Report.Resolved[LevelRebuild])
	assert.Empty(t, res.Issues)
}

func TestTranslateDocument_CRLF(t *testing.T) {
	text := "Intro `x`\r\n\r\n| a | b |\r\n|---|---|\r\n| c | d |\r\n"
	dropSep := regexp.MustCompile(`(?m)^XXSEPXX\d+XX\n`)
	e, f := newTestEngine(t, func(_ int, s string) (string, error) {
		return strings.ToUpper(dropSep.ReplaceAllString(s, "")), nil
	}, nil)

	out, res, err := e.TranslateDocument(context.Background(), text, "DE")
	require.NoError(t, err)
	assert.Equal(t, "INTRO `x`\r\n\r\n| A | B |\r\n|---|---|\r\n| C | D |\r\n", out)
	assert.Equal(t, 1, res.Report.Resolved[LevelRebuild])
	require.Len(t, f.seen, 1)
	assert.NotContains(t, f.seen[0], "|")
}

func TestTranslateCells_CRLF(t *testing.T) {
	e, _ := newTestEngine(t, upper, func(o *Options) { o.Granularity = config.GranularityCell })

	out, _, err := e.TranslateCells(context.Background(), "| a | b |\r\n|---|---|\r\n| c | d |\r\n", "DE")
	require.NoError(t, err)
	assert.Equal(t, "| A | B |\r\n|---|---|\r\n| C | D |\r\n", out)
}

func TestTranslateDocument_RepairAlways(t *testing.T) {
	e, _ := newTestEngine(t, identity, func(o *Options) { o.Repair = RepairAlways })
	out, res, err := e.TranslateDocument(context.Background(), "| A | B |\n| 1 | 2 |", "DE")
	require.NoError(t, err)
	assert.Equal(t, "| A | B |\n|---|---|\n| 1 | 2 |", out)
	require.Len(t, res.Issues, 1)
}

func TestTranslateDocument_RepairNever(t *testing.T) {
	e, _ := newTestEngine(t, identity, func(o *Options) { o.Repair = RepairNever })
	out, _, err := e.TranslateDocument(context.Background(), "| A | B |\n| 1 | 2 |", "DE")
	require.NoError(t, err)
	assert.Equal(t, "| A | B |\n| 1 | 2 |", out)
}

// ============================================================
// Retry
// ============================================================

func TestTranslateDocument_RetriesNetworkErrors(t *testing.T) {
	e, f := newTestEngine(t, func(call int, s string) (string, error) {
		if call == 1 {
			return "", types.NewAppError(types.ErrNetwork, "connection reset", nil)
		}
		return s, nil
	}, nil)

	out, _, err := e.TranslateDocument(context.Background(), "hello", "DE")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, 2, f.calls)
}

func TestTranslateDocument_RetryPolicy(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		calls int
	}{
		{"server error retried", types.NewAppErrorWithDetails(types.ErrTransport, "API server error", "status 503: busy", nil), 3},
		{"rate limit retried", types.NewAppError(types.ErrAPIRateLimit, "slow down", nil), 3},
		{"client error not retried", types.NewAppErrorWithDetails(types.ErrTransport, "API request failed", "status 400: bad", nil), 1},
		{"config error not retried", types.NewAppError(types.ErrConfig, "API key is missing in settings", nil), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, f := newTestEngine(t, func(int, string) (string, error) { return "", tt.err }, nil)
			out, res, err := e.TranslateDocument(context.Background(), "hello", "DE")
			require.Error(t, err)
			assert.Empty(t, out)
			assert.Equal(t, tt.calls, f.calls)
			assert.Equal(t, 1, res.FailedUnits)
		})
	}
}

func TestTransformWithRetry_Cancelled(t *testing.T) {
	e, _ := newTestEngine(t, func(int, string) (string, error) {
		return "", types.NewAppError(types.ErrNetwork, "timeout", nil)
	}, func(o *Options) { o.RetryDelay = time.Hour })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := e.transformWithRetry(ctx, "x", "DE")
	assert.Equal(t, types.ErrNetwork, types.CodeOf(err))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(types.NewAppError(types.ErrNetwork, "x", nil)))
	assert.True(t, isRetryableError(types.NewAppErrorWithDetails(types.ErrTransport, "x", "status 502: y", nil)))
	assert.False(t, isRetryableError(types.NewAppErrorWithDetails(types.ErrTransport, "x", "status 403: y", nil)))
	assert.False(t, isRetryableError(assert.AnError))
}

// ============================================================
// Cell mode
// ============================================================

func TestTranslateCells(t *testing.T) {
	text := "# Title\n\n| Name | Value |\n|---|---|\n| fail | ok |\n\n```\ncode stays\n```\nplain line"
	e, f := newTestEngine(t, func(_ int, s string) (string, error) {
		if s == "fail" {
			return "", types.NewAppError(types.ErrTransport, "API request failed", nil)
		}
		return strings.ToUpper(s), nil
	}, func(o *Options) {
		o.Granularity = config.GranularityCell
		o.Concurrency = 4
	})

	out, res, err := e.Translate(context.Background(), text, "DE")
	require.NoError(t, err)
	assert.Equal(t, "# TITLE\n\n| NAME | VALUE |\n|---|---|\n| fail | OK |\n\n```\ncode stays\n```\nPLAIN LINE", out)
	assert.Equal(t, 6, res.Units)
	assert.Equal(t, 1, res.FailedUnits)
	assert.Equal(t, config.GranularityCell, res.Granularity)
	for _, s := range f.seen {
		assert.NotContains(t, s, "code stays")
		assert.NotContains(t, s, "|")
	}
}

func TestTranslateCells_Dedupe(t *testing.T) {
	e, f := newTestEngine(t, upper, func(o *Options) { o.Granularity = config.GranularityCell })

	out, res, err := e.TranslateCells(context.Background(), "| a | a |\n|---|---|\n| a | b |", "DE")
	require.NoError(t, err)
	assert.Equal(t, "| A | A |\n|---|---|\n| A | B |", out)
	assert.Equal(t, 4, res.Units)
	assert.Equal(t, 2, f.calls)
}

func TestTranslateCells_ProtectsMarkupInsideCells(t *testing.T) {
	e, _ := newTestEngine(t, upper, func(o *Options) {
		o.Granularity = config.GranularityCell
		o.Keywords = []string{"kubectl"}
	})

	out, res, err := e.TranslateCells(context.Background(), "| run `ls` | use kubectl |\n|---|---|", "DE")
	require.NoError(t, err)
	assert.Equal(t, "| RUN `ls` | USE kubectl |\n|---|---|", out)
	assert.Equal(t, 2, res.Report.Total)
}

func TestTranslateCells_ConfigErrorAborts(t *testing.T) {
	e, _ := newTestEngine(t, func(int, string) (string, error) {
		return "", types.NewAppError(types.ErrConfig, "API key is missing in settings", nil)
	}, func(o *Options) { o.Granularity = config.GranularityCell })

	out, _, err := e.TranslateCells(context.Background(), "one\ntwo", "DE")
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))
	assert.Empty(t, out)
}

func TestTranslateCells_Cancelled(t *testing.T) {
	e, f := newTestEngine(t, upper, func(o *Options) { o.Granularity = config.GranularityCell })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := e.TranslateCells(ctx, "one\ntwo", "DE")
	assert.Equal(t, types.ErrNetwork, types.CodeOf(err))
	assert.Zero(t, f.calls)
}

func TestTranslateCells_NoUnits(t *testing.T) {
	e, f := newTestEngine(t, upper, func(o *Options) { o.Granularity = config.GranularityCell })
	out, _, err := e.TranslateCells(context.Background(), "|---|---|\n\n", "DE")
	require.NoError(t, err)
	assert.Equal(t, "|---|---|\n\n", out)
	assert.Zero(t, f.calls)
}
