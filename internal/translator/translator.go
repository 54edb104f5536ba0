package translator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"md-translator/internal/backend"
	"md-translator/internal/config"
	"md-translator/internal/logger"
	"md-translator/internal/types"
	"md-translator/internal/validator"
)

// Engine runs protect, transform, restore and repair for one backend.
type Engine struct {
	transformer backend.Transformer
	detector    *Detector
	restorer    *Restorer
	opts        *Options
}

// Result 一次操作的结果
type Result struct {
	OperationID string             `json:"operation_id"`
	Backend     string             `json:"backend"`
	Target      string             `json:"target"`
	Granularity string             `json:"granularity"`
	Report      *RestorationReport `json:"report"`
	Issues      []validator.Issue  `json:"issues,omitempty"`
	Units       int                `json:"units"`
	FailedUnits int                `json:"failed_units"`
	Duration    time.Duration      `json:"duration"`
}

// NewEngine creates an engine. Nil options select DefaultOptions.
func NewEngine(t backend.Transformer, opts *Options) (*Engine, error) {
	if t == nil {
		return nil, types.NewAppError(types.ErrConfig, "no transform backend configured", nil)
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if errs := ValidateOptions(opts); len(errs) > 0 {
		return nil, types.NewAppError(types.ErrInvalidInput, "invalid engine options", errs[0])
	}

	d := NewDetector(opts.Keywords)
	d.GuardTables = opts.GuardTables
	return &Engine{
		transformer: t,
		detector:    d,
		restorer:    DefaultRestorer(),
		opts:        opts,
	}, nil
}

// Detector returns the span detector used by the engine.
func (e *Engine) Detector() *Detector {
	return e.detector
}

// Translate dispatches on the configured granularity.
func (e *Engine) Translate(ctx context.Context, text, target string) (string, *Result, error) {
	if e.opts.Granularity == config.GranularityCell {
		return e.TranslateCells(ctx, text, target)
	}
	return e.TranslateDocument(ctx, text, target)
}

func (e *Engine) newResult(target, granularity string) *Result {
	return &Result{
		OperationID: uuid.New().String(),
		Backend:     e.transformer.Name(),
		Target:      target,
		Granularity: granularity,
		Report:      newReport(0),
	}
}

// splitSpace separates leading and trailing whitespace from text.
func splitSpace(text string) (lead, core, trail string) {
	core = strings.TrimLeft(text, " \t\r\n")
	lead = text[:len(text)-len(core)]
	trimmed := strings.TrimRight(core, " \t\r\n")
	trail = core[len(trimmed):]
	return lead, trimmed, trail
}

// TranslateDocument sends the whole protected text in one call. Transport
// and configuration errors abort the operation; nothing is returned then.
func (e *Engine) TranslateDocument(ctx context.Context, text, target string) (string, *Result, error) {
	start := time.Now()
	result := e.newResult(target, config.GranularityDocument)
	defer func() { result.Duration = time.Since(start) }()

	src := text
	text, crlf := toLF(text)
	lead, core, trail := splitSpace(text)
	if core == "" {
		return src, result, nil
	}
	result.Units = 1

	logger.Info("translating document",
		logger.String("operation", result.OperationID),
		logger.String("backend", result.Backend),
		logger.String("target", target),
		logger.Int("length", len(core)))

	safe, m, err := e.detector.Protect(core)
	if err != nil {
		return "", result, err
	}

	out, err := e.transformWithRetry(ctx, safe, target)
	if err != nil {
		result.FailedUnits = 1
		logger.Error("document transform failed", err, logger.String("operation", result.OperationID))
		return "", result, err
	}

	restored, report := e.restorer.Restore(out, m)
	result.Report = report
	if e.shouldRepair(report) {
		restored, result.Issues = Repair(restored)
	}

	logger.Info("document translated",
		logger.String("operation", result.OperationID),
		logger.Int("tokens", report.Total),
		logger.Int("unresolved", report.Shortfall()),
		logger.Int("issues", len(result.Issues)))
	return withLineEnding(lead+restored+trail, crlf), result, nil
}

func (e *Engine) shouldRepair(r *RestorationReport) bool {
	switch e.opts.Repair {
	case RepairAlways:
		return true
	case RepairNever:
		return false
	default:
		return r.NeedsRepair()
	}
}

// unit is one translatable range of a line in cell mode.
type unit struct {
	line       int
	start, end int
}

// collectUnits finds every table cell and prose line of lines. Fences,
// code, separators and blank lines are never units.
func collectUnits(lines []validator.Line) []unit {
	var units []unit
	add := func(line int, text string, from, to int) {
		seg := text[from:to]
		core := strings.TrimSpace(seg)
		if core == "" {
			return
		}
		s := from + strings.Index(seg, core)
		units = append(units, unit{line: line, start: s, end: s + len(core)})
	}

	for i, l := range lines {
		switch l.Kind {
		case validator.LineTableRow:
			offsets := validator.PipeOffsets(l.Text)
			for j := 0; j+1 < len(offsets); j++ {
				add(i, l.Text, offsets[j]+1, offsets[j+1])
			}
		case validator.LineProse:
			add(i, l.Text, 0, len(l.Text))
		}
	}
	return units
}

// TranslateCells translates every table cell and prose line on its own.
// A unit whose transform fails keeps its original text; only configuration
// errors abort. Identical units are transformed once.
func (e *Engine) TranslateCells(ctx context.Context, text, target string) (string, *Result, error) {
	start := time.Now()
	result := e.newResult(target, config.GranularityCell)
	defer func() { result.Duration = time.Since(start) }()

	src := text
	text, crlf := toLF(text)
	lines := validator.Classify(text)
	units := collectUnits(lines)
	result.Units = len(units)
	if len(units) == 0 {
		return src, result, nil
	}

	// 去重
	index := make(map[string]int)
	var uniques []string
	for _, u := range units {
		s := lines[u.line].Text[u.start:u.end]
		if _, ok := index[s]; !ok {
			index[s] = len(uniques)
			uniques = append(uniques, s)
		}
	}

	logger.Info("translating cells",
		logger.String("operation", result.OperationID),
		logger.String("backend", result.Backend),
		logger.String("target", target),
		logger.Int("units", len(units)),
		logger.Int("unique", len(uniques)),
		logger.Int("concurrency", e.opts.Concurrency))

	outputs := make([]string, len(uniques))
	failed := make([]bool, len(uniques))
	var (
		mu       sync.Mutex
		fatalErr error
		wg       sync.WaitGroup
	)
	sem := make(chan struct{}, e.opts.Concurrency)

	for i, s := range uniques {
		wg.Add(1)
		go func(i int, s string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			mu.Lock()
			abort := fatalErr != nil
			mu.Unlock()
			if abort || ctx.Err() != nil {
				outputs[i], failed[i] = s, true
				return
			}

			out, report, err := e.translateUnit(ctx, s, target)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outputs[i], failed[i] = s, true
				if types.CodeOf(err) == types.ErrConfig && fatalErr == nil {
					fatalErr = err
				}
				logger.Warn("unit transform failed, keeping original",
					logger.String("operation", result.OperationID),
					logger.Int("unit", i),
					logger.Err(err))
				return
			}
			outputs[i] = out
			result.Report.Merge(report)
		}(i, s)
	}
	wg.Wait()

	if fatalErr != nil {
		return "", result, fatalErr
	}
	if err := ctx.Err(); err != nil {
		return "", result, types.NewAppError(types.ErrNetwork, "operation cancelled", err)
	}

	// 按行从后向前替换
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	for k := len(units) - 1; k >= 0; k-- {
		u := units[k]
		idx := index[lines[u.line].Text[u.start:u.end]]
		if failed[idx] {
			result.FailedUnits++
		}
		line := out[u.line]
		out[u.line] = line[:u.start] + outputs[idx] + line[u.end:]
	}

	logger.Info("cells translated",
		logger.String("operation", result.OperationID),
		logger.Int("units", result.Units),
		logger.Int("failed", result.FailedUnits),
		logger.Int("unresolved", result.Report.Shortfall()))
	return withLineEnding(strings.Join(out, "\n"), crlf), result, nil
}

// translateUnit runs the pipeline on a single cell or line.
func (e *Engine) translateUnit(ctx context.Context, s, target string) (string, *RestorationReport, error) {
	safe, m, err := e.detector.Protect(s)
	if err != nil {
		return "", nil, err
	}
	out, err := e.transformWithRetry(ctx, safe, target)
	if err != nil {
		return "", nil, err
	}
	restored, report := e.restorer.Restore(strings.TrimSpace(out), m)
	return restored, report, nil
}

// transformWithRetry calls the backend, retrying retryable transport
// errors with a linearly growing delay.
func (e *Engine) transformWithRetry(ctx context.Context, text, target string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := e.opts.RetryDelay * time.Duration(attempt)
			logger.Info("retrying transform",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(lastErr))
			select {
			case <-ctx.Done():
				return "", types.NewAppError(types.ErrNetwork, "operation cancelled", ctx.Err())
			case <-time.After(delay):
			}
		}

		out, err := e.transformer.Transform(ctx, text, target)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}
	return "", lastErr
}

// isRetryableError reports whether a transport error may succeed on retry.
func isRetryableError(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case types.ErrNetwork, types.ErrAPIRateLimit:
		return true
	case types.ErrTransport:
		// server errors only, never 4xx
		return strings.Contains(appErr.Details, "status 5")
	default:
		return false
	}
}
