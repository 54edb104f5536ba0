package main

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"md-translator/internal/backend"
	"md-translator/internal/config"
	"md-translator/internal/diagnostics"
	"md-translator/internal/editor"
	"md-translator/internal/logger"
	"md-translator/internal/settings"
	"md-translator/internal/translator"
	"md-translator/internal/types"
	"md-translator/internal/validator"
)

// selectFunc picks the transformer for one operation.
type selectFunc func(ctx context.Context, cfg types.Config, creds backend.Credentials, target string) (backend.Transformer, error)

// App wires configuration, credentials, the diagnostics journal and the
// translation engine to a host editor.
type App struct {
	ctx      context.Context
	config   *config.ConfigManager
	settings *settings.Manager
	journal  *diagnostics.Journal
	backups  *editor.BackupManager

	selectBackend selectFunc

	// one operation at a time
	mu         sync.Mutex
	processing bool
	cancelFunc context.CancelFunc
	lastResult *translator.Result
}

// NewAppWithConfig creates an App for configPath. An empty path selects
// the user config directory. settings.json lives next to the config file.
func NewAppWithConfig(configPath string) (*App, error) {
	configMgr, err := config.NewConfigManager(configPath)
	if err != nil {
		return nil, err
	}
	secrets := settings.NewManagerWithPath(
		filepath.Join(filepath.Dir(configMgr.GetConfigPath()), settings.SettingsFileName))
	configMgr.WithSettings(secrets)

	return &App{
		ctx:           context.Background(),
		config:        configMgr,
		settings:      secrets,
		selectBackend: backend.Select,
	}, nil
}

// startup loads the configuration and opens the journal. The context is
// the parent of every operation.
func (a *App) startup(ctx context.Context) error {
	a.ctx = ctx
	logger.Info("application starting up")

	if err := a.config.Load(); err != nil {
		return err
	}
	cfg := a.config.GetConfig()

	journal, err := diagnostics.NewJournal(cfg.DiagnosticsDir)
	if err != nil {
		// 诊断日志不可用时继续运行
		logger.Warn("diagnostics journal unavailable", logger.Err(err))
	}
	a.journal = journal
	a.backups = editor.NewBackupManager(cfg.BackupDir)

	logger.Info("application startup complete",
		logger.String("backend", cfg.Backend),
		logger.String("target", cfg.DefaultTargetLang))
	return nil
}

// shutdown cancels a running operation.
func (a *App) shutdown() {
	_ = a.CancelProcess()
	logger.Info("application shutdown complete")
}

// GetConfig returns the config manager.
func (a *App) GetConfig() *config.ConfigManager {
	return a.config
}

// GetSettings returns the credential store.
func (a *App) GetSettings() *settings.Manager {
	return a.settings
}

// GetJournal returns the diagnostics journal, nil when unavailable.
func (a *App) GetJournal() *diagnostics.Journal {
	return a.journal
}

// Backups returns the backup manager used for file editors.
func (a *App) Backups() *editor.BackupManager {
	return a.backups
}

// LastResult returns the result of the last finished operation.
func (a *App) LastResult() *translator.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastResult
}

// IsProcessing reports whether an operation is running.
func (a *App) IsProcessing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.processing
}

// CancelProcess cancels the running operation, if any.
func (a *App) CancelProcess() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	return nil
}

func (a *App) begin() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.processing {
		return nil, types.NewAppError(types.ErrInvalidInput, "a translation is already in progress", nil)
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.processing = true
	a.cancelFunc = cancel
	return ctx, nil
}

func (a *App) end(res *translator.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.processing = false
	a.cancelFunc = nil
	if res != nil {
		a.lastResult = res
	}
}

// ProcessUnifiedTranslation translates the editor's full text or its
// selection into target and writes the result back. An empty target
// selects the configured default. ZH-HANT goes through the local
// converter; every other target through the configured backend. On any
// error the editor is left untouched.
func (a *App) ProcessUnifiedTranslation(ed editor.Editor, target string, fullPage bool) (*translator.Result, error) {
	ctx, err := a.begin()
	if err != nil {
		return nil, err
	}
	var res *translator.Result
	defer func() { a.end(res) }()

	cfg := a.config.GetConfig()
	target = strings.ToUpper(strings.TrimSpace(target))
	if target == "" {
		target = cfg.DefaultTargetLang
	}
	input := describeEditor(ed, fullPage)
	logger.Info("translation requested",
		logger.String("input", input),
		logger.String("target", target),
		logger.Bool("full_page", fullPage))

	var text string
	if fullPage {
		text, err = ed.FullText()
	} else {
		text, err = ed.Selection()
	}
	if err != nil {
		a.journalResult(input, nil, diagnostics.StageLoad, err)
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		if fullPage {
			return nil, types.NewAppError(types.ErrInvalidInput, "Document is empty", nil)
		}
		return nil, types.NewAppError(types.ErrInvalidInput, "Please select text to translate", nil)
	}

	t, err := a.selectBackend(ctx, cfg, a.config, target)
	if err != nil {
		logger.Error("failed to select backend", err, logger.String("target", target))
		a.journalResult(input, nil, diagnostics.StageTransform, err)
		return nil, err
	}

	engine, err := translator.NewEngine(t, translator.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}

	out, res, err := engine.Translate(ctx, text, target)
	if err != nil {
		a.journalResult(input, res, diagnostics.StageTransform, err)
		return res, err
	}

	if fullPage {
		err = ed.SetFullText(out)
	} else {
		err = ed.ReplaceSelection(out)
	}
	if err != nil {
		logger.Error("failed to write back translation", err, logger.String("operation", res.OperationID))
		a.journalResult(input, res, diagnostics.StageWrite, err)
		return res, err
	}

	stage := diagnostics.StageRestore
	if len(res.Issues) > 0 {
		stage = diagnostics.StageRepair
	}
	a.journalResult(input, res, stage, nil)

	if res.Report.Shortfall() > 0 {
		logger.Warn("translation finished with unresolved placeholders",
			logger.String("operation", res.OperationID),
			logger.Int("unresolved", res.Report.Shortfall()))
	}
	return res, nil
}

func describeEditor(ed editor.Editor, fullPage bool) string {
	if fe, ok := ed.(*editor.FileEditor); ok {
		return fe.Path()
	}
	if fullPage {
		return "document"
	}
	return "selection"
}

func (a *App) journalResult(input string, res *translator.Result, stage diagnostics.Stage, opErr error) {
	if a.journal == nil {
		return
	}
	if err := a.journal.RecordResult(input, res, stage, opErr); err != nil {
		logger.Warn("failed to write diagnostics journal", logger.Err(err))
	}
}

// TestConnection checks the configured network backend and its credential.
func (a *App) TestConnection() error {
	cfg := a.config.GetConfig()
	t, err := backend.SelectNetwork(a.ctx, cfg, a.config)
	if err != nil {
		return err
	}
	if err := backend.TestConnection(a.ctx, t); err != nil {
		logger.Error("connection test failed", err, logger.String("backend", t.Name()))
		return err
	}
	logger.Info("connection test succeeded", logger.String("backend", t.Name()))
	return nil
}

// CheckStructure reports table anomalies in text without changing it,
// including tables a GFM renderer would draw differently.
func (a *App) CheckStructure(text string) []validator.Issue {
	issues := validator.ValidateTables(text)
	return append(issues, validator.CheckRendered(text)...)
}
