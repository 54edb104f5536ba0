// md-translator translates Markdown notes through DeepL, an OpenAI
// compatible model or Gemini while keeping code, links, tags and table
// structure intact. ZH-HANT is converted locally.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"md-translator/internal/backend"
	"md-translator/internal/config"
	"md-translator/internal/editor"
	"md-translator/internal/logger"
	"md-translator/internal/translator"
	"md-translator/internal/types"
)

var (
	configPath string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "md-translator",
		Short:         "Translate Markdown notes without breaking markup or tables",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (JSON, or YAML by extension)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "mirror log output to stderr")

	root.AddCommand(
		newTranslateCmd(),
		newConvertCmd(),
		newTestConnectionCmd(),
		newCheckCmd(),
		newConfigCmd(),
		newDiagnosticsCmd(),
	)
	return root
}

// setupApp creates the App, points the logger at the configured file and
// starts the App.
func setupApp(ctx context.Context) (*App, error) {
	app, err := NewAppWithConfig(configPath)
	if err != nil {
		return nil, err
	}
	// 日志需在 startup 之前就绪
	if err := app.GetConfig().Load(); err != nil {
		return nil, err
	}
	initLogger(app)
	if err := app.startup(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

// initLogger replaces the global logger with one writing to the configured
// file, md-translator.log next to the config by default.
func initLogger(app *App) {
	cfg := app.GetConfig().GetConfig()
	logCfg := logger.DefaultConfig()
	logCfg.LogFilePath = cfg.LogFilePath
	if logCfg.LogFilePath == "" {
		logCfg.LogFilePath = filepath.Join(filepath.Dir(app.GetConfig().GetConfigPath()), "md-translator.log")
	}
	logCfg.Level = logger.ParseLevel(cfg.LogLevel)
	logCfg.EnableConsole = verbose
	if err := logger.Init(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "警告: 无法初始化日志: %v\n", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// parseLineRange parses "a:b", "a-b" or "a:" (to end of file).
func parseLineRange(s string) (int, int, error) {
	sep := strings.IndexAny(s, ":-")
	if sep < 0 {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, 0, types.NewAppErrorWithDetails(types.ErrInvalidInput, "invalid line range", s, err)
		}
		return n, n, nil
	}
	start, err := strconv.Atoi(strings.TrimSpace(s[:sep]))
	if err != nil {
		return 0, 0, types.NewAppErrorWithDetails(types.ErrInvalidInput, "invalid line range", s, err)
	}
	endStr := strings.TrimSpace(s[sep+1:])
	if endStr == "" {
		return start, -1, nil
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return 0, 0, types.NewAppErrorWithDetails(types.ErrInvalidInput, "invalid line range", s, err)
	}
	return start, end, nil
}

type translateFlags struct {
	target string
	lines  string
	mode   string
	dryRun bool
}

// openEditor returns the editor for path and whether the operation is
// full page. "-" reads stdin into a buffer. A dry run translates a copy.
func openEditor(app *App, path string, f *translateFlags, stdin io.Reader) (editor.Editor, bool, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, false, types.NewAppError(types.ErrInvalidInput, "failed to read stdin", err)
		}
		return editor.NewBuffer(string(data)), true, nil
	}

	fe, err := editor.NewFileEditor(path, app.Backups())
	if err != nil {
		return nil, false, err
	}
	fullPage := f.lines == ""
	if !fullPage {
		start, end, err := parseLineRange(f.lines)
		if err != nil {
			return nil, false, err
		}
		if err := fe.SelectLines(start, end); err != nil {
			return nil, false, err
		}
	}
	if !f.dryRun {
		return fe, fullPage, nil
	}

	var text string
	if fullPage {
		text, err = fe.FullText()
	} else {
		text, err = fe.Selection()
	}
	if err != nil {
		return nil, false, err
	}
	return editor.NewBuffer(text), true, nil
}

func runTranslate(cmd *cobra.Command, path string, f *translateFlags) error {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer logger.Close()
	defer app.shutdown()

	if f.mode != "" {
		cfg := app.GetConfig().GetConfig()
		if f.mode != config.GranularityDocument && f.mode != config.GranularityCell {
			return types.NewAppErrorWithDetails(types.ErrInvalidInput, "invalid mode", f.mode, nil)
		}
		cfg.Granularity = f.mode
		app.GetConfig().SetConfig(&cfg)
	}

	ed, fullPage, err := openEditor(app, path, f, cmd.InOrStdin())
	if err != nil {
		return err
	}

	res, err := app.ProcessUnifiedTranslation(ed, f.target, fullPage)
	if err != nil {
		return err
	}

	if buf, ok := ed.(*editor.Buffer); ok {
		out, _ := buf.FullText()
		fmt.Fprint(cmd.OutOrStdout(), out)
	}
	printResult(cmd.ErrOrStderr(), res)
	return nil
}

func printResult(w io.Writer, res *translator.Result) {
	fmt.Fprintf(w, "%s -> %s via %s: %d placeholders, %d unresolved, %d units (%d failed), %d table issues\n",
		res.Granularity, res.Target, res.Backend,
		res.Report.Total, res.Report.Shortfall(), res.Units, res.FailedUnits, len(res.Issues))
	for _, is := range res.Issues {
		fmt.Fprintf(w, "  %s\n", is)
	}
}

func newTranslateCmd() *cobra.Command {
	f := &translateFlags{}
	cmd := &cobra.Command{
		Use:   "translate FILE",
		Short: "Translate a Markdown file, or stdin with -",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.target, "target", "t", "", "target language code (default from config)")
	cmd.Flags().StringVarP(&f.lines, "lines", "l", "", "translate only lines a:b (1-based)")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "granularity: document or cell")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "print the result instead of writing the file")
	return cmd
}

func newConvertCmd() *cobra.Command {
	f := &translateFlags{target: backend.TargetTraditional}
	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Convert Simplified Chinese to Traditional (Taiwan) locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.lines, "lines", "l", "", "convert only lines a:b (1-based)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "print the result instead of writing the file")
	return cmd
}

func newTestConnectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Check the configured backend and API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			app, err := setupApp(ctx)
			if err != nil {
				return err
			}
			defer logger.Close()

			if err := app.TestConnection(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s connection OK\n", app.GetConfig().GetConfig().Backend)
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE",
		Short: "Report table structure problems without changing the file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			app, err := setupApp(ctx)
			if err != nil {
				return err
			}
			defer logger.Close()

			ed, _, err := openEditor(app, args[0], &translateFlags{}, cmd.InOrStdin())
			if err != nil {
				return err
			}
			text, err := ed.FullText()
			if err != nil {
				return err
			}
			issues := app.CheckStructure(text)
			out := cmd.OutOrStdout()
			if len(issues) == 0 {
				fmt.Fprintln(out, "no structural issues")
				return nil
			}
			for _, is := range issues {
				fmt.Fprintln(out, is)
			}
			return types.NewAppErrorWithDetails(types.ErrInvalidInput, "structural issues found", strconv.Itoa(len(issues)), nil)
		},
	}
}

func maskKey(k string) string {
	if len(k) <= 8 {
		if k == "" {
			return ""
		}
		return "****"
	}
	return k[:4] + "****" + k[len(k)-4:]
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setupApp(context.Background())
			if err != nil {
				return err
			}
			defer logger.Close()

			cfg := app.GetConfig().GetConfig()
			cfg.DeepLAPIKey = maskKey(app.GetConfig().Credential(config.BackendDeepL))
			cfg.OpenAIAPIKey = maskKey(app.GetConfig().Credential(config.BackendOpenAI))
			cfg.GeminiAPIKey = maskKey(app.GetConfig().Credential(config.BackendGemini))
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s\n", app.GetConfig().GetConfigPath(), data)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value (e.g. backend, default_target_lang, technical_keywords)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setupApp(context.Background())
			if err != nil {
				return err
			}
			defer logger.Close()
			return app.GetConfig().Set(args[0], args[1])
		},
	}

	setKey := &cobra.Command{
		Use:   "set-key BACKEND KEY",
		Short: "Store an API key for deepl, openai or gemini in settings.json",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setupApp(context.Background())
			if err != nil {
				return err
			}
			defer logger.Close()

			name := strings.ToLower(args[0])
			switch name {
			case config.BackendDeepL, config.BackendOpenAI, config.BackendGemini:
			default:
				return types.NewAppErrorWithDetails(types.ErrInvalidInput, "unknown backend", name, nil)
			}
			if err := app.GetSettings().SetCredential(name, args[1]); err != nil {
				return types.NewAppError(types.ErrConfig, "failed to save settings", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s key to %s\n", name, app.GetSettings().GetFilePath())
			return nil
		},
	}

	cmd.AddCommand(show, set, setKey)
	return cmd
}

func newDiagnosticsCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Summarize journaled operations that did not round-trip cleanly",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setupApp(context.Background())
			if err != nil {
				return err
			}
			defer logger.Close()

			j := app.GetJournal()
			if j == nil {
				return types.NewAppError(types.ErrConfig, "diagnostics journal unavailable", nil)
			}
			if reset {
				return j.Clear()
			}
			data, err := json.MarshalIndent(j.Summary(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s\n", j.Dir(), data)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "clear", false, "remove all journal records")
	return cmd
}
