package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/facemood/internal/asset"
	"github.com/andresmejia3/facemood/internal/config"
	"github.com/andresmejia3/facemood/internal/engine"
	"github.com/andresmejia3/facemood/internal/logger"
	"github.com/andresmejia3/facemood/internal/pipeline"
	"github.com/andresmejia3/facemood/internal/store"
	"github.com/andresmejia3/facemood/internal/utils"
	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Options holds the flags shared by recognize and serve.
type Options struct {
	ConfigPath string
	DBURL      string
	Verbose    bool
	MaxWidth   int
	MaxHeight  int
}

var (
	// DB is the optional history store shared by subcommands. Nil when no database is configured.
	DB *store.Store
	// Cfg is the resolved configuration.
	Cfg config.Config

	rootOpts Options
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "facemood",
	Short:         "Face recognition and emotion detection for captured photos",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load .env file if present (ignore errors)
		_ = godotenv.Load()

		slog.SetDefault(logger.New(os.Stderr, rootOpts.Verbose))

		cfg, err := config.Load(rootOpts.ConfigPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, &cfg, rootOpts)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		Cfg = cfg

		if Cfg.DatabaseURL == "" {
			slog.Debug("No database configured, history disabled")
			return nil
		}
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), Cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
			DB = nil
		}
	},
}

// applyFlags overrides cfg with the flags the user actually set.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts Options) {
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DatabaseURL = opts.DBURL
	}
	if flags.Changed("max-width") {
		cfg.MaxWidth = opts.MaxWidth
	}
	if flags.Changed("max-height") {
		cfg.MaxHeight = opts.MaxHeight
	}
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, rootCmd, fang.WithVersion(Version)); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaults := config.Default()
	rootCmd.PersistentFlags().StringVarP(&rootOpts.ConfigPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&rootOpts.DBURL, "db", "", "PostgreSQL connection string for recognition history (default: DATABASE_URL or POSTGRES_* env)")
	rootCmd.PersistentFlags().BoolVarP(&rootOpts.Verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().IntVar(&rootOpts.MaxWidth, "max-width", defaults.MaxWidth, "Bounding box width for the resized capture")
	rootCmd.PersistentFlags().IntVar(&rootOpts.MaxHeight, "max-height", defaults.MaxHeight, "Bounding box height for the resized capture")
}

// newOrchestrator wires the pipeline from Cfg. The returned close func stops the engine process.
// An engine that fails to start is logged and left nil, so runs fail with EngineUnavailable.
func newOrchestrator() (*pipeline.Orchestrator, func()) {
	var (
		eng     engine.Engine
		cleanup = func() {}
	)
	py, err := engine.NewPythonEngine(engine.PythonConfig{
		Python:      Cfg.Python,
		Script:      Cfg.EngineScript,
		ReadTimeout: Cfg.EngineTimeout,
	})
	if err != nil {
		slog.Error("Recognition engine failed to start", "python", Cfg.Python, "script", Cfg.EngineScript, "error", err)
	} else {
		eng = py
		cleanup = func() {
			py.Close()
			if logs := py.Cmd.Logs(); logs != "" {
				slog.Debug("Engine stderr", "logs", logs)
			}
		}
	}

	assets := asset.New(os.DirFS(Cfg.AssetsDir), slog.Default())
	orch := pipeline.New(pipeline.Options{
		MaxWidth:    Cfg.MaxWidth,
		MaxHeight:   Cfg.MaxHeight,
		JPEGQuality: Cfg.JPEGQuality,
		AssetName:   Cfg.AssetName,
	}, assets, engine.NewBridge(eng, slog.Default()), slog.Default())

	return orch, cleanup
}

// recordHistory stores a finished run when a database is configured.
// History failures are logged, never fatal.
func recordHistory(ctx context.Context, s pipeline.Session, out pipeline.Outcome) {
	if DB == nil {
		return
	}
	digest, err := utils.FileDigest(s.RawImagePath)
	if err != nil {
		slog.Warn("Failed to digest capture", "path", s.RawImagePath, "error", err)
	}
	rec := store.Recognition{SessionID: out.SessionID, ImageDigest: digest, Result: out.Result}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	if _, err := DB.SaveRecognition(ctx, rec); err != nil {
		slog.Warn("Failed to save recognition", "session", out.SessionID, "error", err)
	}
}
