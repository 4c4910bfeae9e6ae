package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/mkral/importer/internal/control"
	"github.com/mkral/importer/internal/core/config"
	"github.com/mkral/importer/internal/importing/importer"
)

var (
	cfgPath   string
	isDebug   bool
	chainFlag string
	addresses []string
	assetFlag string
)

var rootCmd = &cobra.Command{
	Use:   "importer",
	Short: "Resilient activity importer",
	Long:  `Importer pulls blockchain and exchange activity from third-party providers with failover, rate limiting, and resumable streams.`,
	Run:   runImport,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().StringVar(&chainFlag, "chain", "", "chain to import (default: all configured)")
	rootCmd.Flags().StringSliceVar(&addresses, "address", nil, "address to import (repeatable)")
	rootCmd.Flags().StringVar(&assetFlag, "asset", "", "asset filter for asset-scoped operations")
}

// initLogging installs the process-wide slog handler.
func initLogging(cfg *config.AppConfig) {
	level := slog.LevelInfo
	if isDebug || (cfg != nil && cfg.Logging.Level == "debug") {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg != nil && cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		})
	}
	slog.SetDefault(slog.New(handler))
}

func runImport(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		initLogging(nil)
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	initLogging(cfg)

	if len(addresses) == 0 {
		slog.Error("No addresses given, use --address")
		os.Exit(1)
	}

	app, err := control.NewApp(control.Config{
		Port:     cfg.Server.Port,
		Chains:   cfg.Chains,
		Import:   cfg.Import,
		Redis:    cfg.Redis,
		Database: cfg.Database,
	})
	if err != nil {
		slog.Error("Failed to initialize importer", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received signal, cancelling run...", "signal", sig)
		cancel()
	}()

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start importer", "error", err)
		os.Exit(1)
	}

	failed := false
	for _, chainCfg := range cfg.Chains {
		if chainFlag != "" && !strings.EqualFold(chainFlag, string(chainCfg.Chain)) {
			continue
		}
		imp, ok := app.Importer(chainCfg.Chain)
		if !ok {
			continue
		}
		report, err := imp.Run(ctx, importer.Job{Addresses: addresses, Asset: assetFlag})
		if err != nil {
			slog.Error("Import run failed", "chain", chainCfg.Chain, "error", err)
			failed = true
			continue
		}
		slog.Info("Import run complete",
			"chain", chainCfg.Chain,
			"run_id", report.RunID,
			"imported", report.Imported,
			"duplicates", report.Duplicates)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
	if failed {
		os.Exit(1)
	}
}
