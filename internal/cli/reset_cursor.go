package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkral/importer/internal/core/config"
	"github.com/mkral/importer/internal/core/cursor"
	redisclient "github.com/mkral/importer/internal/infra/redis"
	"github.com/mkral/importer/internal/infra/storage/postgres"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [stream_id]",
	Short: "Delete the checkpoint for a stream so the next run starts from scratch",
	Args:  cobra.ExactArgs(1),
	Run:   runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	streamID := args[0]

	cfg, err := config.Load(cfgPath)
	if err != nil {
		initLogging(nil)
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	initLogging(cfg)

	ctx := context.Background()
	repo, closeRepo, err := openCursorRepo(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open checkpoint storage", "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	if _, err := repo.Get(ctx, streamID); err != nil {
		if errors.Is(err, cursor.ErrNotFound) {
			fmt.Printf("No checkpoint found for %s\n", streamID)
			os.Exit(1)
		}
		slog.Error("Failed to read checkpoint", "error", err)
		os.Exit(1)
	}

	if err := repo.Delete(ctx, streamID); err != nil {
		slog.Error("Failed to reset checkpoint", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset checkpoint for %s\n", streamID)
}

// openCursorRepo opens the configured persistent checkpoint store.
// Administrative commands only make sense against durable storage.
func openCursorRepo(ctx context.Context, cfg *config.AppConfig) (cursor.Repository, func(), error) {
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewCursorRepo(db), func() { _ = db.Close() }, nil
	}
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return redisclient.NewCursorRepo(client), func() { _ = client.Close() }, nil
	}
	return nil, nil, errors.New("no persistent checkpoint storage configured")
}
