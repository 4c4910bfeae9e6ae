package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mkral/importer/internal/core/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show all import stream checkpoints",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
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

	states, err := repo.List(ctx)
	if err != nil {
		slog.Error("Failed to list checkpoints", "error", err)
		os.Exit(1)
	}

	streams := make([]string, 0, len(states))
	for id := range states {
		streams = append(streams, id)
	}
	sort.Strings(streams)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STREAM\tCURSOR\tFETCHED\tPROVIDER\tUPDATED")

	for _, id := range streams {
		s := states[id]
		_, _ = fmt.Fprintf(w, "%s\t%s=%s\t%d\t%s\t%s\n",
			id,
			s.Primary.Kind, s.Primary.Value(),
			s.TotalFetched,
			s.Metadata.ProviderName,
			s.Metadata.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	_ = w.Flush()
}
