package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KaramelBytes/veiltext-cli/internal/persist"
	"github.com/spf13/cobra"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the document list whenever another veiltext process saves it",
	Long: `Watch the file storage directory and print a summary each time the saved
documents change. Only the file backend can be watched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ensureConfig(); err != nil {
			return err
		}
		if cfg.Storage != "" && cfg.Storage != persist.BackendFile {
			return fmt.Errorf("watch needs the file backend, storage is %q", cfg.Storage)
		}
		kv, err := persist.NewFileKV(cfg.DataDir)
		if err != nil {
			return err
		}
		defer kv.Close()
		logger := newLogger()
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		snaps := persist.NewSnapshots(kv)
		w := cmd.OutOrStdout()
		report := func() {
			snap, err := snaps.LoadDocuments(ctx)
			if err != nil {
				warnColor.Fprintf(w, "⚠ %s: %v\n", time.Now().Format(time.TimeOnly), err)
				return
			}
			fmt.Fprintf(w, "%s  %d documents, active %s\n", time.Now().Format(time.TimeOnly), len(snap.Documents), snap.ActiveID)
			for _, d := range snap.Documents {
				fmt.Fprintf(w, "    %s: %s (%d words)\n", d.ID, d.Title, d.WordCount)
			}
		}
		report()
		dimColor.Fprintf(w, "watching %s (Ctrl+C to stop)\n", kv.Dir())
		return persist.Watch(ctx, kv.Dir(), watchDebounce, logger.Named("watch"), report)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 250*time.Millisecond, "wait this long after the last change before reporting")
}
