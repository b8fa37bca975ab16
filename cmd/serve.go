package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/KaramelBytes/veiltext-cli/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the document workspace over an HTTP JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := cfg.ServerAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		okColor.Fprintf(cmd.OutOrStdout(), "✓ Serving on http://%s/api (storage: %s)\n", addr, cfg.Storage)
		return server.New(a.ws, a.logger.Named("http")).Listen(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server_addr)")
}
