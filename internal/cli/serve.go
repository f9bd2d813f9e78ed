package cli

import (
	"os"
	"os/signal"
	"syscall"

	"diglet/internal/config"
	"diglet/internal/logger"
	"diglet/internal/server"

	"github.com/spf13/cobra"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()
		if servePort != "" {
			cfg.Port = servePort
		}
		logr := logger.New(cfg)
		defer logr.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.Run(ctx, cfg, logr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "listen-port", "", "port to listen on (defaults to $APP_PORT)")
	rootCmd.AddCommand(serveCmd)
}
