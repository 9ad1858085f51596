package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/singlet-dev/singlet/internal/config"
	"github.com/singlet-dev/singlet/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the preview server",
	Long: `Start the preview server with live reload.

The server registers every configured component, serves rendered previews
at /component/<name>, exposes a JSON render API at /api/render, and reloads
connected browsers when component sources change.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8120, "server port")
	serveCmd.Flags().String("host", "localhost", "server host")
	serveCmd.Flags().Bool("no-reload", false, "disable hot reload")
	bindFlags(serveCmd.Flags(), map[string]string{
		"server.port": "port",
		"server.host": "host",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if noReload, _ := cmd.Flags().GetBool("no-reload"); noReload {
		cfg.Development.HotReload = false
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := buildRegistry(ctx, cfg, log)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, reg, log)
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}
