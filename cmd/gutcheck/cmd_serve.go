package main

import (
	"os/signal"
	"syscall"

	"gutcheck/internal/logging"
	"gutcheck/internal/server"

	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the assistant over HTTP:

  POST /v1/messages            handle one chat message
  POST /v1/understand          parse text without logging it
  GET  /v1/users/:id/outbox    drain reminders and notices
  GET  /healthz`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	a.start(ctx, configPath)

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	h := server.NewHandler(a.assistant, a.parser, a.dialog, cfg.Location())
	srv := server.New(addr, server.NewRouter(cfg.Server.Mode, h))

	err = srv.Run(ctx)
	if ctx.Err() != nil {
		logging.Boot("received shutdown signal")
	}
	return err
}
