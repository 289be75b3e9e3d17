package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mailinvoice/internal/config"
	"mailinvoice/internal/connectors"
	"mailinvoice/internal/invoicing"
	"mailinvoice/internal/listener"
	"mailinvoice/internal/logging"
)

func main() {
	cfg, err := config.Load()
	must(err)
	log := logging.New(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := invoicing.Open(ctx, cfg, log)
	must(err)
	defer app.Close()

	conn, err := connectors.New(ctx, cfg, strings.ToLower(strings.TrimSpace(cfg.MailListenerProvider)))
	must(err)

	must(listener.NewService(app, conn).Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
