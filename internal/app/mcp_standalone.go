package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jsonjoin/internal/config"
	mcpserver "jsonjoin/internal/mcp"
	"jsonjoin/internal/service"
)

const shutdownGrace = 30 * time.Second

// ServeMCP runs jsonjoin as an MCP server on stdin/stdout. Stored job
// triggers stay active while it runs.
func ServeMCP(cfg *config.Config, version string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := New(cfg, service.LogEmitter{})
	if err != nil {
		return err
	}
	defer shutdown(a)

	a.Joins.RestartWatchers(ctx)

	srv := mcpserver.New(mcpserver.Deps{Joins: a.Joins, Database: a.Database}, version)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("[MCP] Interrupted, shutting down")
		return nil
	}
}

// Serve runs stored job triggers (cron and file_watch) until SIGINT or
// SIGTERM, then drains running jobs.
func Serve(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := New(cfg, service.LogEmitter{})
	if err != nil {
		return err
	}
	defer shutdown(a)

	a.Joins.RestartWatchers(ctx)
	log.Printf("jsonjoin: serving triggers from %s", cfg.Storage.DBPath())

	<-ctx.Done()
	log.Println("jsonjoin: shutting down")
	return nil
}

func shutdown(a *App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	a.Shutdown(ctx)
}
