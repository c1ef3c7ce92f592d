package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ogulcanaydogan/fare-guardian/internal/app"
	"github.com/ogulcanaydogan/fare-guardian/internal/config"
	"github.com/ogulcanaydogan/fare-guardian/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgFile := flag.String("config", "", "config file (default: ~/.fareguard/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := app.NewLogger(cfg, os.Stderr)

	store, err := app.OpenStorage(cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	engine, err := app.NewEngine(cfg, store, logger, false)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.Scheduler.Start(ctx, cfg.Scheduler.Interval)

	apiServer := server.NewServer(store, engine.Scheduler, logger)
	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fareguardd started",
			"listen", cfg.Server.Listen,
			"interval", cfg.Scheduler.Interval,
			"sources", engine.Sources.List(),
			"channels", engine.Channels.Names(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-errCh:
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}

	// Let the current pass finish; a second signal aborts its waits.
	go func() {
		<-quit
		cancel()
	}()
	engine.Scheduler.Stop()

	return runErr
}
