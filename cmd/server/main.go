package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/gochat/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	config, err := server.NewConfigFromEnv()
	if err != nil {
		return err
	}
	log := server.NewLogger(os.Stdout, config.LogLevel, config.LogFormat)
	log.Info().Msg("Starting GoChat relay...")

	hub, err := server.NewHub(*config, server.WithLogger(log))
	if err != nil {
		return fmt.Errorf("hub setup failed: %w", err)
	}
	server.StartHub(hub)

	sweeper, err := server.NewSweeper(hub, config.SweepInterval, log)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handlers := server.NewHandlers(hub, *config, log)
	httpServer := server.CreateServer(config.Port, server.SetupRoutes(handlers))

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn().Err(err).Msg("systemd notify failed")
	} else if ok {
		log.Debug().Msg("systemd notified ready")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down gracefully...")
	case err := <-errChan:
		_ = hub.Shutdown(config.ShutdownTimeout)
		return err
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err := server.ShutdownServer(httpServer, config.ShutdownTimeout, log); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	if err := hub.Shutdown(config.ShutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("Hub shutdown incomplete")
	}
	log.Info().Msg("Server stopped cleanly")
	return nil
}
