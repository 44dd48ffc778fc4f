package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"barrio-alarm/internal/config"
	"barrio-alarm/internal/logger"
	"barrio-alarm/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting barrio-alarm service")

	svc, err := service.NewService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := svc.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-errChan:
		log.Error("Service error", zap.Error(err))
		cancel()
	}

	if err := svc.Stop(context.Background()); err != nil {
		log.Error("Error stopping service", zap.Error(err))
	}

	log.Info("Service stopped")
}
