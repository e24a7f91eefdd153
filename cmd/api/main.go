package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"vaultx/internal/bootstrap"
	"vaultx/internal/infra"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := bootstrap.New(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bootstrap failed")
	}

	if err := container.Serve(ctx); err != nil {
		logger.Error().Err(err).Msg("http server failed")
		_ = container.Close()
		os.Exit(1)
	}
	if err := container.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close stores")
	}
}
