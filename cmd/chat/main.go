package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"local-chat/internal/app"
	"local-chat/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// Logs go to stderr so they never interleave with chat bubbles on stdout.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to build chat service", "err", err)
		os.Exit(1)
	}

	r := newREPL(a.Chat, os.Stdin, os.Stdout)
	runErr := r.Run(ctx)
	if err := a.Close(); err != nil {
		slog.Error("failed to close store", "err", err)
	}
	if runErr != nil {
		slog.Error("chat session ended with error", "err", runErr)
		os.Exit(1)
	}
}
