package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jadenj13/toolchat/internals/app"
	"github.com/jadenj13/toolchat/internals/config"
	"github.com/jadenj13/toolchat/internals/toolserver"
)

func main() {
	cfg, err := config.Load(envOr("TOOLCHAT_CONFIG", "toolchat.toml"))
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// stdout carries the protocol, so logs go to stderr.
	level, _ := cfg.Level()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build chat stack", "err", err)
		os.Exit(1)
	}

	log.Info("mcp tool server starting", "tools", len(stack.Dispatcher.Registry().Definitions()))
	if err := toolserver.Serve(ctx, toolserver.New(stack.Dispatcher, log)); err != nil && ctx.Err() == nil {
		log.Error("tool server exited with error", "err", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
