package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jadenj13/toolchat/internals/app"
	"github.com/jadenj13/toolchat/internals/config"
	"github.com/jadenj13/toolchat/internals/server"
)

func main() {
	cfg, err := config.Load(envOr("TOOLCHAT_CONFIG", "toolchat.toml"))
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	log := app.NewLogger(cfg)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build chat stack", "err", err)
		os.Exit(1)
	}

	api := server.New(stack.Agent, stack.Sessions, stack.Search, stack.Relay, cfg.Server.Build, log)
	addr := net.JoinHostPort("", cfg.Server.Port)

	// A turn runs several model and tool calls inside one request.
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		log.Info("listening", "addr", addr, "model", cfg.Model.OpenAIModel, "search_provider", cfg.Search.Provider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
