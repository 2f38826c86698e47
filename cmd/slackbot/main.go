package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jadenj13/toolchat/internals/app"
	"github.com/jadenj13/toolchat/internals/config"
	slackhandler "github.com/jadenj13/toolchat/internals/slack"
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

	botToken := mustEnv("SLACK_BOT_TOKEN", cfg.Slack.BotToken)
	appToken := mustEnv("SLACK_APP_TOKEN", cfg.Slack.AppToken)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build chat stack", "err", err)
		os.Exit(1)
	}

	handler, err := slackhandler.NewHandler(ctx, botToken, appToken, stack.Sessions, stack.Agent, log)
	if err != nil {
		log.Error("failed to create slack handler", "err", err)
		os.Exit(1)
	}

	log.Info("slackbot starting")
	if err := handler.Run(ctx); err != nil {
		log.Error("handler exited with error", "err", err)
		os.Exit(1)
	}
}

// mustEnv exits unless the setting came from the config file or environment.
func mustEnv(key, v string) string {
	if v == "" {
		slog.Error("missing required environment variable", "key", key)
		os.Exit(1)
	}
	return v
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
