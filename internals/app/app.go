// Package app assembles the chat stack shared by every command: model
// client, tool backends, sandbox, dispatcher, agent and session store.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jadenj13/toolchat/internals/agent"
	"github.com/jadenj13/toolchat/internals/chat"
	"github.com/jadenj13/toolchat/internals/config"
	"github.com/jadenj13/toolchat/internals/llm"
	"github.com/jadenj13/toolchat/internals/relay"
	"github.com/jadenj13/toolchat/internals/sandbox"
	"github.com/jadenj13/toolchat/internals/search"
	"github.com/jadenj13/toolchat/internals/tools"
)

type App struct {
	Sessions   *chat.SessionStore
	Agent      *agent.Agent
	Dispatcher *tools.Dispatcher
	Search     *search.Client
	Relay      *relay.Client
	Sandbox    *sandbox.Executor
}

// New builds the stack and starts the sandbox worker; both stop when ctx is
// done.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	model, err := llm.New(llm.Config{
		Provider:       cfg.Model.Provider,
		OpenAIKey:      cfg.Model.OpenAIKey,
		OpenAIModel:    cfg.Model.OpenAIModel,
		OpenAIBaseURL:  cfg.Model.OpenAIBaseURL,
		AnthropicKey:   cfg.Model.AnthropicKey,
		AnthropicModel: cfg.Model.AnthropicModel,
	})
	if err != nil {
		return nil, fmt.Errorf("model client: %w", err)
	}

	searcher := search.NewClient(search.Config{
		Provider:   cfg.Search.Provider,
		GoogleKey:  cfg.Search.GoogleKey,
		GoogleCX:   cfg.Search.GoogleCX,
		SerpAPIKey: cfg.Search.SerpAPIKey,
		HTTPClient: &http.Client{Timeout: cfg.Agent.HTTPTimeout},
	})
	pipe := relay.NewClient(ctx, cfg.AIPipe.BaseURL, cfg.AIPipe.APIKey, cfg.Agent.HTTPTimeout)

	boundary := sandbox.NewChannelBoundary(16)
	worker := sandbox.NewWorker(sandbox.WorkerConfig{Deadline: cfg.Agent.SandboxTimeout, Logger: log})
	executor := sandbox.NewExecutor(boundary, sandbox.Config{Timeout: cfg.Agent.SandboxTimeout, Logger: log})
	go func() { _ = worker.Serve(ctx, boundary) }()
	go func() { _ = executor.Listen(ctx, boundary.Responses()) }()
	go func() {
		<-ctx.Done()
		boundary.Close()
	}()

	dispatcher := tools.NewDispatcher(tools.Default(), searcher, pipe, executor, log)

	log.Info("chat stack ready",
		"provider", cfg.Model.Provider,
		"search", searcher.Provider(),
		"aipipe", pipe.Configured(),
		"max_turns", cfg.Agent.MaxTurns,
	)

	return &App{
		Sessions:   chat.NewSessionStore(agent.SystemPrompt),
		Agent:      agent.New(model, dispatcher, cfg.Agent.MaxTurns, log),
		Dispatcher: dispatcher,
		Search:     searcher,
		Relay:      pipe,
		Sandbox:    executor,
	}, nil
}

// NewLogger builds the text logger every command uses.
func NewLogger(cfg *config.Config) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
