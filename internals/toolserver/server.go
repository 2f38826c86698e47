// Package toolserver exposes the chat tools over the Model Context Protocol,
// so MCP clients can call search, aipipe and js_exec directly.
package toolserver

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jadenj13/toolchat/internals/chat"
	"github.com/jadenj13/toolchat/internals/tools"
)

const (
	Name    = "toolchat"
	Version = "0.1.0"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, tc chat.ToolCall) tools.Outcome
	Registry() *tools.Registry
}

// New registers every tool in the dispatcher's registry on a fresh MCP server.
func New(d Dispatcher, log *slog.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: Name, Version: Version}, nil)
	for _, def := range d.Registry().Definitions() {
		server.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Parameters,
		}, handler(d, def.Name, log))
	}
	return server
}

func handler(d Dispatcher, name string, log *slog.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tc := chat.ToolCall{
			ID:        uuid.NewString(),
			Name:      name,
			Arguments: string(req.Params.Arguments),
		}
		out := d.Dispatch(ctx, tc)
		if out.Err != nil {
			log.Warn("mcp tool call failed", "tool", name, "id", tc.ID, "err", out.Err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: out.Content}},
			IsError: out.Err != nil,
		}, nil
	}
}

// Serve runs the server over stdin/stdout until ctx is done or the client
// disconnects.
func Serve(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
