package server

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/recall/internal/agent"
	"github.com/michaelbrown/recall/internal/config"
	"github.com/michaelbrown/recall/internal/llm"
	"github.com/michaelbrown/recall/internal/memory"
	"github.com/michaelbrown/recall/internal/sandbox"
)

// heartbeatInterval is how often progress notifications go out while the
// agent is working, so MCP clients don't time out long queries.
const heartbeatInterval = 2 * time.Second

// MCPServer exposes the memory agent as a single MCP tool over stdio.
type MCPServer struct {
	cfg    *config.Config
	exec   *sandbox.Executor
	memory *memory.Store
	mcp    *server.MCPServer
}

// NewMCPServer creates the MCP tool server.
func NewMCPServer(cfg *config.Config) (*MCPServer, error) {
	mem, err := memory.NewStoreWithLimits(cfg.Memory.Path, cfg.MemoryLimits())
	if err != nil {
		return nil, fmt.Errorf("opening memory store: %w", err)
	}

	m := &MCPServer{
		cfg:    cfg,
		exec:   sandbox.New(cfg.SandboxTimeout()),
		memory: mem,
		mcp:    server.NewMCPServer("recall", "0.1.0"),
	}

	m.mcp.AddTool(mcp.Tool{
		Name: "use_memory_agent",
		Description: "Send a natural-language question or instruction to the memory agent. " +
			"The agent reads and updates a markdown memory store on your behalf and returns its answer. " +
			"Use this to recall facts about the user or to record new ones.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"question": map[string]any{
					"type":        "string",
					"description": "The question or instruction for the memory agent",
				},
			},
			Required: []string{"question"},
		},
	}, m.handleUseMemoryAgent)

	return m, nil
}

// ServeStdio runs the MCP server on stdin/stdout until the client disconnects.
func (m *MCPServer) ServeStdio() error {
	return server.ServeStdio(m.mcp)
}

func (m *MCPServer) handleUseMemoryAgent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	question, _ := args["question"].(string)
	if question == "" {
		return toolError("'question' argument must be a non-empty string"), nil
	}

	provider, err := m.cfg.Provider("")
	if err != nil {
		return toolError(err.Error()), nil
	}
	client := llm.NewClient(provider.BaseURL, provider.APIKey, provider.Models["default"])

	// A fresh agent per call: MCP calls are independent one-shot queries.
	a, err := agent.New(client, m.exec, m.memory)
	if err != nil {
		return toolError(fmt.Sprintf("creating agent: %v", err)), nil
	}
	a.SetMaxTurns(m.cfg.Agent.MaxToolTurns)
	a.SetMaxTokens(m.cfg.Agent.ContextMaxTokens)

	type chatResult struct {
		reply string
		err   error
	}
	done := make(chan chatResult, 1)
	go func() {
		reply, err := a.Chat(ctx, question)
		done <- chatResult{reply, err}
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	progress := 0
	for {
		select {
		case res := <-done:
			if res.err != nil {
				return toolError(res.err.Error()), nil
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.TextContent{Type: "text", Text: res.reply}},
			}, nil
		case <-ticker.C:
			progress++
			m.sendHeartbeat(ctx, request, progress)
		case <-ctx.Done():
			return toolError("cancelled"), nil
		}
	}
}

// sendHeartbeat emits a progress notification when the client supplied a
// progress token. Failures are ignored; the heartbeat is best-effort.
func (m *MCPServer) sendHeartbeat(ctx context.Context, request mcp.CallToolRequest, progress int) {
	if request.Params.Meta == nil || request.Params.Meta.ProgressToken == nil {
		return
	}
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return
	}
	srv.SendNotificationToClient(ctx, "notifications/progress", map[string]any{
		"progressToken": request.Params.Meta.ProgressToken,
		"progress":      progress,
	})
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "error: " + msg}},
		IsError: true,
	}
}
