// Package mcp exposes toolkit tools on a Model Context Protocol server.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"hedera-agent-kit/pkg/kit"
)

// DefaultServerName is advertised when Options.Name is empty.
const DefaultServerName = "Hedera Agent Toolkit"

// Options configure the MCP server.
type Options struct {
	Name    string
	Version string
}

// NewServer creates an MCP server with every tool of tk registered.
func NewServer(tk *kit.Toolkit, opts Options) *server.MCPServer {
	name := opts.Name
	if name == "" {
		name = DefaultServerName
	}
	version := opts.Version
	if version == "" {
		version = "1.0.0"
	}
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(true))
	Register(s, tk)
	return s
}

// Register adds the toolkit tools to an existing server.
func Register(s *server.MCPServer, tk *kit.Toolkit) {
	for _, tool := range tk.Tools() {
		s.AddTool(mcp.NewToolWithRawSchema(tool.Method(), tool.Description(), tool.Schema()), Handler(tk, tool.Method()))
	}
}

// Handler runs one toolkit method for MCP calls. Tool failures are returned
// as error results so the client model can read them.
func Handler(tk *kit.Toolkit, method string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode arguments: %v", err)), nil
		}
		result, err := tk.Execute(ctx, method, args)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return mcp.NewToolResultError(err.Error()), nil
		}
		encoded, err := result.JSON()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if result.Failed() {
			return mcp.NewToolResultError(encoded), nil
		}
		return mcp.NewToolResultText(encoded), nil
	}
}

// ServeStdio serves tk over standard input and output until the client
// disconnects.
func ServeStdio(tk *kit.Toolkit, opts Options) error {
	return server.ServeStdio(NewServer(tk, opts))
}
