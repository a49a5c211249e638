// Package server exposes the dispatcher to MCP hosts over stdio or
// streamable HTTP.
package server

import (
	"context"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/triage-ai/palisade/services/record_gateway/internal/dispatch"
	"github.com/triage-ai/palisade/services/record_gateway/internal/registry"
	"go.uber.org/zap"
)

// Name is the server name announced to hosts.
const Name = "record-gateway"

// Dispatcher runs one command. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]any) dispatch.Result
}

// Server registers one MCP tool per command and routes every call through
// the Dispatcher.
type Server struct {
	mcp        *mcpserver.MCPServer
	dispatcher Dispatcher
	logger     *zap.Logger
}

// New builds the MCP server and registers the command tools.
func New(d Dispatcher, version string, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mcp: mcpserver.NewMCPServer(Name, version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithRecovery(),
		),
		dispatcher: d,
		logger:     logger,
	}

	tools, err := ToolDefinitions()
	if err != nil {
		return nil, err
	}
	for _, tool := range tools {
		s.mcp.AddTool(tool, s.handle)
	}
	return s, nil
}

// MCP returns the underlying server.
func (s *Server) MCP() *mcpserver.MCPServer {
	return s.mcp
}

// ToolDefinitions renders every registered command as an MCP tool. The input
// schema is the same document the validator compiles.
func ToolDefinitions() ([]mcp.Tool, error) {
	defs := registry.Commands()
	tools := make([]mcp.Tool, 0, len(defs))
	for _, def := range defs {
		schema, err := registry.SchemaJSON(def)
		if err != nil {
			return nil, err
		}
		tool := mcp.NewToolWithRawSchema(def.Name, def.Description, schema)
		tool.Annotations.ReadOnlyHint = boolPtr(def.ReadOnly())
		tool.Annotations.DestructiveHint = boolPtr(def.Destructive())
		tool.Annotations.OpenWorldHint = boolPtr(true)
		tools = append(tools, tool)
	}
	return tools, nil
}

func (s *Server) handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if dispatch.SourceFromContext(ctx) == dispatch.SourceUnknown {
		ctx = dispatch.WithSource(ctx, dispatch.SourceStdio)
	}
	res := s.dispatcher.Dispatch(ctx, req.Params.Name, req.GetArguments())
	if res.Failed {
		return mcp.NewToolResultError(res.Text), nil
	}
	return mcp.NewToolResultText(res.Text), nil
}

// ServeStdio serves MCP over in/out until ctx is cancelled or in closes.
// Nothing else may write to out.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger.With(zap.String("transport", "stdio"))))
	ctx = dispatch.WithSource(ctx, dispatch.SourceStdio)
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
