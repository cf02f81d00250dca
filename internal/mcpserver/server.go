// Package mcpserver exposes the analysis tools of one dataset as a Model
// Context Protocol server.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/KaramelBytes/csvagent/internal/agent"
	"github.com/KaramelBytes/csvagent/internal/logging"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// New returns an MCP server with one tool per analysis tool of tb.
func New(tb *agent.Toolbox, log *zap.Logger) *server.MCPServer {
	log = logging.OrNop(log)
	s := server.NewMCPServer("csvagent", Version, server.WithLogging())
	for _, t := range tb.Tools() {
		s.AddTool(definition(t), handler(tb, t, log))
	}
	return s
}

// Serve runs the server over stdio until the client disconnects or ctx is
// cancelled.
func Serve(ctx context.Context, tb *agent.Toolbox, log *zap.Logger) error {
	return Listen(ctx, tb, log, os.Stdin, os.Stdout)
}

// Listen runs the server over in and out.
func Listen(ctx context.Context, tb *agent.Toolbox, log *zap.Logger, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(New(tb, log)).Listen(ctx, in, out)
}

func definition(t agent.Tool) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(t.Description)}
	for _, p := range t.Params {
		props := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			props = append(props, mcp.Required())
		}
		switch p.Type {
		case agent.TypeNumber:
			opts = append(opts, mcp.WithNumber(p.Name, props...))
		default:
			opts = append(opts, mcp.WithString(p.Name, props...))
		}
	}
	return mcp.NewTool(t.Name, opts...)
}

// handler reports tool failures as error results so clients can show them.
func handler(tb *agent.Toolbox, t agent.Tool, log *zap.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := tb.Invoke(ctx, t, agent.Args(req.GetArguments()))
		// Paths travel in the result; nothing else collects them here.
		_ = tb.Charts()
		if err != nil {
			log.Debug("mcp tool failed", zap.String("tool", t.Name), zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", t.Name, err)), nil
		}
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}
