package mcpserver_test

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/csvagent/internal/agent"
	"github.com/KaramelBytes/csvagent/internal/chart"
	"github.com/KaramelBytes/csvagent/internal/ingest"
	"github.com/KaramelBytes/csvagent/internal/mcpserver"
)

func toolbox(t *testing.T) *agent.Toolbox {
	t.Helper()
	var b strings.Builder
	b.WriteString("kind,w,h\n")
	for i := 0; i < 25; i++ {
		b.WriteString([]string{"a", "b"}[i%2] + "," + strconv.Itoa(i%5) + "," + strconv.Itoa(i%4) + "\n")
	}
	p := filepath.Join(t.TempDir(), "shapes.csv")
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0o644))
	l, err := ingest.NewLoader(ingest.Options{}, nil)
	require.NoError(t, err)
	ds, err := l.Load(p, false)
	require.NoError(t, err)
	return agent.NewToolbox(ds, nil, chart.Default(t.TempDir(), 0, nil), 0)
}

func callTool(t *testing.T, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	s := mcpserver.New(toolbox(t), nil)
	tool := s.GetTool(name)
	require.NotNil(t, tool, "tool %s should exist", name)
	res, err := tool.Handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err, "tool failures are reported in the result")
	return res
}

func text(res *mcp.CallToolResult) string { return res.Content[0].(mcp.TextContent).Text }

func TestServer_RegistersTools(t *testing.T) {
	s := mcpserver.New(toolbox(t), nil)
	for _, name := range []string{agent.ToolDescribe, agent.ToolHistogram, agent.ToolScatter, agent.ToolOutliers} {
		tool := s.GetTool(name)
		require.NotNil(t, tool, name)
		assert.NotEmpty(t, tool.Tool.Description)
	}
	scatter := s.GetTool(agent.ToolScatter)
	assert.ElementsMatch(t, []string{"x", "y"}, scatter.Tool.InputSchema.Required)
}

func TestServer_Describe(t *testing.T) {
	res := callTool(t, agent.ToolDescribe, nil)
	assert.False(t, res.IsError)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text(res)), &out))
	assert.Contains(t, out["summary"], "w")
}

func TestServer_Histogram(t *testing.T) {
	res := callTool(t, agent.ToolHistogram, map[string]any{"column": "kind", "title": "Kinds"})
	assert.False(t, res.IsError, text(res))
	assert.Contains(t, text(res), "hist_kind")
}

func TestServer_Outliers(t *testing.T) {
	res := callTool(t, agent.ToolOutliers, map[string]any{"contamination": 0.1, "columns": "w,h"})
	assert.False(t, res.IsError, text(res))
	assert.Contains(t, text(res), `"impact_ratio"`)
}

func TestServer_ToolErrors(t *testing.T) {
	res := callTool(t, agent.ToolScatter, map[string]any{"x": "kind", "y": "w"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "draw_scatter failed")

	res = callTool(t, agent.ToolHistogram, map[string]any{})
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "column")
}

func TestServer_ChartPathsNotRetained(t *testing.T) {
	tb := toolbox(t)
	tool := mcpserver.New(tb, nil).GetTool(agent.ToolHistogram)
	require.NotNil(t, tool)
	for i := 0; i < 3; i++ {
		res, err := tool.Handler(context.Background(), mcp.CallToolRequest{
			Params: mcp.CallToolParams{Name: agent.ToolHistogram, Arguments: map[string]any{"column": "w"}},
		})
		require.NoError(t, err)
		require.False(t, res.IsError, text(res))
	}
	assert.Empty(t, tb.Charts())
}

func TestListen_StopsOnCancel(t *testing.T) {
	tb := toolbox(t)
	in, w := io.Pipe()
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mcpserver.Listen(ctx, tb, nil, in, io.Discard) }()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}
