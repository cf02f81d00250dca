package agent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/csvagent/internal/ai"
	"github.com/KaramelBytes/csvagent/internal/apperr"
	"github.com/KaramelBytes/csvagent/internal/chart"
	"github.com/KaramelBytes/csvagent/internal/config"
	"github.com/KaramelBytes/csvagent/internal/ingest"
	"github.com/KaramelBytes/csvagent/internal/memory"
)

// scripted replays canned replies and records every request.
type scripted struct {
	mu       sync.Mutex
	replies  []ai.Message
	requests []ai.GenerateRequest
	err      error
}

func (s *scripted) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	i := len(s.requests) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return &ai.GenerateResponse{
		Choices: []ai.Choice{{Message: s.replies[i]}},
		Usage:   ai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func call(id, name string, args map[string]any) ai.ToolCall {
	raw, _ := json.Marshal(args)
	return ai.ToolCall{ID: id, Type: "function", Function: ai.FunctionCall{Name: name, Arguments: string(raw)}}
}

func toolReply(calls ...ai.ToolCall) ai.Message {
	return ai.Message{Role: "assistant", ToolCalls: calls}
}

func loadSales(t *testing.T) *ingest.DatasetContext {
	t.Helper()
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("region,units,price\n")
	for i := 0; i < 40; i++ {
		b.WriteString([]string{"north", "south"}[i%2] + "," + strconv.Itoa(10+i%7) + "," + strconv.Itoa(100+i%5) + "\n")
	}
	b.WriteString("north,900,9000\n")
	p := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0o644))
	l, err := ingest.NewLoader(ingest.Options{}, nil)
	require.NoError(t, err)
	ds, err := l.Load(p, false)
	require.NoError(t, err)
	return ds
}

func newToolbox(t *testing.T) *Toolbox {
	t.Helper()
	ds := loadSales(t)
	return NewToolbox(ds, nil, chart.Default(t.TempDir(), 0, nil), 0)
}

func TestAsk_DirectAnswer(t *testing.T) {
	rt := &scripted{replies: []ai.Message{{Role: "assistant", Content: " The data has 41 rows. "}}}
	a, err := New(DefaultConfig(), rt, newToolbox(t), nil, nil)
	require.NoError(t, err)

	ans, err := a.Ask(context.Background(), "How many rows?")
	require.NoError(t, err)
	assert.Equal(t, "The data has 41 rows.", ans.Answer)
	assert.Equal(t, 1, ans.Steps)
	assert.False(t, ans.Stopped)
	assert.Empty(t, ans.Charts)

	req := rt.requests[0]
	require.Len(t, req.Tools, 4)
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "[SCHEMA]")
	assert.Contains(t, req.Messages[0].Content, "sales.csv")
	assert.Equal(t, "How many rows?", req.Messages[len(req.Messages)-1].Content)
}

func TestAsk_RunsToolsAndFeedsResults(t *testing.T) {
	rt := &scripted{replies: []ai.Message{
		toolReply(
			call("c1", ToolDescribe, nil),
			call("c2", ToolHistogram, map[string]any{"column": "units"}),
		),
		toolReply(call("c3", ToolOutliers, map[string]any{"contamination": 0.05})),
		{Role: "assistant", Content: "done"},
	}}
	a, err := New(DefaultConfig(), rt, newToolbox(t), nil, nil)
	require.NoError(t, err)

	ans, err := a.Ask(context.Background(), "Summarize units and find odd rows")
	require.NoError(t, err)
	assert.Equal(t, "done", ans.Answer)
	assert.Equal(t, 3, ans.Steps)
	assert.Equal(t, 45, ans.Usage.TotalTokens)
	require.Len(t, ans.Charts, 1)
	assert.True(t, strings.HasSuffix(ans.Charts[0], ".html"))
	assert.FileExists(t, ans.Charts[0])

	second := rt.requests[1].Messages
	tool1, tool2 := second[len(second)-2], second[len(second)-1]
	assert.Equal(t, "tool", tool1.Role)
	assert.Equal(t, "c1", tool1.ToolCallID)
	assert.Contains(t, tool1.Content, `"summary"`)
	assert.Equal(t, "c2", tool2.ToolCallID)
	assert.Contains(t, tool2.Content, "hist_units")

	third := rt.requests[2].Messages
	last := third[len(third)-1]
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(last.Content), &out))
	assert.GreaterOrEqual(t, out["outlier_count"], 1.0)
}

func TestAsk_ToolErrorsGoBackToModel(t *testing.T) {
	rt := &scripted{replies: []ai.Message{
		toolReply(call("c1", ToolHistogram, map[string]any{"column": "nope"})),
		toolReply(call("c2", "unknown_tool", nil)),
		{Role: "assistant", Content: "sorry"},
	}}
	a, err := New(DefaultConfig(), rt, newToolbox(t), nil, nil)
	require.NoError(t, err)

	ans, err := a.Ask(context.Background(), "plot nope")
	require.NoError(t, err)
	assert.Equal(t, "sorry", ans.Answer)
	msgs := rt.requests[1].Messages
	assert.True(t, strings.HasPrefix(msgs[len(msgs)-1].Content, "error: "))
	msgs = rt.requests[2].Messages
	assert.Contains(t, msgs[len(msgs)-1].Content, "unknown tool")
}

func TestAsk_StopsAtStepLimit(t *testing.T) {
	rt := &scripted{replies: []ai.Message{toolReply(call("c", ToolDescribe, nil))}}
	cfg := DefaultConfig()
	cfg.MaxSteps = 3
	a, err := New(cfg, rt, newToolbox(t), nil, nil)
	require.NoError(t, err)

	ans, err := a.Ask(context.Background(), "loop forever")
	require.NoError(t, err)
	assert.True(t, ans.Stopped)
	assert.Equal(t, StoppedNotice, ans.Answer)
	assert.Equal(t, 3, ans.Steps)
	assert.Len(t, rt.requests, 3)
}

func TestAsk_Errors(t *testing.T) {
	boom := &ai.ServerError{APIError: &ai.APIError{StatusCode: 502, Message: "bad gateway"}}
	a, err := New(DefaultConfig(), &scripted{err: boom}, newToolbox(t), nil, nil)
	require.NoError(t, err)
	_, err = a.Ask(context.Background(), "hi")
	var se *ai.ServerError
	assert.True(t, errors.As(err, &se))

	_, err = a.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = New(DefaultConfig(), nil, newToolbox(t), nil, nil)
	assert.Error(t, err)
}

func TestAsk_MemoryCarriesHistory(t *testing.T) {
	tools := newToolbox(t)
	mem := memory.NewManager(nil, 100000, 3, nil).For(tools.Dataset().Namespace())
	rt := &scripted{replies: []ai.Message{{Role: "assistant", Content: "first answer"}}}
	a, err := New(DefaultConfig(), rt, tools, mem, nil)
	require.NoError(t, err)

	_, err = a.Ask(context.Background(), "first question")
	require.NoError(t, err)
	_, err = a.Ask(context.Background(), "second question")
	require.NoError(t, err)

	msgs := rt.requests[1].Messages
	var contents []string
	for _, m := range msgs {
		contents = append(contents, m.Content)
	}
	assert.Contains(t, contents, "first question")
	assert.Contains(t, contents, "first answer")
	assert.Equal(t, "second question", contents[len(contents)-1])
	assert.Equal(t, 4, mem.Chat.Len())
}

func TestAsk_MemoryDisabled(t *testing.T) {
	tools := newToolbox(t)
	mem := memory.NewManager(nil, 100000, 3, nil).For("sales")
	cfg := DefaultConfig()
	cfg.UseMemory = false
	rt := &scripted{replies: []ai.Message{{Role: "assistant", Content: "ok"}}}
	a, err := New(cfg, rt, tools, mem, nil)
	require.NoError(t, err)
	_, err = a.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 0, mem.Chat.Len())
}

func TestBuild_ProviderErrors(t *testing.T) {
	tools := newToolbox(t)
	cfg := DefaultConfig()
	cfg.Provider = "carrier-pigeon"
	_, err := Build(cfg, ai.RuntimeConfig{}, tools, nil, nil)
	assert.ErrorIs(t, err, apperr.ErrUnsupportedProvider)

	cfg.Provider = ai.ProviderOpenAI
	_, err = Build(cfg, ai.RuntimeConfig{}, tools, nil, nil)
	assert.ErrorIs(t, err, apperr.ErrMissingDependency)

	cfg.Provider = ai.ProviderOllama
	_, err = Build(cfg, ai.RuntimeConfig{Host: "http://127.0.0.1:1"}, tools, nil, nil)
	assert.NoError(t, err)
}

func TestFromConfig(t *testing.T) {
	c := &config.Config{Provider: "Ollama", DefaultModel: "gpt-4o", OllamaModel: "llama3", MaxSteps: 4, UseMemory: false, RequestTimeoutSec: 30, Temperature: 0.2}
	cfg := FromConfig(c)
	assert.Equal(t, ai.ProviderOllama, cfg.Provider)
	assert.Equal(t, "llama3", cfg.Model)
	assert.Equal(t, 4, cfg.MaxSteps)
	assert.False(t, cfg.UseMemory)
	assert.Equal(t, 0.2, cfg.Temperature)

	c.Provider = "openai"
	assert.Equal(t, "gpt-4o", FromConfig(c).Model)
	assert.Equal(t, DefaultConfig(), FromConfig(nil))

	rc := RuntimeConfig(&config.Config{OpenAIAPIKey: "k1", OpenRouterAPIKey: "k2", OllamaHost: "h"}, "openrouter")
	assert.Equal(t, "k2", rc.APIKey)
	assert.Equal(t, "h", rc.Host)
}

func TestAsk_NotesInSystemPrompt(t *testing.T) {
	rt := &scripted{replies: []ai.Message{{Role: "assistant", Content: "ok"}}}
	a, err := New(DefaultConfig(), rt, newToolbox(t), nil, nil)
	require.NoError(t, err)
	a.SetNotes("  units: items sold per order  ")
	_, err = a.Ask(context.Background(), "what are units?")
	require.NoError(t, err)
	sys := rt.requests[0].Messages[0].Content
	assert.Contains(t, sys, "[DATA DICTIONARY]\nunits: items sold per order")
}
