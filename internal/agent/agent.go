// Package agent answers questions about one dataset by letting a model call
// the analysis tools.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/csvagent/internal/ai"
	"github.com/KaramelBytes/csvagent/internal/analysis"
	"github.com/KaramelBytes/csvagent/internal/apperr"
	"github.com/KaramelBytes/csvagent/internal/config"
	"github.com/KaramelBytes/csvagent/internal/logging"
	"github.com/KaramelBytes/csvagent/internal/memory"
	"github.com/KaramelBytes/csvagent/internal/utils"
)

// StoppedNotice is the answer given when the step limit is reached.
const StoppedNotice = "Agent stopped due to iteration limit or time limit."

// maxToolTokens bounds one tool result fed back to the model.
const maxToolTokens = 2000

const systemPrompt = `You are a meticulous data analyst working on a single CSV dataset.
Answer the user's question using the tools available to you: describe the data before
drawing conclusions, draw charts when a picture helps, and check for outliers when the
question is about unusual records. Cite which tools you used and what they returned.
Never invent numbers that did not come from a tool or from the dataset profile.
End every answer with a short bullet summary.`

// Config controls the agent loop.
type Config struct {
	Provider       string
	Model          string
	Temperature    float64
	MaxSteps       int
	UseMemory      bool
	RequestTimeout time.Duration
	MaxTokens      int
}

// DefaultConfig returns the agent defaults.
func DefaultConfig() Config {
	return Config{
		Provider:       ai.ProviderOpenAI,
		Model:          "gpt-4o-mini",
		MaxSteps:       8,
		UseMemory:      true,
		RequestTimeout: 120 * time.Second,
	}
}

// FromConfig derives the agent settings from the application config.
func FromConfig(c *config.Config) Config {
	cfg := DefaultConfig()
	if c == nil {
		return cfg
	}
	if c.Provider != "" {
		cfg.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	}
	if c.DefaultModel != "" {
		cfg.Model = c.DefaultModel
	}
	if cfg.Provider == ai.ProviderOllama && c.OllamaModel != "" {
		cfg.Model = c.OllamaModel
	}
	cfg.Temperature = c.Temperature
	if c.MaxSteps > 0 {
		cfg.MaxSteps = c.MaxSteps
	}
	cfg.UseMemory = c.UseMemory
	if c.RequestTimeoutSec > 0 {
		cfg.RequestTimeout = time.Duration(c.RequestTimeoutSec) * time.Second
	}
	return cfg
}

// RuntimeConfig builds the client settings for provider from c.
func RuntimeConfig(c *config.Config, provider string) ai.RuntimeConfig {
	rc := ai.RuntimeConfig{}
	if c == nil {
		return rc
	}
	rc.HTTPTimeout = time.Duration(c.RequestTimeoutSec) * time.Second
	rc.RetryMax = c.RetryMaxAttempts
	rc.BaseDelay = time.Duration(c.RetryBaseDelayMs) * time.Millisecond
	rc.MaxDelay = time.Duration(c.RetryMaxDelayMs) * time.Millisecond
	rc.Host = c.OllamaHost
	switch strings.ToLower(provider) {
	case ai.ProviderOpenAI:
		rc.APIKey = c.OpenAIAPIKey
		rc.BaseURL = c.OpenAIBaseURL
	case ai.ProviderOpenRouter:
		rc.APIKey = c.OpenRouterAPIKey
	}
	return rc
}

// Answer is the outcome of one question.
type Answer struct {
	Answer  string   `json:"answer"`
	Steps   int      `json:"steps"`
	Charts  []string `json:"charts"`
	Stopped bool     `json:"stopped"`
	Usage   ai.Usage `json:"usage"`
}

// Agent couples a model runtime with the tools of one dataset.
type Agent struct {
	cfg     Config
	rt      ai.Runtime
	tools   *Toolbox
	mem     *memory.Memory
	profile string
	notes   string
	log     *zap.Logger
}

// New returns an agent. mem may be nil, and is ignored when memory is off.
func New(cfg Config, rt ai.Runtime, tools *Toolbox, mem *memory.Memory, log *zap.Logger) (*Agent, error) {
	if rt == nil {
		return nil, fmt.Errorf("agent needs a model runtime")
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultConfig().MaxSteps
	}
	if !cfg.UseMemory {
		mem = nil
	}
	a := &Agent{cfg: cfg, rt: rt, tools: tools, mem: mem, log: logging.OrNop(log)}
	if t, err := tools.Dataset().Table(); err == nil {
		name := filepath.Base(tools.Dataset().Metadata.Path)
		if p, err := analysis.BuildProfile(name, t, analysis.DefaultProfileOptions()); err == nil {
			a.profile = p.Markdown()
		}
	}
	return a, nil
}

// Build resolves the runtime for cfg.Provider and returns an agent.
func Build(cfg Config, rc ai.RuntimeConfig, tools *Toolbox, mem *memory.Memory, log *zap.Logger) (*Agent, error) {
	rt, err := ai.GetRuntime(cfg.Provider, rc)
	if err != nil {
		return nil, err
	}
	return New(cfg, rt, tools, mem, log)
}

// SetNotes adds a description of the dataset, such as a data dictionary, to
// the system prompt.
func (a *Agent) SetNotes(notes string) { a.notes = strings.TrimSpace(notes) }

// Config returns the agent settings.
func (a *Agent) Config() Config { return a.cfg }

// Ask answers question, calling tools as the model requests them.
func (a *Agent) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("empty question: %w", apperr.ErrInvalidArgument)
	}
	msgs := []ai.Message{{Role: "system", Content: a.systemMessage()}}
	if a.mem != nil {
		recalled, err := a.mem.Recall(ctx, question)
		if err != nil {
			a.log.Warn("memory recall failed", zap.Error(err))
		}
		if recalled != "" {
			msgs = append(msgs, ai.Message{Role: "system", Content: recalled})
		}
		msgs = append(msgs, a.mem.Chat.Messages()...)
	}
	start := len(msgs)
	msgs = append(msgs, ai.Message{Role: "user", Content: question})

	out := &Answer{}
	defs := a.tools.Definitions()
	for step := 0; ; step++ {
		if step >= a.cfg.MaxSteps {
			out.Stopped = true
			out.Answer = StoppedNotice
			break
		}
		resp, err := a.generate(ctx, msgs, defs)
		if err != nil {
			return nil, err
		}
		out.Steps++
		out.Usage.PromptTokens += resp.Usage.PromptTokens
		out.Usage.CompletionTokens += resp.Usage.CompletionTokens
		out.Usage.TotalTokens += resp.Usage.TotalTokens
		reply, err := resp.Reply()
		if err != nil {
			return nil, err
		}
		if reply.Role == "" {
			reply.Role = "assistant"
		}
		msgs = append(msgs, reply)
		if len(reply.ToolCalls) == 0 {
			out.Answer = strings.TrimSpace(reply.Content)
			break
		}
		for _, call := range reply.ToolCalls {
			msgs = append(msgs, ai.Message{Role: "tool", ToolCallID: call.ID, Content: a.runTool(ctx, call)})
		}
	}
	out.Charts = a.tools.Charts()
	if a.mem != nil {
		turn := append([]ai.Message(nil), msgs[start:]...)
		if out.Stopped {
			turn = append(turn, ai.Message{Role: "assistant", Content: out.Answer})
		}
		a.mem.Record(ctx, question, out.Answer, turn...)
	}
	a.log.Info("question answered",
		zap.String("dataset", a.tools.Dataset().Namespace()),
		zap.Int("steps", out.Steps),
		zap.Bool("stopped", out.Stopped),
		zap.Int("charts", len(out.Charts)),
	)
	return out, nil
}

func (a *Agent) generate(ctx context.Context, msgs []ai.Message, defs []ai.Tool) (*ai.GenerateResponse, error) {
	if a.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.RequestTimeout)
		defer cancel()
	}
	return a.rt.Generate(ctx, ai.GenerateRequest{
		Model:       a.cfg.Model,
		Messages:    msgs,
		Tools:       defs,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	})
}

// runTool executes one call and renders its result or error as tool output.
func (a *Agent) runTool(ctx context.Context, call ai.ToolCall) string {
	res, err := a.tools.Call(ctx, call.Function.Name, call.Function.Arguments)
	if err != nil {
		a.log.Debug("tool failed", zap.String("tool", call.Function.Name), zap.Error(err))
		return "error: " + err.Error()
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return "error: " + err.Error()
	}
	a.log.Debug("tool ok", zap.String("tool", call.Function.Name), zap.Int("bytes", len(raw)))
	return utils.TruncateToTokenLimit(string(raw), maxToolTokens)
}

func (a *Agent) systemMessage() string {
	if ce := a.log.Check(zap.DebugLevel, "system prompt"); ce != nil {
		ce.Write(zap.Any("tokens", utils.TokenBreakdown(map[string]string{
			"prompt":  systemPrompt,
			"profile": a.profile,
			"notes":   a.notes,
		})))
	}
	var b strings.Builder
	b.WriteString(systemPrompt)
	if a.profile != "" {
		b.WriteString("\n\n")
		b.WriteString(a.profile)
	}
	if a.notes != "" {
		b.WriteString("\n\n[DATA DICTIONARY]\n")
		b.WriteString(a.notes)
	}
	return b.String()
}
