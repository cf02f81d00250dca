// Package session wires a loaded dataset to its tools, memory and agent.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/csvagent/internal/agent"
	"github.com/KaramelBytes/csvagent/internal/ai"
	"github.com/KaramelBytes/csvagent/internal/analysis"
	"github.com/KaramelBytes/csvagent/internal/anomaly"
	"github.com/KaramelBytes/csvagent/internal/chart"
	"github.com/KaramelBytes/csvagent/internal/config"
	"github.com/KaramelBytes/csvagent/internal/ingest"
	"github.com/KaramelBytes/csvagent/internal/logging"
	"github.com/KaramelBytes/csvagent/internal/memory"
	"github.com/KaramelBytes/csvagent/internal/notes"
	"github.com/KaramelBytes/csvagent/internal/prepare"
	"github.com/KaramelBytes/csvagent/internal/table"
)

// RuntimeFunc resolves the model runtime for an agent configuration.
type RuntimeFunc func(cfg agent.Config) (ai.Runtime, error)

// Env holds the components shared by every session of a process.
type Env struct {
	Config     *config.Config
	Engine     table.Engine
	Loader     *ingest.Loader
	Normalizer *prepare.Normalizer
	Memory     *memory.Manager
	RuntimeFor RuntimeFunc
	log        *zap.Logger
}

// NewEnv builds the shared components from c. Vector memory is opened only
// when an embedding provider is configured; failing to open it leaves the
// chat buffer as the only memory.
func NewEnv(c *config.Config, log *zap.Logger) (*Env, error) {
	log = logging.OrNop(log)
	engine, err := table.Probe(c.Engine)
	if err != nil {
		return nil, err
	}
	engine = table.Configure(engine, table.InferOptions{DecimalComma: c.DecimalComma})
	loader, err := ingest.NewLoader(ingest.Options{DataDir: c.DataDir, SampleBytes: c.SniffSampleBytes, Engine: engine}, log)
	if err != nil {
		return nil, err
	}
	env := &Env{
		Config:     c,
		Engine:     engine,
		Loader:     loader,
		Normalizer: prepare.NewNormalizer(c.NullThreshold, engine, log),
		log:        log,
	}
	env.RuntimeFor = func(cfg agent.Config) (ai.Runtime, error) {
		return ai.GetRuntime(cfg.Provider, agent.RuntimeConfig(c, cfg.Provider))
	}
	var store *memory.Store
	if c.UseMemory && c.EmbeddingProvider != "" {
		store, err = openStore(c, log)
		if err != nil {
			log.Warn("vector memory disabled", zap.Error(err))
			store = nil
		}
	}
	env.Memory = memory.NewManager(store, memory.BudgetFor(agent.FromConfig(c).Model), c.MemoryTopK, log)
	return env, nil
}

func openStore(c *config.Config, log *zap.Logger) (*memory.Store, error) {
	provider := strings.ToLower(c.EmbeddingProvider)
	emb, err := ai.GetEmbedder(provider, agent.RuntimeConfig(c, provider))
	if err != nil {
		return nil, err
	}
	return memory.Open(c.MemoryDBPath, emb, c.EmbeddingModel, log)
}

// Close releases the memory store.
func (e *Env) Close() error { return e.Memory.Close() }

// Open loads path and returns a session bound to it.
func (e *Env) Open(path string, lazy bool) (*Session, error) {
	ds, err := e.Loader.Load(path, lazy)
	if err != nil {
		return nil, err
	}
	return e.Bind(ds), nil
}

// Charts returns the renderer for a dataset namespace. Each dataset gets its
// own directory so equal column names never collide.
func (e *Env) Charts(namespace string) *chart.Renderer {
	return chart.Default(filepath.Join(e.Config.ImagesDir(), namespace), e.Config.HistogramBins, e.log)
}

// Bind returns a session for an already loaded dataset.
func (e *Env) Bind(ds *ingest.DatasetContext) *Session {
	return &Session{
		ID:      strings.ReplaceAll(uuid.NewString(), "-", ""),
		Dataset: ds,
		Tools:   agent.NewToolbox(ds, e.Engine, e.Charts(ds.Namespace()), e.Config.Contamination),
		env:     e,
	}
}

// Session is one dataset with its tools and agents. Its operations are
// serialized.
type Session struct {
	ID      string
	Dataset *ingest.DatasetContext
	Tools   *agent.Toolbox
	// Notes describe the dataset to the agent, for example a data dictionary.
	Notes string

	env    *Env
	mu     sync.Mutex
	agents map[string]*agent.Agent
}

// Overrides adjust the agent of a single question.
type Overrides struct {
	Provider string
	Model    string
	MaxSteps int
	NoMemory bool
}

func (s *Session) agentConfig(o Overrides) agent.Config {
	cfg := agent.FromConfig(s.env.Config)
	if o.Provider != "" {
		cfg.Provider = strings.ToLower(o.Provider)
		if o.Model == "" && cfg.Provider == ai.ProviderOllama && s.env.Config.OllamaModel != "" {
			cfg.Model = s.env.Config.OllamaModel
		}
	}
	if o.Model != "" {
		cfg.Model = o.Model
	}
	if o.MaxSteps > 0 {
		cfg.MaxSteps = o.MaxSteps
	}
	if o.NoMemory {
		cfg.UseMemory = false
	}
	return cfg
}

// Ask answers question with the agent selected by o.
func (s *Session) Ask(ctx context.Context, question string, o Overrides) (*agent.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.agentConfig(o)
	key := fmt.Sprintf("%s|%s|%d|%t", cfg.Provider, cfg.Model, cfg.MaxSteps, cfg.UseMemory)
	a, ok := s.agents[key]
	if !ok {
		rt, err := s.env.RuntimeFor(cfg)
		if err != nil {
			return nil, err
		}
		var mem *memory.Memory
		if cfg.UseMemory {
			mem = s.env.Memory.For(s.Dataset.Namespace())
		}
		a, err = agent.New(cfg, rt, s.Tools, mem, s.env.log)
		if err != nil {
			return nil, err
		}
		a.SetNotes(s.Notes)
		if s.agents == nil {
			s.agents = map[string]*agent.Agent{}
		}
		s.agents[key] = a
	}
	return a.Ask(ctx, question)
}

// AttachNotes reads a document describing the dataset and hands it to
// every agent of the session.
func (s *Session) AttachNotes(path string) error {
	text, err := notes.Load(path, notes.DefaultMaxTokens)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Notes = text
	for _, a := range s.agents {
		a.SetNotes(text)
	}
	return nil
}

// Describe computes the statistics of the dataset.
func (s *Session) Describe() (*analysis.StatsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return analysis.Describe(s.Dataset.Data, s.env.Engine)
}

// Prepare normalizes the dataset.
func (s *Session) Prepare() (*prepare.PreparedData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env.Normalizer.Prepare(s.Dataset.Data)
}

// Anomalies runs outlier detection. A zero contamination uses the configured one.
func (s *Session) Anomalies(opt anomaly.Options) (*anomaly.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opt.Contamination == 0 {
		opt.Contamination = s.env.Config.Contamination
	}
	return anomaly.Detect(s.Dataset.Data, s.env.Engine, opt)
}

// Forget drops the memory of the session's dataset.
func (s *Session) Forget(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = nil
	return s.env.Memory.Forget(ctx, s.Dataset.Namespace())
}
