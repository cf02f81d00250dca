package ai

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/KaramelBytes/csvagent/internal/apperr"
)

// RuntimeConfig carries common knobs used by runtimes.
type RuntimeConfig struct {
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// OpenAI-compatible providers
	APIKey  string
	BaseURL string
	// Ollama
	Host string
}

// RuntimeFactory builds a Runtime from RuntimeConfig. It returns an error
// wrapping apperr.ErrMissingDependency when the provider cannot be reached
// with the given configuration.
type RuntimeFactory func(RuntimeConfig) (Runtime, error)

// EmbedderFactory builds an Embedder from RuntimeConfig.
type EmbedderFactory func(RuntimeConfig) (Embedder, error)

type provider struct {
	runtime  RuntimeFactory
	embedder EmbedderFactory
}

var (
	regMu    sync.RWMutex
	registry = map[string]provider{}
)

// RegisterRuntime registers a provider name with its factories. embedder
// may be nil.
func RegisterRuntime(name string, f RuntimeFactory, embedder EmbedderFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[strings.ToLower(name)] = provider{runtime: f, embedder: embedder}
}

func lookup(name string) (provider, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	p, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return provider{}, fmt.Errorf("provider %q (known: %s): %w", name, strings.Join(registeredNamesLocked(), ", "), apperr.ErrUnsupportedProvider)
	}
	return p, nil
}

// GetRuntime creates a Runtime for the named provider.
func GetRuntime(name string, cfg RuntimeConfig) (Runtime, error) {
	p, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return p.runtime(cfg)
}

// GetEmbedder creates an Embedder for the named provider.
func GetEmbedder(name string, cfg RuntimeConfig) (Embedder, error) {
	p, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if p.embedder == nil {
		return nil, fmt.Errorf("provider %q has no embeddings: %w", name, apperr.ErrMissingDependency)
	}
	return p.embedder(cfg)
}

func registeredNames() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	return registeredNamesLocked()
}

func registeredNamesLocked() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func openAICompatible(name, defaultURL string) (RuntimeFactory, EmbedderFactory) {
	build := func(c RuntimeConfig) (*Client, error) {
		if c.APIKey == "" {
			return nil, fmt.Errorf("%s API key is not set: %w", name, apperr.ErrMissingDependency)
		}
		if c.BaseURL == "" {
			c.BaseURL = defaultURL
		}
		return NewClientWithBaseURL(c.APIKey, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay, c.BaseURL), nil
	}
	runtime := func(c RuntimeConfig) (Runtime, error) {
		cl, err := build(c)
		if err != nil {
			return nil, err
		}
		return cl, nil
	}
	embedder := func(c RuntimeConfig) (Embedder, error) {
		cl, err := build(c)
		if err != nil {
			return nil, err
		}
		return cl, nil
	}
	return runtime, embedder
}

// init registers built-in runtimes.
func init() {
	rt, emb := openAICompatible(ProviderOpenAI, OpenAIBaseURL)
	RegisterRuntime(ProviderOpenAI, rt, emb)
	rt, emb = openAICompatible(ProviderOpenRouter, OpenRouterBaseURL)
	RegisterRuntime(ProviderOpenRouter, rt, emb)
	RegisterRuntime(ProviderOllama,
		func(c RuntimeConfig) (Runtime, error) {
			return NewOllamaClient(c.Host, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay), nil
		},
		func(c RuntimeConfig) (Embedder, error) {
			return NewOllamaEmbClient(c.Host, c.HTTPTimeout), nil
		},
	)
}
