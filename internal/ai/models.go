package ai

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"
)

// DefaultContextTokens is assumed for models missing from the catalog.
const DefaultContextTokens = 8192

// ModelInfo describes a model's context window and illustrative pricing.
type ModelInfo struct {
	Name          string
	Provider      string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

var (
	catalogMu sync.RWMutex
	models    = builtinCatalog()
)

func builtinCatalog() map[string]ModelInfo {
	entries := []ModelInfo{
		{Name: "gpt-4o-mini", Provider: ProviderOpenAI, ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
		{Name: "gpt-4o", Provider: ProviderOpenAI, ContextTokens: 128000, InputPerK: 0.0025, OutputPerK: 0.01},
		{Name: "gpt-4.1-mini", Provider: ProviderOpenAI, ContextTokens: 1047576, InputPerK: 0.0004, OutputPerK: 0.0016},
		{Name: "gpt-3.5-turbo", Provider: ProviderOpenAI, ContextTokens: 16385, InputPerK: 0.0005, OutputPerK: 0.0015},
		{Name: "openai/gpt-4o-mini", Provider: ProviderOpenRouter, ContextTokens: 128000, InputPerK: 0.0006, OutputPerK: 0.0024},
		{Name: "openai/gpt-4o", Provider: ProviderOpenRouter, ContextTokens: 128000, InputPerK: 0.005, OutputPerK: 0.015},
		{Name: "anthropic/claude-3.5-sonnet", Provider: ProviderOpenRouter, ContextTokens: 200000, InputPerK: 0.003, OutputPerK: 0.015},
		{Name: "anthropic/claude-3-haiku", Provider: ProviderOpenRouter, ContextTokens: 200000, InputPerK: 0.00025, OutputPerK: 0.00125},
		{Name: "meta-llama/llama-3.1-70b-instruct", Provider: ProviderOpenRouter, ContextTokens: 131072},
		{Name: "mistral", Provider: ProviderOllama, ContextTokens: 32768},
		{Name: "mistral:7b-instruct", Provider: ProviderOllama, ContextTokens: 32768},
		{Name: "llama3.1:8b", Provider: ProviderOllama, ContextTokens: 131072},
		{Name: "llama3:latest", Provider: ProviderOllama, ContextTokens: 8192},
		{Name: "qwen2.5:7b", Provider: ProviderOllama, ContextTokens: 32768},
		{Name: "phi3:mini-4k-instruct", Provider: ProviderOllama, ContextTokens: 4096},
	}
	m := make(map[string]ModelInfo, len(entries))
	for _, e := range entries {
		m[e.Name] = e
	}
	return m
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	mi, ok := models[name]
	return mi, ok
}

// ContextWindow returns the model's context size in tokens.
func ContextWindow(name string) int {
	if mi, ok := LookupModel(name); ok && mi.ContextTokens > 0 {
		return mi.ContextTokens
	}
	return DefaultContextTokens
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}

// LoadCatalogFromJSON loads a JSON object map[string]ModelInfo from a file path.
// Example entry:
// { "gpt-4o-mini": {"Name":"gpt-4o-mini","Provider":"openai","ContextTokens":128000} }
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var m map[string]ModelInfo
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// MergeCatalog merges/overrides entries in the in-memory catalog.
func MergeCatalog(m map[string]ModelInfo) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	for k, v := range m {
		if v.Name == "" {
			v.Name = k
		}
		models[k] = v
	}
}

// Catalog returns the catalog entries for provider, or all entries when
// provider is empty, sorted by name.
func Catalog(provider string) []ModelInfo {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	out := make([]ModelInfo, 0, len(models))
	for _, v := range models {
		if provider == "" || strings.EqualFold(v.Provider, provider) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RecommendModel returns a recommended model name for a given tier and provider.
// Tiers: cheap, balanced, high-context.
func RecommendModel(provider, tier string) (string, bool) {
	recs := map[string]map[string]string{
		"cheap": {
			ProviderOpenAI:     "gpt-4o-mini",
			ProviderOpenRouter: "anthropic/claude-3-haiku",
			ProviderOllama:     "mistral",
		},
		"balanced": {
			ProviderOpenAI:     "gpt-4o",
			ProviderOpenRouter: "openai/gpt-4o",
			ProviderOllama:     "llama3.1:8b",
		},
		"high-context": {
			ProviderOpenAI:     "gpt-4.1-mini",
			ProviderOpenRouter: "anthropic/claude-3.5-sonnet",
			ProviderOllama:     "llama3.1:8b",
		},
	}
	name, ok := recs[strings.ToLower(tier)][strings.ToLower(provider)]
	return name, ok
}
