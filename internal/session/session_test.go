package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/csvagent/internal/agent"
	"github.com/KaramelBytes/csvagent/internal/ai"
	"github.com/KaramelBytes/csvagent/internal/anomaly"
	"github.com/KaramelBytes/csvagent/internal/apperr"
	"github.com/KaramelBytes/csvagent/internal/config"
)

type echo struct {
	mu     sync.Mutex
	models []string
}

func (e *echo) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	e.mu.Lock()
	e.models = append(e.models, req.Model)
	e.mu.Unlock()
	last := req.Messages[len(req.Messages)-1].Content
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: "re: " + last}}}}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir:          filepath.Join(dir, "data"),
		CacheDir:         filepath.Join(dir, "cache"),
		ReportsDir:       filepath.Join(dir, "reports"),
		NullThreshold:    0.4,
		SniffSampleBytes: 8192,
		Engine:           "auto",
		Contamination:    0.05,
		HistogramBins:    10,
		Provider:         "openai",
		DefaultModel:     "gpt-4o-mini",
		OllamaModel:      "mistral",
		MaxSteps:         8,
		UseMemory:        true,
	}
}

func writeCSV(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func newEnv(t *testing.T) (*Env, *echo) {
	t.Helper()
	env, err := NewEnv(testConfig(t), nil)
	require.NoError(t, err)
	rt := &echo{}
	env.RuntimeFor = func(agent.Config) (ai.Runtime, error) { return rt, nil }
	t.Cleanup(func() { _ = env.Close() })
	return env, rt
}

func TestSession_AskUsesOverrides(t *testing.T) {
	env, rt := newEnv(t)
	s, err := env.Open(writeCSV(t, "a.csv", "x,y\n1,2\n3,4\n5,7\n"), false)
	require.NoError(t, err)
	assert.Len(t, s.ID, 32)

	ans, err := s.Ask(context.Background(), "hello", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "re: hello", ans.Answer)

	_, err = s.Ask(context.Background(), "again", Overrides{Provider: "ollama"})
	require.NoError(t, err)
	_, err = s.Ask(context.Background(), "third", Overrides{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o-mini", "mistral", "gpt-4o"}, rt.models)

	assert.Equal(t, 6, env.Memory.For("a").Chat.Len(), "every agent of a dataset shares its memory")
}

func TestSession_Tools(t *testing.T) {
	env, _ := newEnv(t)
	s, err := env.Open(writeCSV(t, "b.csv", "x,y,z\n1,2,\n3,4,\n5,7,q\n"), false)
	require.NoError(t, err)

	stats, err := s.Describe()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, stats.Columns)

	p, err := s.Prepare()
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, p.DroppedColumns)

	res, err := s.Anomalies(anomaly.Options{})
	require.NoError(t, err)
	assert.Equal(t, 0.05, res.Contamination)

	_, err = s.Anomalies(anomaly.Options{Columns: []string{"missing"}})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestSession_ChartsPerDataset(t *testing.T) {
	env, _ := newEnv(t)
	assert.NotEqual(t, env.Charts("one").Dir(), env.Charts("two").Dir())
	assert.Equal(t, filepath.Join(env.Config.ReportsDir, "images", "one"), env.Charts("one").Dir())
}

func TestSession_OpenErrors(t *testing.T) {
	env, _ := newEnv(t)
	_, err := env.Open(filepath.Join(t.TempDir(), "nope.csv"), false)
	assert.ErrorIs(t, err, apperr.ErrFileNotFound)
}

func TestNewEnv_UnknownEngine(t *testing.T) {
	c := testConfig(t)
	c.Engine = "spark"
	_, err := NewEnv(c, nil)
	assert.ErrorIs(t, err, apperr.ErrMissingDependency)
}

func TestNewEnv_DefaultRuntimeNeedsKey(t *testing.T) {
	env, err := NewEnv(testConfig(t), nil)
	require.NoError(t, err)
	s, err := env.Open(writeCSV(t, "c.csv", "x,y\n1,2\n3,4\n"), false)
	require.NoError(t, err)
	_, err = s.Ask(context.Background(), "hi", Overrides{})
	assert.ErrorIs(t, err, apperr.ErrMissingDependency)
}

func TestSession_AttachNotes(t *testing.T) {
	env, _ := newEnv(t)
	s, err := env.Open(writeCSV(t, "d.csv", "x,y\n1,2\n3,4\n"), false)
	require.NoError(t, err)
	require.NoError(t, s.AttachNotes(writeCSV(t, "dict.md", "# Dictionary\n\nx: width\n")))
	assert.Equal(t, "# Dictionary\n\nx: width", s.Notes)

	err = s.AttachNotes(filepath.Join(t.TempDir(), "none.md"))
	assert.ErrorIs(t, err, apperr.ErrFileNotFound)
}
