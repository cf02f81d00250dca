package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag of c and its children to its default so
// values do not leak between invocations.
func resetFlags(c *cobra.Command) {
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				if sv, ok := f.Value.(pflag.SliceValue); ok {
					_ = sv.Replace(nil)
				} else {
					_ = f.Value.Set(f.DefValue)
				}
				f.Changed = false
			}
		})
	}
	reset(c.Flags())
	reset(c.PersistentFlags())
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd executes the root command with args and returns its stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// workspace writes a config file rooted in a temp dir and returns its path.
func workspace(t *testing.T, extra string) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv("HOME", dir)
	body := "data_dir: " + filepath.Join(dir, "data") + "\n" +
		"cache_dir: " + filepath.Join(dir, "cache") + "\n" +
		"reports_dir: " + filepath.Join(dir, "reports") + "\n" +
		"use_memory: false\n" +
		"log_level: error\n" + extra
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return dir, cfgPath
}

func salesCSV(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("region,units,price,comment\n")
	for i := 0; i < 40; i++ {
		comment := ""
		if i%10 == 0 {
			comment = "promo"
		}
		b.WriteString([]string{"north", "south", "east"}[i%3] + "," + strconv.Itoa(5+i%8) + "," + strconv.Itoa(20+i%4) + "," + comment + "\n")
	}
	b.WriteString("north,700,5000,\n")
	p := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0o644))
	return p
}

func TestCLI_Ingest(t *testing.T) {
	dir, cfgPath := workspace(t, "")
	out, err := runCmd(t, "--config", cfgPath, "ingest", salesCSV(t, dir))
	require.NoError(t, err)
	var md map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &md))
	assert.EqualValues(t, 41, md["rows"])
	assert.Equal(t, ",", md["delimiter"])
	assert.Len(t, md["columns"], 4)
}

func TestCLI_Prepare(t *testing.T) {
	dir, cfgPath := workspace(t, "")
	p := salesCSV(t, dir)
	out, err := runCmd(t, "--config", cfgPath, "prepare", p)
	require.NoError(t, err)
	assert.Contains(t, out, `"dropped_columns": [`)
	assert.Contains(t, out, "3 columns retained, 1 dropped")

	out, err = runCmd(t, "--config", cfgPath, "prepare", p, "--threshold", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "4 columns retained, 0 dropped")
}

func TestCLI_Describe(t *testing.T) {
	dir, cfgPath := workspace(t, "")
	p := salesCSV(t, dir)
	out, err := runCmd(t, "--config", cfgPath, "describe", p)
	require.NoError(t, err)
	assert.Contains(t, out, "units")
	assert.Contains(t, out, "numeric")
	assert.Contains(t, out, "Descriptive statistics over 41 rows")

	pq := filepath.Join(dir, "stats.parquet")
	out, err = runCmd(t, "--config", cfgPath, "describe", p, "--json", "--parquet", pq)
	require.NoError(t, err)
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Contains(t, res, "summary")
	assert.FileExists(t, pq)
}

func TestCLI_ChartAndAnomalies(t *testing.T) {
	dir, cfgPath := workspace(t, "")
	p := salesCSV(t, dir)

	out, err := runCmd(t, "--config", cfgPath, "chart", "hist", p, "units", "--title", "Units")
	require.NoError(t, err)
	assert.Contains(t, out, "hist_units.html")
	assert.Contains(t, out, "hist_units.png")
	assert.FileExists(t, filepath.Join(dir, "reports", "images", "sales", "hist_units.html"))

	out, err = runCmd(t, "--config", cfgPath, "chart", "scatter", p, "units", "price", "--color", "region")
	require.NoError(t, err)
	assert.Contains(t, out, "scatter_units_price")

	_, err = runCmd(t, "--config", cfgPath, "chart", "scatter", p, "region", "price")
	assert.Error(t, err)

	out, err = runCmd(t, "--config", cfgPath, "anomalies", p, "--columns", "units,price", "--contamination", "0.05")
	require.NoError(t, err)
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Contains(t, res["outlier_rows"], 40.0)
	assert.Equal(t, []any{"units", "price"}, res["columns"])
}

func TestCLI_MissingFile(t *testing.T) {
	_, cfgPath := workspace(t, "")
	_, err := runCmd(t, "--config", cfgPath, "describe", filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")
}

// ollamaStub answers /api/chat: a describe call first, then a final answer.
func ollamaStub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Messages[len(req.Messages)-1].Role == "user" {
			_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"describe_dataset","arguments":{}}}]},"done":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"North sells the most.\n- north leads"},"done":true,"prompt_eval_count":12,"eval_count":7}`))
	}))
}

func TestCLI_AskWithOllama(t *testing.T) {
	ts := ollamaStub(t)
	defer ts.Close()
	dir, cfgPath := workspace(t, "provider: ollama\nollama_host: "+ts.URL+"\nretry_max_attempts: 1\n")
	p := salesCSV(t, dir)

	out, err := runCmd(t, "--config", cfgPath, "ask", p, "Which region sells most?")
	require.NoError(t, err)
	assert.Contains(t, out, "North sells the most.")

	out, err = runCmd(t, "--config", cfgPath, "ask", p, "Which region sells most?", "--json")
	require.NoError(t, err)
	var ans map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &ans))
	assert.EqualValues(t, 2, ans["steps"])
	assert.Equal(t, false, ans["stopped"])

	out, err = runCmd(t, "--config", cfgPath, "ask", p, "Which region sells most?", "--max-steps", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Agent stopped due to iteration limit")
}

func TestCLI_AskUnsupportedProvider(t *testing.T) {
	dir, cfgPath := workspace(t, "")
	_, err := runCmd(t, "--config", cfgPath, "ask", salesCSV(t, dir), "hi", "--provider", "abacus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestCLI_Report(t *testing.T) {
	ts := ollamaStub(t)
	defer ts.Close()
	dir, cfgPath := workspace(t, "provider: ollama\nollama_host: "+ts.URL+"\n")
	p := salesCSV(t, dir)

	out, err := runCmd(t, "--config", cfgPath, "report", p, "-q", "Which region sells most?")
	require.NoError(t, err)
	want := filepath.Join(dir, "reports", "sales_report.md")
	assert.Contains(t, out, want)
	md, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Contains(t, string(md), "North sells the most.")
	assert.Contains(t, string(md), "## Anomalies")

	out, err = runCmd(t, "--config", cfgPath, "report", p, "--quick")
	require.NoError(t, err)
	quick := filepath.Join(dir, "reports", "sales_quick_report.json")
	assert.Contains(t, out, quick)
	raw, err := os.ReadFile(quick)
	require.NoError(t, err)
	var q map[string]any
	require.NoError(t, json.Unmarshal(raw, &q))
	assert.Equal(t, "sales.csv", q["dataset"])
	assert.EqualValues(t, 41, q["rows"])
	assert.EqualValues(t, 4, q["columns"])
}

func TestCLI_ConfigSetAndShow(t *testing.T) {
	_, cfgPath := workspace(t, "")
	_, err := runCmd(t, "--config", cfgPath, "config", "set", "provider", "OpenRouter")
	require.NoError(t, err)
	_, err = runCmd(t, "--config", cfgPath, "config", "set", "openrouter_api_key", "sk-or-1234567890")
	require.NoError(t, err)

	out, err := runCmd(t, "--config", cfgPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "provider: openrouter")
	assert.Contains(t, out, "openrouter_api_key: sk-****890")

	_, err = runCmd(t, "--config", cfgPath, "config", "set", "provider", "abacus")
	assert.Error(t, err)
	_, err = runCmd(t, "--config", cfgPath, "config", "set", "contamination", "0.9")
	assert.Error(t, err)
	_, err = runCmd(t, "--config", cfgPath, "config", "set", "nope", "1")
	assert.Error(t, err)
}

func TestCLI_Models(t *testing.T) {
	_, cfgPath := workspace(t, "")
	out, err := runCmd(t, "--config", cfgPath, "models", "show", "--provider", "ollama")
	require.NoError(t, err)
	assert.Contains(t, out, "mistral")

	out, err = runCmd(t, "--config", cfgPath, "models", "recommend", "--provider", "openai", "--tier", "cheap")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini\n", out)

	_, err = runCmd(t, "--config", cfgPath, "models", "recommend", "--tier", "imaginary")
	assert.Error(t, err)
}
