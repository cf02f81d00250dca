package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is built once at process start and handed to every component
// that needs it.
type Config struct {
	ProjectName string `mapstructure:"project_name" yaml:"project_name"`

	// Storage layout
	DataDir      string `mapstructure:"data_dir" yaml:"data_dir"`
	CacheDir     string `mapstructure:"cache_dir" yaml:"cache_dir"`
	ReportsDir   string `mapstructure:"reports_dir" yaml:"reports_dir"`
	MemoryDBPath string `mapstructure:"memory_db_path" yaml:"memory_db_path"`

	// Ingestion and normalization
	NullThreshold    float64 `mapstructure:"null_threshold" yaml:"null_threshold"`
	SniffSampleBytes int     `mapstructure:"sniff_sample_bytes" yaml:"sniff_sample_bytes"`
	Engine           string  `mapstructure:"engine" yaml:"engine"`
	DecimalComma     bool    `mapstructure:"decimal_comma" yaml:"decimal_comma"`

	// Analysis tools
	Contamination float64 `mapstructure:"contamination" yaml:"contamination"`
	HistogramBins int     `mapstructure:"histogram_bins" yaml:"histogram_bins"`

	// Agent
	Provider          string  `mapstructure:"provider" yaml:"provider"`
	DefaultModel      string  `mapstructure:"default_model" yaml:"default_model"`
	OllamaModel       string  `mapstructure:"ollama_model" yaml:"ollama_model"`
	OpenAIAPIKey      string  `mapstructure:"openai_api_key" yaml:"openai_api_key"`
	OpenRouterAPIKey  string  `mapstructure:"openrouter_api_key" yaml:"openrouter_api_key"`
	OpenAIBaseURL     string  `mapstructure:"openai_base_url" yaml:"openai_base_url"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature"`
	RequestTimeoutSec int     `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`
	MaxSteps          int     `mapstructure:"max_steps" yaml:"max_steps"`
	UseMemory         bool    `mapstructure:"use_memory" yaml:"use_memory"`
	EmbeddingProvider string  `mapstructure:"embedding_provider" yaml:"embedding_provider"`
	EmbeddingModel    string  `mapstructure:"embedding_model" yaml:"embedding_model"`
	MemoryTopK        int     `mapstructure:"memory_top_k" yaml:"memory_top_k"`

	// HTTP/Retry configuration
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`

	// API server
	APIHost string `mapstructure:"api_host" yaml:"api_host"`
	APIPort int    `mapstructure:"api_port" yaml:"api_port"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// DefaultPath returns ~/.csvagent/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".csvagent", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.csvagent/config.yaml, creating the directory if necessary.
func Save(c *Config, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("project_name", "csvagent")
	v.SetDefault("data_dir", "data")
	v.SetDefault("cache_dir", filepath.Join("data", "cache"))
	v.SetDefault("reports_dir", "reports")
	v.SetDefault("memory_db_path", "")
	v.SetDefault("null_threshold", 0.4)
	v.SetDefault("sniff_sample_bytes", 8192)
	v.SetDefault("engine", "auto")
	v.SetDefault("decimal_comma", false)
	v.SetDefault("contamination", 0.05)
	v.SetDefault("histogram_bins", 20)
	v.SetDefault("provider", "openai")
	v.SetDefault("default_model", "gpt-4o-mini")
	v.SetDefault("ollama_model", "mistral")
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("temperature", 0.0)
	v.SetDefault("request_timeout_sec", 120)
	v.SetDefault("max_steps", 8)
	v.SetDefault("use_memory", true)
	v.SetDefault("embedding_provider", "")
	v.SetDefault("embedding_model", "text-embedding-3-small")
	v.SetDefault("memory_top_k", 3)
	// HTTP/retry defaults
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 8000)
	// Ollama defaults
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("api_host", "0.0.0.0")
	v.SetDefault("api_port", 8080)
	v.SetDefault("log_level", "info")
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. A missing config file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CSVAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// Conventional names used by provider SDKs and container setups.
	_ = v.BindEnv("openai_api_key", "CSVAGENT_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("openrouter_api_key", "CSVAGENT_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	_ = v.BindEnv("ollama_host", "CSVAGENT_OLLAMA_HOST", "OLLAMA_BASE_URL")
	_ = v.BindEnv("provider", "CSVAGENT_PROVIDER", "LLM_PROVIDER")
	_ = v.BindEnv("api_port", "CSVAGENT_API_PORT", "API_PORT")

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(p))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.MemoryDBPath == "" {
		c.MemoryDBPath = filepath.Join(c.CacheDir, "memory.db")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.NullThreshold < 0 || c.NullThreshold > 1 {
		return fmt.Errorf("null_threshold must be within [0,1], got %v", c.NullThreshold)
	}
	if c.SniffSampleBytes <= 0 {
		return fmt.Errorf("sniff_sample_bytes must be positive, got %d", c.SniffSampleBytes)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.Contamination <= 0 || c.Contamination > 0.5 {
		return fmt.Errorf("contamination must be within (0,0.5], got %v", c.Contamination)
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("api_port out of range: %d", c.APIPort)
	}
	return nil
}

// ImagesDir is where chart exports are written.
func (c *Config) ImagesDir() string { return filepath.Join(c.ReportsDir, "images") }

// Addr is the listen address of the API server.
func (c *Config) Addr() string { return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort) }
