package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/csvagent/internal/ai"
	cfgpkg "github.com/KaramelBytes/csvagent/internal/config"
	"github.com/KaramelBytes/csvagent/internal/logging"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int
	flagCatalogFile      string

	// Loaded configuration and logger
	cfg    *cfgpkg.Config
	cfgErr error
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "csvagent",
	Short: "csvagent: ask questions about CSV files",
	Long: `csvagent loads a CSV file, profiles it and lets a language model answer questions
about it by calling analysis tools: descriptive statistics, charts and outlier detection.
The same tools are served over HTTP and as an MCP server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fail(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.csvagent/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "model request timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagCatalogFile, "models-file", "", "JSON model catalog merged into the built-in one")
}

func loadConfig() {
	cfg, cfgErr = cfgpkg.Load(cfgFile)
	level := "info"
	if cfg != nil {
		level = cfg.LogLevel
	}
	l, err := logging.New(level, debug)
	if err != nil {
		l, _ = logging.New("info", debug)
	}
	if l != nil {
		logger = l
	}
	if cfgErr != nil {
		return
	}

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.RequestTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
	if flagCatalogFile != "" {
		m, err := ai.LoadCatalogFromJSON(flagCatalogFile)
		if err != nil {
			logger.Warn("model catalog not loaded", zap.String("file", flagCatalogFile), zap.Error(err))
		} else {
			ai.MergeCatalog(m)
		}
	}
	logger.Debug("config loaded", zap.String("provider", cfg.Provider), zap.String("data_dir", cfg.DataDir))
}

// requireConfig returns the loaded configuration or the reason it is missing.
func requireConfig() (*cfgpkg.Config, error) {
	if cfg == nil {
		if cfgErr != nil {
			return nil, fmt.Errorf("load config: %w", cfgErr)
		}
		return nil, fmt.Errorf("no configuration loaded")
	}
	return cfg, nil
}
