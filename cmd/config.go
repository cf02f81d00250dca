package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/csvagent/internal/ai"
	cfgpkg "github.com/KaramelBytes/csvagent/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set csvagent configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "provider: %s\n", c.Provider)
		fmt.Fprintf(out, "default_model: %s\n", c.DefaultModel)
		fmt.Fprintf(out, "ollama_model: %s\n", c.OllamaModel)
		fmt.Fprintf(out, "ollama_host: %s\n", c.OllamaHost)
		fmt.Fprintf(out, "openai_api_key: %s\n", mask(c.OpenAIAPIKey))
		fmt.Fprintf(out, "openrouter_api_key: %s\n", mask(c.OpenRouterAPIKey))
		fmt.Fprintf(out, "temperature: %.3f\n", c.Temperature)
		fmt.Fprintf(out, "max_steps: %d\n", c.MaxSteps)
		fmt.Fprintf(out, "use_memory: %t\n", c.UseMemory)
		if c.EmbeddingProvider != "" {
			fmt.Fprintf(out, "embedding_provider: %s\n", c.EmbeddingProvider)
			fmt.Fprintf(out, "embedding_model: %s\n", c.EmbeddingModel)
		}
		fmt.Fprintf(out, "data_dir: %s\n", c.DataDir)
		fmt.Fprintf(out, "reports_dir: %s\n", c.ReportsDir)
		fmt.Fprintf(out, "memory_db_path: %s\n", c.MemoryDBPath)
		fmt.Fprintf(out, "null_threshold: %.3f\n", c.NullThreshold)
		fmt.Fprintf(out, "contamination: %.3f\n", c.Contamination)
		fmt.Fprintf(out, "engine: %s\n", c.Engine)
		fmt.Fprintf(out, "api: %s\n", c.Addr())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if err := setKey(c, args[0], args[1]); err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setKey(c *cfgpkg.Config, key, val string) error {
	switch key {
	case "provider", "embedding_provider":
		p := strings.ToLower(val)
		known := false
		for _, name := range ai.Providers() {
			known = known || name == p
		}
		if !known && !(key == "embedding_provider" && p == "") {
			return fmt.Errorf("invalid %s: %s (use %s)", key, val, strings.Join(ai.Providers(), ", "))
		}
		if key == "provider" {
			c.Provider = p
		} else {
			c.EmbeddingProvider = p
		}
	case "default_model":
		c.DefaultModel = val
	case "ollama_model":
		c.OllamaModel = val
	case "ollama_host":
		c.OllamaHost = val
	case "openai_api_key":
		c.OpenAIAPIKey = val
	case "openrouter_api_key":
		c.OpenRouterAPIKey = val
	case "embedding_model":
		c.EmbeddingModel = val
	case "data_dir":
		c.DataDir = val
	case "reports_dir":
		c.ReportsDir = val
	case "engine":
		c.Engine = val
	case "temperature", "null_threshold", "contamination":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid float for %s: %w", key, err)
		}
		switch key {
		case "temperature":
			c.Temperature = f
		case "null_threshold":
			c.NullThreshold = f
		default:
			c.Contamination = f
		}
	case "max_steps", "memory_top_k", "api_port":
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid int for %s: %w", key, err)
		}
		switch key {
		case "max_steps":
			c.MaxSteps = i
		case "memory_top_k":
			c.MemoryTopK = i
		default:
			c.APIPort = i
		}
	case "use_memory":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for use_memory: %w", err)
		}
		c.UseMemory = b
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
