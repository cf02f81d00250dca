package cmd

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/csvagent/internal/ai"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the model catalog",
	Example: `  csvagent models show
  csvagent models show --provider ollama
  csvagent models recommend --tier high-context`,
}

var (
	modelsProvider string
	modelsJSON     bool
)

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show known models with their context windows and prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := ai.Catalog(modelsProvider)
		if modelsJSON {
			return printJSON(cmd.OutOrStdout(), cat)
		}
		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.Header([]string{"Model", "Provider", "Context", "In $/1K", "Out $/1K"})
		var data [][]string
		for _, m := range cat {
			data = append(data, []string{
				m.Name,
				m.Provider,
				strconv.Itoa(m.ContextTokens),
				fmt.Sprintf("%.5f", m.InputPerK),
				fmt.Sprintf("%.5f", m.OutputPerK),
			})
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		return table.Render()
	},
}

var modelsTier string

var modelsRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend a model for a provider and tier (cheap, balanced, high-context)",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := modelsProvider
		if provider == "" {
			if c, err := requireConfig(); err == nil {
				provider = c.Provider
			} else {
				provider = ai.ProviderOpenAI
			}
		}
		name, ok := ai.RecommendModel(provider, modelsTier)
		if !ok {
			return fmt.Errorf("no recommendation for provider %q and tier %q", provider, modelsTier)
		}
		fmt.Fprintln(cmd.OutOrStdout(), name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd, modelsRecommendCmd)
	modelsCmd.PersistentFlags().StringVar(&modelsProvider, "provider", "", "limit to one provider")
	modelsShowCmd.Flags().BoolVar(&modelsJSON, "json", false, "print JSON")
	modelsRecommendCmd.Flags().StringVar(&modelsTier, "tier", "cheap", "cheap, balanced or high-context")
}
