package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/csvagent/internal/session"
)

var (
	askModel    string
	askProvider string
	askMaxSteps int
	askNoMemory bool
	askLazy     bool
	askJSON     bool
	askNotes    string
)

var askCmd = &cobra.Command{
	Use:   "ask <path> <question>",
	Short: "Ask the agent a question about a CSV file",
	Example: `  csvagent ask data/sales.csv "Which region sells the most units?"
  csvagent ask data/sales.csv "Are there unusual orders?" --provider ollama --model mistral`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, s, err := openSession(args[0], askLazy)
		if err != nil {
			return err
		}
		defer env.Close()
		if askNotes != "" {
			if err := s.AttachNotes(askNotes); err != nil {
				return err
			}
		}
		ans, err := s.Ask(cmd.Context(), args[1], session.Overrides{
			Provider: askProvider,
			Model:    askModel,
			MaxSteps: askMaxSteps,
			NoMemory: askNoMemory,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if askJSON {
			return printJSON(out, ans)
		}
		fmt.Fprintln(out, ans.Answer)
		for _, c := range ans.Charts {
			success(out, "Chart: %s", c)
		}
		if ans.Stopped {
			warn(cmd.ErrOrStderr(), "stopped after %d steps", ans.Steps)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askModel, "model", "", "model name (default from config)")
	askCmd.Flags().StringVar(&askProvider, "provider", "", "model provider: openai, openrouter or ollama")
	askCmd.Flags().IntVar(&askMaxSteps, "max-steps", 0, "maximum tool-calling rounds (default from config)")
	askCmd.Flags().BoolVar(&askNoMemory, "no-memory", false, "answer without conversation memory")
	askCmd.Flags().BoolVar(&askLazy, "lazy", false, "load the file lazily")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the answer as JSON")
	askCmd.Flags().StringVar(&askNotes, "notes", "", "data dictionary (.txt, .md or .docx) given to the agent")
}
