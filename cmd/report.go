package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/csvagent/internal/report"
	"github.com/KaramelBytes/csvagent/internal/utils"
)

var (
	reportOutput    string
	reportQuick     bool
	reportRender    bool
	reportQuestions []string
	reportNotes     string
)

var reportCmd = &cobra.Command{
	Use:   "report <path>",
	Short: "Write a Markdown report (or a quick JSON summary) about a CSV file",
	Example: `  csvagent report data/sales.csv
  csvagent report data/sales.csv --question "Which region grows fastest?" --render
  csvagent report data/sales.csv --quick`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		env, s, err := openSession(args[0], false)
		if err != nil {
			return err
		}
		defer env.Close()
		out := reportOutput
		if out == "" {
			out = report.DefaultPath(c.ReportsDir, args[0], reportQuick)
		}
		if reportQuick {
			raw, err := utils.PrettyJSON(report.NewQuick(s.Dataset.Metadata, s.Dataset.Warnings))
			if err != nil {
				return err
			}
			if err := report.Write(out, raw); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Quick report saved to %s", out)
			return nil
		}
		if reportNotes != "" {
			if err := s.AttachNotes(reportNotes); err != nil {
				return err
			}
		}
		r, err := report.Collect(cmd.Context(), s, reportQuestions)
		if err != nil {
			return err
		}
		md, err := r.Markdown()
		if err != nil {
			return err
		}
		if err := report.Write(out, []byte(md)); err != nil {
			return err
		}
		if reportRender {
			rendered, err := report.Render(md, 100)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered)
		}
		success(cmd.OutOrStdout(), "Report saved to %s", out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "output file (default <reports_dir>/<name>_report.md)")
	reportCmd.Flags().BoolVar(&reportQuick, "quick", false, "write the short JSON summary instead")
	reportCmd.Flags().BoolVar(&reportRender, "render", false, "also print the report formatted for the terminal")
	reportCmd.Flags().StringArrayVarP(&reportQuestions, "question", "q", nil, "question for the agent to answer in the report (repeatable)")
	reportCmd.Flags().StringVar(&reportNotes, "notes", "", "data dictionary (.txt, .md or .docx) given to the agent")
}
