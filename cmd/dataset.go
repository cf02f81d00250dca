package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/csvagent/internal/agent"
	"github.com/KaramelBytes/csvagent/internal/analysis"
	"github.com/KaramelBytes/csvagent/internal/prepare"
)

var ingestLazy bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Load a CSV file and print its metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, s, err := openSession(args[0], ingestLazy)
		if err != nil {
			return err
		}
		defer env.Close()
		md := s.Dataset.Metadata
		for _, w := range s.Dataset.Warnings {
			warn(cmd.ErrOrStderr(), "%s", w)
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"path":      md.Path,
			"rows":      md.NumRows,
			"columns":   md.Columns,
			"delimiter": md.Delimiter,
		})
	},
}

var prepareThreshold float64

var prepareCmd = &cobra.Command{
	Use:   "prepare <path>",
	Short: "Classify columns and drop the ones with too many missing values",
	Args:  cobra.ExactArgs(1),
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
		var p *prepare.PreparedData
		if cmd.Flags().Changed("threshold") {
			p, err = prepare.NewNormalizer(prepareThreshold, env.Engine, logger).Prepare(s.Dataset.Data)
		} else {
			p, err = s.Prepare()
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if err := printJSON(out, p); err != nil {
			return err
		}
		th := c.NullThreshold
		if cmd.Flags().Changed("threshold") {
			th = prepareThreshold
		}
		success(out, "%d columns retained, %d dropped (null threshold %.2f)", len(p.Retained()), len(p.DroppedColumns), th)
		return nil
	},
}

var (
	describeJSON    bool
	describeParquet string
)

var describeCmd = &cobra.Command{
	Use:   "describe <path>",
	Short: "Print descriptive statistics of every column",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, s, err := openSession(args[0], false)
		if err != nil {
			return err
		}
		defer env.Close()
		res, err := s.Describe()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if describeJSON {
			if err := printJSON(out, res); err != nil {
				return err
			}
		} else if err := printStatsTable(cmd, res); err != nil {
			return err
		}
		if describeParquet != "" {
			if err := analysis.WriteParquet(res, describeParquet); err != nil {
				return err
			}
			success(cmd.ErrOrStderr(), "Wrote statistics to %s", describeParquet)
		}
		return nil
	},
}

func printStatsTable(cmd *cobra.Command, res *analysis.StatsResult) error {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header(append([]string{"column", "kind"}, analysis.StatKeys...))
	var data [][]string
	for _, c := range res.Columns {
		row := []string{c, res.Kinds[c]}
		for _, k := range analysis.StatKeys {
			row = append(row, formatStat(res.Summary[c][k]))
		}
		data = append(data, row)
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	return nil
}

func formatStat(v any) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%.4g", x)
	case string:
		if len(x) > 24 {
			return x[:21] + "..."
		}
		return x
	default:
		return fmt.Sprint(x)
	}
}

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Draw charts of a CSV file",
}

var (
	chartTitle string
	chartColor string
)

var chartHistCmd = &cobra.Command{
	Use:   "hist <path> <column>",
	Short: "Draw a histogram (numeric) or a bar chart of value counts (categorical)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, s, err := openSession(args[0], false)
		if err != nil {
			return err
		}
		defer env.Close()
		res, err := s.Tools.Call(cmd.Context(), agent.ToolHistogram, argsJSON(map[string]string{"column": args[1], "title": chartTitle}))
		if err != nil {
			return err
		}
		return reportChart(cmd, res)
	},
}

var chartScatterCmd = &cobra.Command{
	Use:   "scatter <path> <x> <y>",
	Short: "Draw a scatter plot of two numeric columns",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, s, err := openSession(args[0], false)
		if err != nil {
			return err
		}
		defer env.Close()
		res, err := s.Tools.Call(cmd.Context(), agent.ToolScatter, argsJSON(map[string]string{"x": args[1], "y": args[2], "color": chartColor, "title": chartTitle}))
		if err != nil {
			return err
		}
		return reportChart(cmd, res)
	},
}

func reportChart(cmd *cobra.Command, res any) error {
	m, _ := res.(map[string]any)
	keys := make([]string, 0, len(m))
	for k := range m {
		if strings.HasSuffix(k, "_path") && m[k] != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		success(cmd.OutOrStdout(), "Saved %s", m[k])
	}
	return nil
}

var (
	anomalyContamination float64
	anomalyColumns       []string
)

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies <path>",
	Short: "Flag outlier rows with an isolation forest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, s, err := openSession(args[0], false)
		if err != nil {
			return err
		}
		defer env.Close()
		toolArgs := map[string]any{"columns": strings.Join(anomalyColumns, ",")}
		if cmd.Flags().Changed("contamination") {
			toolArgs["contamination"] = anomalyContamination
		}
		res, err := s.Tools.Call(cmd.Context(), agent.ToolOutliers, argsJSON(toolArgs))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd, prepareCmd, describeCmd, chartCmd, anomaliesCmd)
	chartCmd.AddCommand(chartHistCmd, chartScatterCmd)

	ingestCmd.Flags().BoolVar(&ingestLazy, "lazy", false, "defer materialization of the table")
	prepareCmd.Flags().Float64Var(&prepareThreshold, "threshold", 0.4, "drop columns whose null ratio exceeds this value")
	describeCmd.Flags().BoolVar(&describeJSON, "json", false, "print JSON instead of a table")
	describeCmd.Flags().StringVar(&describeParquet, "parquet", "", "also write the statistics to this Parquet file")
	chartCmd.PersistentFlags().StringVar(&chartTitle, "title", "", "chart title")
	chartScatterCmd.Flags().StringVar(&chartColor, "color", "", "column used to group points")
	anomaliesCmd.Flags().Float64Var(&anomalyContamination, "contamination", 0.05, "expected share of outliers in (0, 0.5]")
	anomaliesCmd.Flags().StringSliceVar(&anomalyColumns, "columns", nil, "numeric columns to use (default: all)")
}
