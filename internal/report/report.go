// Package report writes Markdown and JSON reports about a dataset.
package report

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/KaramelBytes/csvagent/internal/analysis"
	"github.com/KaramelBytes/csvagent/internal/anomaly"
	"github.com/KaramelBytes/csvagent/internal/apperr"
	"github.com/KaramelBytes/csvagent/internal/ingest"
	"github.com/KaramelBytes/csvagent/internal/prepare"
	"github.com/KaramelBytes/csvagent/internal/session"
	"github.com/KaramelBytes/csvagent/internal/utils"
)

// QA is one answered question.
type QA struct {
	Question string
	Answer   string
	Charts   []string
	Stopped  bool
}

// Report gathers everything a Markdown report shows.
type Report struct {
	Title       string
	GeneratedAt time.Time
	Metadata    ingest.DatasetMetadata
	Warnings    []string
	Prepared    *prepare.PreparedData
	Profile     *analysis.Profile
	Stats       *analysis.StatsResult
	Anomalies   *anomaly.Result
	// AnomalyNote explains why Anomalies is nil.
	AnomalyNote string
	Answers     []QA
}

// Collect runs the analysis tools on s and asks each question. A failed
// question is recorded with its error instead of aborting the report.
func Collect(ctx context.Context, s *session.Session, questions []string) (*Report, error) {
	ds := s.Dataset
	r := &Report{
		Title:       "Dataset report: " + filepath.Base(ds.Metadata.Path),
		GeneratedAt: time.Now().UTC(),
		Metadata:    ds.Metadata,
		Warnings:    ds.Warnings,
	}
	var err error
	if r.Prepared, err = s.Prepare(); err != nil {
		return nil, err
	}
	if r.Stats, err = s.Describe(); err != nil {
		return nil, err
	}
	t, err := ds.Table()
	if err != nil {
		return nil, err
	}
	if r.Profile, err = analysis.BuildProfile(filepath.Base(ds.Metadata.Path), t, analysis.DefaultProfileOptions()); err != nil {
		return nil, err
	}
	r.Anomalies, err = s.Anomalies(anomaly.Options{})
	switch {
	case errors.Is(err, apperr.ErrEmptyDataset):
		r.AnomalyNote = "Outlier detection skipped: " + err.Error()
	case err != nil:
		return nil, err
	}
	for _, q := range questions {
		if strings.TrimSpace(q) == "" {
			continue
		}
		ans, err := s.Ask(ctx, q, session.Overrides{})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.Answers = append(r.Answers, QA{Question: q, Answer: "Could not answer: " + err.Error()})
			continue
		}
		r.Answers = append(r.Answers, QA{Question: q, Answer: ans.Answer, Charts: ans.Charts, Stopped: ans.Stopped})
	}
	return r, nil
}

// DefaultPath is where the report of dataset is written inside reportsDir.
func DefaultPath(reportsDir, dataset string, quick bool) string {
	if quick {
		return filepath.Join(reportsDir, utils.Stem(dataset)+"_quick_report.json")
	}
	return filepath.Join(reportsDir, utils.Stem(dataset)+"_report.md")
}

// Markdown renders the report with a table of contents.
func (r *Report) Markdown() (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "## Dataset\n\n")
	md := r.Metadata
	fmt.Fprintf(&b, "- File: `%s`\n- Rows: %d\n- Columns: %d\n- Delimiter: `%s`\n- Size: %d bytes\n",
		md.Path, md.NumRows, md.NumColumns, printableDelimiter(md.Delimiter), md.SizeBytes)
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "- Warning: %s\n", w)
	}

	if p := r.Prepared; p != nil {
		b.WriteString("\n## Structure\n\n")
		writeGroup(&b, "Numeric", p.NumericColumns)
		writeGroup(&b, "Categorical", p.CategoricalColumns)
		writeGroup(&b, "Datetime", p.DatetimeColumns)
		writeGroup(&b, "Dropped (too many missing values)", p.DroppedColumns)
	}

	if r.Profile != nil {
		b.WriteString("\n## Profile\n\n```text\n")
		b.WriteString(strings.TrimRight(r.Profile.Markdown(), "\n"))
		b.WriteString("\n```\n")
	}

	if r.Stats != nil {
		b.WriteString("\n## Statistics\n\n")
		writeStatsTable(&b, r.Stats)
	}

	b.WriteString("\n## Anomalies\n\n")
	switch a := r.Anomalies; {
	case a != nil:
		fmt.Fprintf(&b, "%s\n\n", a.Message)
		fmt.Fprintf(&b, "- Columns: %s\n- Contamination: %.3f\n- Outliers: %d of %d rows (%.2f%%)\n",
			strings.Join(a.Columns, ", "), a.Contamination, a.OutlierCount, a.TotalRows, a.ImpactRatio*100)
		if len(a.Outliers) > 0 {
			rows := a.Outliers
			if len(rows) > 20 {
				rows = rows[:20]
			}
			strs := make([]string, len(rows))
			for i, v := range rows {
				strs[i] = fmt.Sprint(v)
			}
			fmt.Fprintf(&b, "- Flagged rows: %s", strings.Join(strs, ", "))
			if len(a.Outliers) > len(rows) {
				fmt.Fprintf(&b, " and %d more", len(a.Outliers)-len(rows))
			}
			b.WriteString("\n")
		}
	case r.AnomalyNote != "":
		b.WriteString(r.AnomalyNote + "\n")
	default:
		b.WriteString("Outlier detection was not run.\n")
	}

	if len(r.Answers) > 0 {
		b.WriteString("\n## Answered questions\n")
		for i, qa := range r.Answers {
			fmt.Fprintf(&b, "\n### %d. %s\n\n%s\n", i+1, oneLine(qa.Question), strings.TrimSpace(qa.Answer))
			for _, c := range qa.Charts {
				fmt.Fprintf(&b, "\n- Chart: [%s](%s)\n", filepath.Base(c), c)
			}
			if qa.Stopped {
				b.WriteString("\n_The agent hit its step limit on this question._\n")
			}
		}
	}

	if r.Stats != nil {
		raw, err := utils.PrettyJSON(r.Stats.Summary)
		if err != nil {
			return "", err
		}
		b.WriteString("\n## Appendix\n\nDescriptive statistics as JSON:\n\n```json\n")
		b.Write(raw)
		b.WriteString("\n```\n")
	}

	body := b.String()
	toc, err := TOC(body)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	fmt.Fprintf(&out, "# %s\n\n_Generated %s_\n\n", r.Title, r.GeneratedAt.Format(time.RFC3339))
	if toc != "" {
		out.WriteString("## Contents\n\n")
		out.WriteString(toc)
		out.WriteString("\n")
	}
	out.WriteString(body)
	return out.String(), nil
}

func writeGroup(b *strings.Builder, label string, cols []string) {
	if len(cols) == 0 {
		fmt.Fprintf(b, "- %s: none\n", label)
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(cols, ", "))
}

func writeStatsTable(b *strings.Builder, s *analysis.StatsResult) {
	keys := []string{"count", "unique", "top", "mean", "std", "min", "50%", "max"}
	b.WriteString("| column | kind | " + strings.Join(keys, " | ") + " |\n|---|---|")
	b.WriteString(strings.Repeat("---|", len(keys)) + "\n")
	for _, c := range s.Columns {
		row := s.Summary[c]
		cells := make([]string, len(keys))
		for i, k := range keys {
			cells[i] = cell(row[k])
		}
		fmt.Fprintf(b, "| %s | %s | %s |\n", escapeCell(c), s.Kinds[c], strings.Join(cells, " | "))
	}
}

func cell(v any) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%.4g", x)
	case string:
		return escapeCell(x)
	default:
		return fmt.Sprint(x)
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(oneLine(s), "|", `\|`)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func printableDelimiter(d string) string {
	if d == "\t" {
		return `\t`
	}
	return d
}

// Quick is the short JSON report.
type Quick struct {
	Dataset string   `json:"dataset"`
	Rows    int      `json:"rows"`
	Columns int      `json:"columns"`
	Notes   []string `json:"notes"`
}

// NewQuick summarizes md.
func NewQuick(md ingest.DatasetMetadata, warnings []string) Quick {
	notes := []string{
		"Run `csvagent report <path>` for the full Markdown report.",
		"Use `csvagent ask <path> <question>` to collect answers to your questions.",
	}
	notes = append(notes, warnings...)
	return Quick{Dataset: filepath.Base(md.Path), Rows: md.NumRows, Columns: md.NumColumns, Notes: notes}
}

// Write stores content at path, creating parent directories.
func Write(path string, content []byte) error {
	return utils.SafeWriteFile(path, content)
}
