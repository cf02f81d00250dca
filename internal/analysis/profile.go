// Package analysis computes descriptive statistics and dataset profiles.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/csvagent/internal/table"
)

// ProfileOptions controls profile construction.
type ProfileOptions struct {
	// SampleRows determines how many example rows to include.
	SampleRows int
	// TopValues limits the categorical values listed per column.
	TopValues int
	// MinCorrelation hides weaker pairs.
	MinCorrelation float64
	// OutlierThreshold is the robust |z| cutoff; 0 disables the count.
	OutlierThreshold float64
}

// DefaultProfileOptions returns reasonable defaults for dataset profiles.
func DefaultProfileOptions() ProfileOptions {
	return ProfileOptions{SampleRows: 5, TopValues: 5, MinCorrelation: 0.3, OutlierThreshold: 3.5}
}

// Profile is a markdown-friendly description of a dataset, used as model
// context and in reports.
type Profile struct {
	Name     string
	Rows     int
	Cols     []ColumnProfile
	Samples  [][]string
	Pairs    []PairCorr
	Warnings []string
}

// ColumnProfile captures the kind and summary of one column.
type ColumnProfile struct {
	Name    string
	Kind    string // numeric|datetime|categorical
	NonNull int
	Missing int
	Unique  int
	// Numeric stats
	Min  float64
	Max  float64
	Mean float64
	Std  float64
	// Robust outliers
	OutliersCount    int
	OutliersMaxAbsZ  float64
	OutlierThreshold float64
	// Categorical top values
	TopValues []CategoryCount
}

// PairCorr is a Pearson correlation between two numeric columns.
type PairCorr struct {
	A, B string
	R    float64
	N    int
}

// BuildProfile summarizes t.
func BuildProfile(name string, t table.Table, opt ProfileOptions) (*Profile, error) {
	p := &Profile{Name: name, Rows: t.NumRows()}
	numeric := map[string][]float64{}
	masks := map[string][]bool{}
	var numCols []string
	for _, c := range t.Columns() {
		k, err := t.Kind(c)
		if err != nil {
			return nil, err
		}
		cp := ColumnProfile{Name: c}
		counts, nonNull, err := ValueCounts(t, c)
		if err != nil {
			return nil, err
		}
		cp.NonNull = nonNull
		cp.Missing = t.NumRows() - nonNull
		cp.Unique = len(counts)
		switch {
		case k.Numeric():
			cp.Kind = "numeric"
			vals, valid, err := t.Floats(c)
			if err != nil {
				return nil, err
			}
			numeric[c], masks[c] = vals, valid
			numCols = append(numCols, c)
			present, err := validFloats(t, c)
			if err != nil {
				return nil, err
			}
			if len(present) > 0 {
				cp.Min, cp.Max = present[0], present[0]
				for _, v := range present {
					cp.Min = math.Min(cp.Min, v)
					cp.Max = math.Max(cp.Max, v)
				}
				cp.Mean, cp.Std = stat.MeanStdDev(present, nil)
				if len(present) < 2 {
					cp.Std = 0
				}
			}
			if opt.OutlierThreshold > 0 {
				cp.OutlierThreshold = opt.OutlierThreshold
				cp.OutliersCount, cp.OutliersMaxAbsZ = robustOutliers(present, opt.OutlierThreshold)
			}
		case k.Temporal():
			cp.Kind = "datetime"
		default:
			cp.Kind = "categorical"
			if opt.TopValues > 0 && len(counts) > opt.TopValues {
				counts = counts[:opt.TopValues]
			}
			cp.TopValues = counts
		}
		p.Cols = append(p.Cols, cp)
	}
	p.Pairs = correlations(numCols, numeric, masks, opt.MinCorrelation)
	p.Samples = sampleRows(t, opt.SampleRows)
	return p, nil
}

// correlations computes pairwise-complete Pearson r for every numeric pair.
func correlations(cols []string, vals map[string][]float64, masks map[string][]bool, minAbs float64) []PairCorr {
	var pairs []PairCorr
	for i := 0; i < len(cols); i++ {
		for j := i + 1; j < len(cols); j++ {
			a, b := cols[i], cols[j]
			var xs, ys []float64
			for r := range vals[a] {
				if masks[a][r] && masks[b][r] {
					xs = append(xs, vals[a][r])
					ys = append(ys, vals[b][r])
				}
			}
			if len(xs) < 3 {
				continue
			}
			r := stat.Correlation(xs, ys, nil)
			if math.IsNaN(r) || math.IsInf(r, 0) || math.Abs(r) < minAbs {
				continue
			}
			pairs = append(pairs, PairCorr{A: a, B: b, R: r, N: len(xs)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		ai, aj := math.Abs(pairs[i].R), math.Abs(pairs[j].R)
		if ai == aj {
			return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
		}
		return ai > aj
	})
	return pairs
}

func sampleRows(t table.Table, n int) [][]string {
	if n > t.NumRows() {
		n = t.NumRows()
	}
	if n <= 0 {
		return nil
	}
	cols := t.Columns()
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = make([]string, len(cols))
	}
	for j, c := range cols {
		vals, valid, err := t.Strings(c)
		if err != nil {
			continue
		}
		for i := 0; i < n; i++ {
			if valid[i] {
				rows[i][j] = vals[i]
			}
		}
	}
	return rows
}

// Markdown renders a compact profile suitable for prompts or standalone docs.
func (p *Profile) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if p.Name != "" {
		fmt.Fprintf(&b, "File: %s\n", p.Name)
	}
	fmt.Fprintf(&b, "Rows: %d\n", p.Rows)
	fmt.Fprintf(&b, "Columns: %d\n\n", len(p.Cols))

	b.WriteString("[SCHEMA]\n")
	for _, c := range p.Cols {
		missPct := 0.0
		if total := c.NonNull + c.Missing; total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		fmt.Fprintf(&b, "- %s: %s (non-null %d, missing %.1f%%, unique %d)", safeName(c.Name), c.Kind, c.NonNull, missPct, c.Unique)
		switch c.Kind {
		case "numeric":
			fmt.Fprintf(&b, "; min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std)
			if c.OutlierThreshold > 0 && c.OutliersCount > 0 {
				fmt.Fprintf(&b, "; outliers: %d above |z|>%.1f (max |z|≈%.2f)", c.OutliersCount, c.OutlierThreshold, c.OutliersMaxAbsZ)
			}
		case "categorical":
			if len(c.TopValues) > 0 {
				b.WriteString("; top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					fmt.Fprintf(&b, "%s(%d)", safeVal(kv.Value), kv.Count)
				}
			}
		}
		b.WriteString("\n")
	}
	if len(p.Pairs) > 0 {
		b.WriteString("\n[CORRELATIONS]\n")
		lim := len(p.Pairs)
		if lim > 10 {
			lim = 10
		}
		for _, pr := range p.Pairs[:lim] {
			fmt.Fprintf(&b, "- %s ~ %s: r=%.3f (n=%d)\n", pr.A, pr.B, pr.R, pr.N)
		}
	}
	if len(p.Samples) > 0 {
		b.WriteString("\n[HEAD ROWS]\n| ")
		for i, c := range p.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeVal(safeName(c.Name)))
		}
		b.WriteString(" |\n|")
		for range p.Cols {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		for _, row := range p.Samples {
			b.WriteString("| ")
			for i, val := range row {
				if i > 0 {
					b.WriteString(" | ")
				}
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	if len(p.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range p.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
