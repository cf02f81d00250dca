package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/csvagent/internal/table"
)

// StatKeys are the statistic names reported for every column.
var StatKeys = []string{"count", "unique", "top", "freq", "mean", "std", "min", "25%", "50%", "75%", "max"}

// StatsResult holds per-column statistics. Every column carries every key of
// StatKeys; combinations that do not apply to a column's kind are 0.
type StatsResult struct {
	Columns []string                  `json:"columns"`
	Kinds   map[string]string         `json:"kinds"`
	Summary map[string]map[string]any `json:"summary"`
	Message string                    `json:"message"`
}

// Describe computes descriptive statistics. data is a table.Frame or row
// dictionaries, which engine converts.
func Describe(data any, engine table.Engine) (*StatsResult, error) {
	t, err := table.Convert(data, engine)
	if err != nil {
		return nil, err
	}
	res := &StatsResult{
		Columns: t.Columns(),
		Kinds:   make(map[string]string, t.NumColumns()),
		Summary: make(map[string]map[string]any, t.NumColumns()),
	}
	var nNum, nCat, nTime int
	for _, c := range res.Columns {
		k, err := t.Kind(c)
		if err != nil {
			return nil, err
		}
		row := zeroRow()
		switch {
		case k.Numeric():
			vals, err := validFloats(t, c)
			if err != nil {
				return nil, err
			}
			fillNumeric(row, vals)
			res.Kinds[c] = "numeric"
			nNum++
		case k.Temporal():
			if err := fillCategorical(t, c, row); err != nil {
				return nil, err
			}
			if err := fillTemporalRange(t, c, row); err != nil {
				return nil, err
			}
			res.Kinds[c] = "datetime"
			nTime++
		default:
			if err := fillCategorical(t, c, row); err != nil {
				return nil, err
			}
			res.Kinds[c] = "categorical"
			nCat++
		}
		res.Summary[c] = row
	}
	res.Message = fmt.Sprintf("Descriptive statistics over %d rows: %d numeric, %d categorical and %d datetime columns. "+
		"Statistics that do not apply to a column are reported as 0.", t.NumRows(), nNum, nCat, nTime)
	return res, nil
}

func zeroRow() map[string]any {
	row := make(map[string]any, len(StatKeys))
	for _, k := range StatKeys {
		row[k] = 0
	}
	return row
}

// validFloats returns the non-missing values of a column.
func validFloats(t table.Table, col string) ([]float64, error) {
	vals, valid, err := t.Floats(col)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(vals))
	for i, v := range vals {
		if valid[i] && finite(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func fillNumeric(row map[string]any, vals []float64) {
	row["count"] = len(vals)
	if len(vals) == 0 {
		return
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	row["mean"] = stat.Mean(sorted, nil)
	if len(sorted) > 1 {
		row["std"] = stat.StdDev(sorted, nil)
	}
	row["min"] = sorted[0]
	row["25%"] = Quantile(sorted, 0.25)
	row["50%"] = Quantile(sorted, 0.5)
	row["75%"] = Quantile(sorted, 0.75)
	row["max"] = sorted[len(sorted)-1]
	// Sums of huge values overflow; encoding/json rejects the result.
	for k, v := range row {
		if f, ok := v.(float64); ok && !finite(f) {
			row[k] = 0
		}
	}
}

func finite(v float64) bool { return !math.IsInf(v, 0) && !math.IsNaN(v) }

func fillCategorical(t table.Table, col string, row map[string]any) error {
	counts, n, err := ValueCounts(t, col)
	if err != nil {
		return err
	}
	row["count"] = n
	row["unique"] = len(counts)
	if len(counts) > 0 {
		row["top"] = counts[0].Value
		row["freq"] = counts[0].Count
	}
	return nil
}

func fillTemporalRange(t table.Table, col string, row map[string]any) error {
	vals, valid, err := t.Strings(col)
	if err != nil {
		return err
	}
	var lo, hi time.Time
	seen := false
	for i, s := range vals {
		if !valid[i] {
			continue
		}
		tm, ok := table.ParseTime(s)
		if !ok {
			continue
		}
		if !seen || tm.Before(lo) {
			lo = tm
		}
		if !seen || tm.After(hi) {
			hi = tm
		}
		seen = true
	}
	if seen {
		row["min"] = lo.Format(time.RFC3339)
		row["max"] = hi.Format(time.RFC3339)
	}
	return nil
}

// CategoryCount is a value with its frequency.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ValueCounts returns value frequencies sorted by count, then value, plus the
// number of non-missing cells.
func ValueCounts(t table.Table, col string) ([]CategoryCount, int, error) {
	vals, valid, err := t.Strings(col)
	if err != nil {
		return nil, 0, err
	}
	m := map[string]int{}
	n := 0
	for i, v := range vals {
		if !valid[i] {
			continue
		}
		m[v]++
		n++
	}
	out := make([]CategoryCount, 0, len(m))
	for v, c := range m {
		out = append(out, CategoryCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Value < out[j].Value
		}
		return out[i].Count > out[j].Count
	})
	return out, n, nil
}

// Float reads a numeric statistic from a summary row.
func Float(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return 0
	}
}
