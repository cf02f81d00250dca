package anomaly

import (
	"fmt"
	"math"
	"sort"

	"github.com/KaramelBytes/csvagent/internal/apperr"
	"github.com/KaramelBytes/csvagent/internal/table"
)

// Options selects the columns and forest parameters for Detect. Zero values
// fall back to DefaultConfig.
type Options struct {
	Columns       []string
	Contamination float64
	Seed          uint64
	Trees         int
	SampleSize    int
}

func (o Options) config() Config {
	c := DefaultConfig()
	if o.Contamination != 0 {
		c.Contamination = o.Contamination
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.Trees > 0 {
		c.Trees = o.Trees
	}
	if o.SampleSize > 0 {
		c.SampleSize = o.SampleSize
	}
	return c
}

// Result reports the rows flagged as outliers. Outliers holds zero-based row
// indices into the input table.
type Result struct {
	Contamination float64  `json:"contamination"`
	OutlierCount  int      `json:"outlier_count"`
	TotalRows     int      `json:"total_rows"`
	ImpactRatio   float64  `json:"impact_ratio"`
	Outliers      []int    `json:"outliers"`
	Columns       []string `json:"columns"`
	SkippedRows   int      `json:"skipped_rows"`
	Message       string   `json:"message"`
}

// Detect fits an isolation forest over the numeric columns of data and flags
// rows scoring above the contamination quantile. Rows missing a value in any
// selected column are skipped; TotalRows counts the rows that were scored.
func Detect(data any, engine table.Engine, opt Options) (*Result, error) {
	cfg := opt.config()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t, err := table.Convert(data, engine)
	if err != nil {
		return nil, err
	}
	cols, err := selectColumns(t, opt.Columns)
	if err != nil {
		return nil, err
	}
	matrix, index, err := completeRows(t, cols)
	if err != nil {
		return nil, err
	}
	if len(matrix) == 0 {
		return nil, fmt.Errorf("no complete rows across %v: %w", cols, apperr.ErrEmptyDataset)
	}

	f := NewForest(cfg)
	if err := f.Fit(matrix); err != nil {
		return nil, err
	}
	scores, err := f.Predict(matrix)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Contamination: cfg.Contamination,
		TotalRows:     len(matrix),
		Columns:       cols,
		SkippedRows:   t.NumRows() - len(matrix),
		Outliers:      []int{},
	}
	for i, s := range scores {
		if s > f.Threshold() {
			res.Outliers = append(res.Outliers, index[i])
		}
	}
	sort.Ints(res.Outliers)
	res.OutlierCount = len(res.Outliers)
	res.ImpactRatio = float64(res.OutlierCount) / float64(res.TotalRows)
	res.Message = fmt.Sprintf("Isolation forest over %d rows and %d columns flagged %d outliers (%.2f%% of rows).",
		res.TotalRows, len(cols), res.OutlierCount, 100*res.ImpactRatio)
	return res, nil
}

// selectColumns resolves the requested columns, or every usable one when
// none are requested.
func selectColumns(t table.Table, requested []string) ([]string, error) {
	if len(requested) > 0 {
		known := map[string]bool{}
		for _, c := range t.Columns() {
			known[c] = true
		}
		for _, c := range requested {
			if !known[c] {
				return nil, fmt.Errorf("column %q: %w", c, apperr.ErrInvalidArgument)
			}
			ok, err := usable(t, c)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("column %q is not numeric: %w", c, apperr.ErrUnsupportedFormat)
			}
		}
		return requested, nil
	}
	var out []string
	for _, c := range t.Columns() {
		ok, err := usable(t, c)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no numeric columns: %w", apperr.ErrEmptyDataset)
	}
	return out, nil
}

// usable reports numeric columns and text columns whose every present value
// reads as a number.
func usable(t table.Table, col string) (bool, error) {
	k, err := t.Kind(col)
	if err != nil {
		return false, err
	}
	if k.Numeric() {
		return true, nil
	}
	if k != table.KindText {
		return false, nil
	}
	_, strValid, err := t.Strings(col)
	if err != nil {
		return false, err
	}
	_, numValid, err := t.Floats(col)
	if err != nil {
		return false, err
	}
	present := 0
	for i := range strValid {
		if !strValid[i] {
			continue
		}
		if !numValid[i] {
			return false, nil
		}
		present++
	}
	return present > 0, nil
}

func completeRows(t table.Table, cols []string) ([][]float64, []int, error) {
	vals := make([][]float64, len(cols))
	masks := make([][]bool, len(cols))
	for j, c := range cols {
		v, m, err := t.Floats(c)
		if err != nil {
			return nil, nil, err
		}
		vals[j], masks[j] = v, m
	}
	var matrix [][]float64
	var index []int
rows:
	for i := 0; i < t.NumRows(); i++ {
		row := make([]float64, len(cols))
		for j := range cols {
			if !masks[j][i] || math.IsInf(vals[j][i], 0) || math.IsNaN(vals[j][i]) {
				continue rows
			}
			row[j] = vals[j][i]
		}
		matrix = append(matrix, row)
		index = append(index, i)
	}
	return matrix, index, nil
}
