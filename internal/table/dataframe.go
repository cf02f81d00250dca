//go:build !nogota

package table

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Dataframe adapts a gota DataFrame. Gota has no temporal series, so dates
// arrive as text. rows is kept apart from the frame because gota refuses
// frames without columns.
type Dataframe struct {
	df   dataframe.DataFrame
	rows int
}

var _ Table = (*Dataframe)(nil)

func loadOptions() []dataframe.LoadOption {
	return []dataframe.LoadOption{
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(NullTokens),
	}
}

func wrap(df dataframe.DataFrame) *Dataframe { return &Dataframe{df: df, rows: df.Nrow()} }

// seriesType maps an inferred kind onto the gota series that holds it.
func seriesType(k Kind) series.Type {
	switch {
	case k == KindInt:
		return series.Int
	case k == KindFloat:
		return series.Float
	case k == KindBool:
		return series.Bool
	default:
		return series.String
	}
}

// NewDataframe loads rec into a gota DataFrame. Column types come from the
// same inference the columnar engine uses, so both engines agree on kinds.
func NewDataframe(rec *Records) (*Dataframe, error) {
	if rec == nil {
		return nil, fmt.Errorf("nil records")
	}
	if len(rec.Header) == 0 {
		return &Dataframe{rows: len(rec.Rows)}, nil
	}
	if len(rec.Rows) == 0 {
		cols := make([]series.Series, len(rec.Header))
		for i, name := range rec.Header {
			cols[i] = series.New([]string{}, series.String, name)
		}
		df := dataframe.New(cols...)
		if df.Err != nil {
			return nil, fmt.Errorf("load dataframe: %w", df.Err)
		}
		return wrap(df), nil
	}

	records := make([][]string, len(rec.Rows)+1)
	records[0] = rec.Header
	for r := range rec.Rows {
		records[r+1] = make([]string, len(rec.Header))
	}
	types := make(map[string]series.Type, len(rec.Header))
	cells := make([]string, len(rec.Rows))
	for i, name := range rec.Header {
		for r, row := range rec.Rows {
			cells[r] = ""
			if i < len(row) {
				cells[r] = row[i]
			}
		}
		t := seriesType(inferKind(cells, InferOptions{}))
		types[name] = t
		for r, c := range cells {
			switch {
			case IsNull(c):
				c = ""
			case t != series.String:
				c = strings.TrimSpace(c)
			}
			records[r+1][i] = c
		}
	}
	opts := append(loadOptions(), dataframe.WithTypes(types))
	df := dataframe.LoadRecords(records, opts...)
	if df.Err != nil {
		return nil, fmt.Errorf("load dataframe: %w", df.Err)
	}
	return wrap(df), nil
}

func (d *Dataframe) series(col string) (series.Series, error) {
	if indexOf(d.df.Names(), col) < 0 {
		return series.Series{}, columnNotFound(col)
	}
	s := d.df.Col(col)
	if s.Err != nil {
		return series.Series{}, s.Err
	}
	return s, nil
}

func (d *Dataframe) Collect() (Table, error) { return d, nil }
func (d *Dataframe) NumRows() int            { return d.rows }
func (d *Dataframe) NumColumns() int         { return d.df.Ncol() }
func (d *Dataframe) Columns() []string       { return d.df.Names() }
func (d *Dataframe) Engine() string          { return EngineDataframe }

func (d *Dataframe) Kind(col string) (Kind, error) {
	s, err := d.series(col)
	if err != nil {
		return KindText, err
	}
	switch s.Type() {
	case series.Int:
		return KindInt, nil
	case series.Float:
		return KindFloat, nil
	case series.Bool:
		return KindBool, nil
	default:
		return KindText, nil
	}
}

func (d *Dataframe) NullRatio(col string) (float64, error) {
	s, err := d.series(col)
	if err != nil {
		return 0, err
	}
	if s.Len() == 0 {
		return 0, nil
	}
	n := 0
	for _, na := range s.IsNaN() {
		if na {
			n++
		}
	}
	return float64(n) / float64(s.Len()), nil
}

func (d *Dataframe) Select(cols ...string) (Table, error) {
	for _, c := range cols {
		if indexOf(d.df.Names(), c) < 0 {
			return nil, columnNotFound(c)
		}
	}
	if len(cols) == 0 {
		return &Dataframe{rows: d.rows}, nil
	}
	sub := d.df.Select(cols)
	if sub.Err != nil {
		return nil, sub.Err
	}
	return wrap(sub), nil
}

func (d *Dataframe) Floats(col string) ([]float64, []bool, error) {
	s, err := d.series(col)
	if err != nil {
		return nil, nil, err
	}
	na := s.IsNaN()
	vals := s.Float()
	valid := make([]bool, len(vals))
	for i, v := range vals {
		valid[i] = !na[i] && !math.IsNaN(v) && !math.IsInf(v, 0)
		if !valid[i] {
			vals[i] = 0
		}
	}
	return vals, valid, nil
}

func (d *Dataframe) Strings(col string) ([]string, []bool, error) {
	s, err := d.series(col)
	if err != nil {
		return nil, nil, err
	}
	na := s.IsNaN()
	vals := s.Records()
	valid := make([]bool, len(vals))
	for i := range vals {
		valid[i] = !na[i]
		if na[i] {
			vals[i] = ""
		}
	}
	return vals, valid, nil
}

type dataframeEngine struct{}

func (dataframeEngine) Name() string       { return EngineDataframe }
func (dataframeEngine) SupportsLazy() bool { return false }

func (dataframeEngine) Build(rec *Records) (Table, error) { return NewDataframe(rec) }

func (dataframeEngine) FromMaps(rows []map[string]any) (Table, error) {
	if _, err := RecordsFromMaps(rows); err != nil {
		return nil, err
	}
	df := dataframe.LoadMaps(rows, loadOptions()...)
	if df.Err != nil {
		return nil, fmt.Errorf("load dataframe: %w", df.Err)
	}
	return wrap(df), nil
}

func init() {
	Register(dataframeEngine{}, 50)
}
