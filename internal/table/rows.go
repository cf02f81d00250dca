package table

import "strings"

// Rows is the plain row-dictionary fallback. Every column is text.
type Rows struct {
	header []string
	rows   []map[string]string
}

var _ Table = (*Rows)(nil)

// NewRows builds a row-dictionary table from rec.
func NewRows(rec *Records) *Rows {
	r := &Rows{header: append([]string(nil), rec.Header...), rows: make([]map[string]string, len(rec.Rows))}
	for i, row := range rec.Rows {
		m := make(map[string]string, len(rec.Header))
		for j, h := range rec.Header {
			if j < len(row) {
				m[h] = row[j]
			}
		}
		r.rows[i] = m
	}
	return r
}

func (r *Rows) Collect() (Table, error) { return r, nil }
func (r *Rows) NumRows() int            { return len(r.rows) }
func (r *Rows) NumColumns() int         { return len(r.header) }
func (r *Rows) Columns() []string       { return append([]string(nil), r.header...) }
func (r *Rows) Engine() string          { return EngineRows }

func (r *Rows) has(col string) error {
	if indexOf(r.header, col) < 0 {
		return columnNotFound(col)
	}
	return nil
}

func (r *Rows) Kind(col string) (Kind, error) {
	return KindText, r.has(col)
}

func (r *Rows) NullRatio(col string) (float64, error) {
	if err := r.has(col); err != nil {
		return 0, err
	}
	if len(r.rows) == 0 {
		return 0, nil
	}
	n := 0
	for _, m := range r.rows {
		if IsNull(m[col]) {
			n++
		}
	}
	return float64(n) / float64(len(r.rows)), nil
}

func (r *Rows) Select(cols ...string) (Table, error) {
	out := &Rows{rows: r.rows}
	for _, c := range cols {
		if err := r.has(c); err != nil {
			return nil, err
		}
		if indexOf(out.header, c) < 0 {
			out.header = append(out.header, c)
		}
	}
	return out, nil
}

func (r *Rows) Floats(col string) ([]float64, []bool, error) {
	if err := r.has(col); err != nil {
		return nil, nil, err
	}
	vals := make([]float64, len(r.rows))
	valid := make([]bool, len(r.rows))
	for i, m := range r.rows {
		if s := m[col]; !IsNull(s) {
			vals[i], valid[i] = ParseNumber(s, InferOptions{})
		}
	}
	return vals, valid, nil
}

func (r *Rows) Strings(col string) ([]string, []bool, error) {
	if err := r.has(col); err != nil {
		return nil, nil, err
	}
	vals := make([]string, len(r.rows))
	valid := make([]bool, len(r.rows))
	for i, m := range r.rows {
		if s := m[col]; !IsNull(s) {
			vals[i], valid[i] = strings.TrimSpace(s), true
		}
	}
	return vals, valid, nil
}

type rowsEngine struct{}

func (rowsEngine) Name() string                      { return EngineRows }
func (rowsEngine) SupportsLazy() bool                { return false }
func (rowsEngine) Build(rec *Records) (Table, error) { return NewRows(rec), nil }
