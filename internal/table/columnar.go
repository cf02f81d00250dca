package table

import (
	"fmt"
	"strings"
	"time"
)

type column struct {
	name  string
	kind  Kind
	text  []string
	nums  []float64
	times []time.Time
	valid []bool
	nulls int
}

// Columnar is the native typed-column table.
type Columnar struct {
	cols  []*column
	index map[string]int
	rows  int
}

var _ Table = (*Columnar)(nil)

// NewColumnar infers column kinds and builds a typed table from rec.
func NewColumnar(rec *Records, opt InferOptions) (*Columnar, error) {
	if rec == nil {
		return nil, fmt.Errorf("nil records")
	}
	t := &Columnar{index: make(map[string]int, len(rec.Header)), rows: len(rec.Rows)}
	for i, name := range rec.Header {
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", name)
		}
		cells := make([]string, len(rec.Rows))
		for r, row := range rec.Rows {
			if i < len(row) {
				cells[r] = row[i]
			}
		}
		t.index[name] = i
		t.cols = append(t.cols, buildColumn(name, cells, opt))
	}
	return t, nil
}

func buildColumn(name string, cells []string, opt InferOptions) *column {
	c := &column{name: name, kind: inferKind(cells, opt), text: cells, valid: make([]bool, len(cells))}
	switch {
	case c.kind.Numeric() || c.kind == KindBool:
		c.nums = make([]float64, len(cells))
	case c.kind.Temporal():
		c.times = make([]time.Time, len(cells))
	}
	for i, s := range cells {
		if IsNull(s) {
			c.nulls++
			continue
		}
		c.valid[i] = true
		s = strings.TrimSpace(s)
		switch {
		case c.kind == KindBool:
			if strings.EqualFold(s, "true") {
				c.nums[i] = 1
			}
		case c.kind.Numeric():
			c.nums[i], _ = ParseNumber(s, opt)
		case c.kind.Temporal():
			c.times[i], _ = ParseTime(s)
		}
	}
	return c
}

func (t *Columnar) col(name string) (*column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, columnNotFound(name)
	}
	return t.cols[i], nil
}

func (t *Columnar) Collect() (Table, error) { return t, nil }
func (t *Columnar) NumRows() int            { return t.rows }
func (t *Columnar) NumColumns() int         { return len(t.cols) }
func (t *Columnar) Engine() string          { return EngineColumnar }

func (t *Columnar) Columns() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.name
	}
	return out
}

func (t *Columnar) Kind(name string) (Kind, error) {
	c, err := t.col(name)
	if err != nil {
		return KindText, err
	}
	return c.kind, nil
}

func (t *Columnar) NullRatio(name string) (float64, error) {
	c, err := t.col(name)
	if err != nil {
		return 0, err
	}
	if t.rows == 0 {
		return 0, nil
	}
	return float64(c.nulls) / float64(t.rows), nil
}

func (t *Columnar) Select(names ...string) (Table, error) {
	out := &Columnar{index: make(map[string]int, len(names)), rows: t.rows}
	for _, n := range names {
		c, err := t.col(n)
		if err != nil {
			return nil, err
		}
		if _, dup := out.index[n]; dup {
			continue
		}
		out.index[n] = len(out.cols)
		out.cols = append(out.cols, c)
	}
	return out, nil
}

func (t *Columnar) Floats(name string) ([]float64, []bool, error) {
	c, err := t.col(name)
	if err != nil {
		return nil, nil, err
	}
	vals := make([]float64, t.rows)
	valid := make([]bool, t.rows)
	switch {
	case c.nums != nil:
		copy(vals, c.nums)
		copy(valid, c.valid)
	case c.times != nil:
		for i, tm := range c.times {
			if c.valid[i] {
				vals[i] = float64(tm.Unix())
				valid[i] = true
			}
		}
	default:
		for i, s := range c.text {
			if !c.valid[i] {
				continue
			}
			vals[i], valid[i] = ParseNumber(s, InferOptions{})
		}
	}
	return vals, valid, nil
}

func (t *Columnar) Strings(name string) ([]string, []bool, error) {
	c, err := t.col(name)
	if err != nil {
		return nil, nil, err
	}
	vals := make([]string, t.rows)
	valid := make([]bool, t.rows)
	for i, s := range c.text {
		if c.valid[i] {
			vals[i] = strings.TrimSpace(s)
			valid[i] = true
		}
	}
	return vals, valid, nil
}

type columnarEngine struct{ opt InferOptions }

// NewColumnarEngine returns the columnar engine with custom inference options.
func NewColumnarEngine(opt InferOptions) Engine { return columnarEngine{opt: opt} }

func (columnarEngine) Name() string       { return EngineColumnar }
func (columnarEngine) SupportsLazy() bool { return true }

func (e columnarEngine) Build(rec *Records) (Table, error) { return NewColumnar(rec, e.opt) }

func (e columnarEngine) FromMaps(rows []map[string]any) (Table, error) {
	rec, err := RecordsFromMaps(rows)
	if err != nil {
		return nil, err
	}
	return NewColumnar(rec, e.opt)
}

// Configure applies inference options to engines that infer types.
func Configure(e Engine, opt InferOptions) Engine {
	if _, ok := e.(columnarEngine); ok {
		return columnarEngine{opt: opt}
	}
	return e
}
