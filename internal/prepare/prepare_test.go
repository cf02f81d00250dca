package prepare

import (
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/csvagent/internal/apperr"
	"github.com/KaramelBytes/csvagent/internal/table"
)

func columnar(t *testing.T, rec *table.Records) table.Table {
	t.Helper()
	tb, err := table.NewColumnar(rec, table.InferOptions{})
	require.NoError(t, err)
	return tb
}

// sparse builds n rows where column "x" has the given number of nulls.
func sparse(n, nulls int) *table.Records {
	rec := &table.Records{Header: []string{"id", "x"}}
	for i := 0; i < n; i++ {
		x := strconv.Itoa(i)
		if i < nulls {
			x = ""
		}
		rec.Rows = append(rec.Rows, []string{strconv.Itoa(i), x})
	}
	return rec
}

func TestPrepare_ThresholdBoundary(t *testing.T) {
	n := NewNormalizer(DefaultNullThreshold, nil, nil)

	p, err := n.Prepare(columnar(t, sparse(5, 2)))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "x"}, p.Retained(), "ratio exactly at threshold is kept")
	assert.Empty(t, p.DroppedColumns)

	p, err = n.Prepare(columnar(t, sparse(100, 41)))
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, p.Retained())
	assert.Equal(t, []string{"x"}, p.DroppedColumns)
}

func TestPrepare_Classification(t *testing.T) {
	rec := &table.Records{
		Header: []string{"when", "city", "qty", "ok", "price", "blank"},
		Rows: [][]string{
			{"2024-01-01", "Lisbon", "1", "true", "1.5", ""},
			{"2024-01-02", "Porto", "2", "false", "2.5", ""},
			{"2024-01-03", "Faro", "3", "true", "", "z"},
		},
	}
	p, err := NewNormalizer(0.4, nil, nil).Prepare(columnar(t, rec))
	require.NoError(t, err)

	assert.Equal(t, []string{"qty", "price"}, p.NumericColumns)
	assert.Equal(t, []string{"city", "ok"}, p.CategoricalColumns)
	assert.Equal(t, []string{"when"}, p.DatetimeColumns)
	assert.Equal(t, []string{"blank"}, p.DroppedColumns)
	assert.Equal(t, []string{"when", "city", "qty", "ok", "price"}, p.Retained())
}

func TestPrepare_GroupsPartitionRetained(t *testing.T) {
	rec := &table.Records{Header: []string{"a", "b", "c", "d"}}
	for i := 0; i < 20; i++ {
		row := []string{strconv.Itoa(i), "v" + strconv.Itoa(i%3), "", "2024-02-0" + strconv.Itoa(1+i%9)}
		if i%2 == 0 {
			row[2] = strconv.Itoa(i)
		}
		rec.Rows = append(rec.Rows, row)
	}
	for _, th := range []float64{0, 0.3, 0.5, 1} {
		p, err := NewNormalizer(th, nil, nil).Prepare(columnar(t, rec))
		require.NoError(t, err)

		var union []string
		union = append(union, p.NumericColumns...)
		union = append(union, p.CategoricalColumns...)
		union = append(union, p.DatetimeColumns...)
		sort.Strings(union)
		retained := p.Retained()
		sorted := append([]string(nil), retained...)
		sort.Strings(sorted)
		assert.Equal(t, sorted, union, "threshold %v", th)
		assert.Equal(t, 4, len(retained)+len(p.DroppedColumns))
		for _, c := range retained {
			r, err := p.Table.NullRatio(c)
			require.NoError(t, err)
			assert.LessOrEqual(t, r, th)
		}
	}
}

func TestPrepare_RowDictionaries(t *testing.T) {
	e, err := table.Probe(table.EngineColumnar)
	require.NoError(t, err)
	rows := []map[string]any{
		{"name": "a", "score": 1.0},
		{"name": "b", "score": 2.0},
	}
	p, err := NewNormalizer(0.4, e, nil).Prepare(rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"score"}, p.NumericColumns)
	assert.Equal(t, []string{"name"}, p.CategoricalColumns)
}

func TestPrepare_Errors(t *testing.T) {
	e, err := table.Probe(table.EngineColumnar)
	require.NoError(t, err)
	n := NewNormalizer(0.4, e, nil)

	_, err = n.Prepare("not a table")
	assert.ErrorIs(t, err, apperr.ErrUnsupportedFormat)

	_, err = n.Prepare([]map[string]any{})
	assert.ErrorIs(t, err, apperr.ErrUnsupportedFormat)

	rowsEngine, err := table.Probe(table.EngineRows)
	require.NoError(t, err)
	_, err = NewNormalizer(0.4, rowsEngine, nil).Prepare([]map[string]string{{"a": "1"}})
	assert.ErrorIs(t, err, apperr.ErrMissingDependency)

	_, err = NewNormalizer(0.4, nil, nil).Prepare([]map[string]string{{"a": "1"}})
	assert.ErrorIs(t, err, apperr.ErrMissingDependency)
}

func TestPrepare_LazyFrame(t *testing.T) {
	l := table.Scan(func() (table.Table, error) {
		return table.NewColumnar(sparse(10, 5), table.InferOptions{})
	})
	p, err := NewNormalizer(0.4, nil, nil).Prepare(l)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, p.Retained())
}

func TestPrepare_EveryColumnDropped(t *testing.T) {
	rec := &table.Records{
		Header: []string{"a", "b"},
		Rows:   [][]string{{"", ""}, {"1", ""}, {"", ""}},
	}
	for _, name := range []string{table.EngineColumnar, table.EngineDataframe, table.EngineRows} {
		t.Run(name, func(t *testing.T) {
			e, err := table.Probe(name)
			require.NoError(t, err)
			tb, err := e.Build(rec)
			require.NoError(t, err)

			p, err := NewNormalizer(0.4, e, nil).Prepare(tb)
			require.NoError(t, err)
			assert.Empty(t, p.Retained())
			assert.Equal(t, []string{"a", "b"}, p.DroppedColumns)
			assert.Equal(t, 3, p.Table.NumRows())
		})
	}
}
