package analysis

import (
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/csvagent/internal/apperr"
	"github.com/KaramelBytes/csvagent/internal/table"
)

func mustTable(t *testing.T, header []string, rows ...[]string) table.Table {
	t.Helper()
	tb, err := table.NewColumnar(&table.Records{Header: header, Rows: rows}, table.InferOptions{})
	require.NoError(t, err)
	return tb
}

func TestDescribe_NumericColumn(t *testing.T) {
	tb := mustTable(t, []string{"v"}, []string{"1"}, []string{"2"}, []string{"3"}, []string{"4"})
	res, err := Describe(tb, nil)
	require.NoError(t, err)

	s := res.Summary["v"]
	assert.Equal(t, 4, s["count"])
	assert.InDelta(t, 2.5, Float(s["mean"]), 1e-9)
	assert.InDelta(t, math.Sqrt(5.0/3.0), Float(s["std"]), 1e-9)
	assert.InDelta(t, 1.0, Float(s["min"]), 1e-9)
	assert.InDelta(t, 1.75, Float(s["25%"]), 1e-9)
	assert.InDelta(t, 2.5, Float(s["50%"]), 1e-9)
	assert.InDelta(t, 3.25, Float(s["75%"]), 1e-9)
	assert.InDelta(t, 4.0, Float(s["max"]), 1e-9)
	assert.Equal(t, 0, s["top"])
	assert.Equal(t, "numeric", res.Kinds["v"])
}

func TestDescribe_StableKeys(t *testing.T) {
	tb := mustTable(t, []string{"city", "n", "day"},
		[]string{"Lisbon", "1", "2024-01-02"},
		[]string{"Porto", "", "2024-01-01"},
		[]string{"Lisbon", "3", ""},
	)
	res, err := Describe(tb, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "n", "day"}, res.Columns)
	for _, c := range res.Columns {
		for _, k := range StatKeys {
			_, ok := res.Summary[c][k]
			assert.True(t, ok, "%s/%s", c, k)
		}
	}

	city := res.Summary["city"]
	assert.Equal(t, 3, city["count"])
	assert.Equal(t, 2, city["unique"])
	assert.Equal(t, "Lisbon", city["top"])
	assert.Equal(t, 2, city["freq"])
	assert.Equal(t, 0, city["mean"])

	n := res.Summary["n"]
	assert.Equal(t, 2, n["count"])
	assert.InDelta(t, 2.0, Float(n["mean"]), 1e-9)

	day := res.Summary["day"]
	assert.Equal(t, "datetime", res.Kinds["day"])
	assert.Equal(t, "2024-01-01T00:00:00Z", day["min"])
	assert.Equal(t, "2024-01-02T00:00:00Z", day["max"])
	assert.NotEmpty(t, res.Message)
}

func TestDescribe_SingleValueHasZeroStd(t *testing.T) {
	tb := mustTable(t, []string{"v"}, []string{"7"})
	res, err := Describe(tb, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Summary["v"]["std"])
}

func TestDescribe_OverflowIsZero(t *testing.T) {
	tb := mustTable(t, []string{"v"}, []string{"1.7e308"}, []string{"1.7e308"})
	res, err := Describe(tb, nil)
	require.NoError(t, err)
	s := res.Summary["v"]
	assert.Equal(t, 2, s["count"])
	assert.Equal(t, 0, s["mean"])
	assert.Equal(t, 0, s["std"])
	assert.InDelta(t, 1.7e308, Float(s["max"]), 1e300)

	_, err = json.Marshal(res)
	assert.NoError(t, err)
}

func TestDescribe_RowDictionaries(t *testing.T) {
	e, err := table.Probe(table.EngineColumnar)
	require.NoError(t, err)
	res, err := Describe([]map[string]any{{"x": 1.0}, {"x": 3.0}}, e)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, Float(res.Summary["x"]["mean"]), 1e-9)

	_, err = Describe([]map[string]any{{"x": 1.0}}, nil)
	assert.ErrorIs(t, err, apperr.ErrMissingDependency)

	_, err = Describe(3.14, e)
	assert.ErrorIs(t, err, apperr.ErrUnsupportedFormat)
}

func TestBuildProfile_Markdown(t *testing.T) {
	var rows [][]string
	for i := 0; i < 20; i++ {
		x := float64(i)
		rows = append(rows, []string{
			[]string{"alpha", "beta", "gamma"}[i%3],
			strconv.FormatFloat(x, 'f', -1, 64),
			strconv.FormatFloat(2*x+1, 'f', -1, 64),
			"2024-03-01",
		})
	}
	rows[19][1] = "500"
	tb := mustTable(t, []string{"cat", "x", "y", "when"}, rows...)

	p, err := BuildProfile("data.csv", tb, DefaultProfileOptions())
	require.NoError(t, err)
	require.Len(t, p.Cols, 4)
	assert.Equal(t, "categorical", p.Cols[0].Kind)
	assert.Equal(t, "numeric", p.Cols[1].Kind)
	assert.Equal(t, "datetime", p.Cols[3].Kind)
	assert.Equal(t, 1, p.Cols[1].OutliersCount)
	require.NotEmpty(t, p.Pairs)
	assert.Equal(t, "x", p.Pairs[0].A)
	assert.Len(t, p.Samples, 5)

	md := p.Markdown()
	for _, section := range []string{"[DATASET SUMMARY]", "[SCHEMA]", "[CORRELATIONS]", "[HEAD ROWS]"} {
		assert.Contains(t, md, section)
	}
	assert.Contains(t, md, "File: data.csv")
	assert.Contains(t, md, "alpha(7)")
}

func TestWriteParquet(t *testing.T) {
	tb := mustTable(t, []string{"v", "c"}, []string{"1", "a"}, []string{"2", "a"}, []string{"3", "b"})
	res, err := Describe(tb, nil)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "stats.parquet")
	require.NoError(t, WriteParquet(res, out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	reader := parquet.NewGenericReader[StatRow](f)
	defer reader.Close()

	got := make([]StatRow, reader.NumRows())
	n, err := reader.Read(got)
	if err != nil && err != io.EOF {
		require.NoError(t, err)
	}
	require.Equal(t, 2, n)
	assert.Equal(t, "v", got[0].Column)
	assert.InDelta(t, 2.0, got[0].Mean, 1e-9)
	assert.Nil(t, got[0].Top)
	require.NotNil(t, got[1].Top)
	assert.Equal(t, "a", *got[1].Top)
}

func TestQuantileLinear(t *testing.T) {
	s := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 3.0, Quantile(s, 0.5))
	assert.Equal(t, 1.0, Quantile(s, 0))
	assert.Equal(t, 5.0, Quantile(s, 1))
	assert.Equal(t, 0.0, Quantile(nil, 0.5))
}

func TestMedianMAD(t *testing.T) {
	med, mad := medianMAD([]float64{1, 1, 2, 2, 4, 6, 9})
	assert.Equal(t, 2.0, med)
	assert.Equal(t, 1.0, mad)
}
