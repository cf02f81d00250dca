//go:build !nogota

package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataframe_Kinds(t *testing.T) {
	tb, err := NewDataframe(sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, 5, tb.NumRows())
	assert.Equal(t, 7, tb.NumColumns())

	want := map[string]Kind{
		"id":    KindInt,
		"price": KindFloat,
		"city":  KindText,
		// gota has no temporal series
		"day": KindText,
	}
	for col, k := range want {
		got, err := tb.Kind(col)
		require.NoError(t, err)
		assert.Equal(t, k, got, col)
	}
}

func TestDataframe_NullsAndValues(t *testing.T) {
	tb, err := NewDataframe(sampleRecords())
	require.NoError(t, err)

	r, err := tb.NullRatio("price")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, r, 1e-12)

	vals, valid, err := tb.Floats("price")
	require.NoError(t, err)
	assert.False(t, valid[1])
	assert.Equal(t, 12.0, vals[2])

	strs, valid, err := tb.Strings("city")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", strs[0])
	assert.False(t, valid[3])

	sub, err := tb.Select("city", "id")
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "id"}, sub.Columns())
}

func TestDataframe_FromMaps(t *testing.T) {
	e, err := Probe(EngineDataframe)
	require.NoError(t, err)
	tb, err := Convert([]map[string]any{
		{"qty": 1, "name": "a"},
		{"qty": 2, "name": "b"},
	}, e)
	require.NoError(t, err)
	assert.Equal(t, EngineDataframe, tb.Engine())
	assert.Equal(t, 2, tb.NumRows())
	k, err := tb.Kind("qty")
	require.NoError(t, err)
	assert.Equal(t, KindInt, k)
}

func TestDataframe_InfinityIsText(t *testing.T) {
	tb, err := NewDataframe(&Records{Header: []string{"v", "n"}, Rows: [][]string{{"1", "1"}, {"2", " 2"}, {"inf", "3"}}})
	require.NoError(t, err)
	k, err := tb.Kind("v")
	require.NoError(t, err)
	assert.Equal(t, KindText, k)

	k, err = tb.Kind("n")
	require.NoError(t, err)
	assert.Equal(t, KindInt, k)
	vals, valid, err := tb.Floats("n")
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true}, valid)
	assert.Equal(t, 2.0, vals[1])
}

func TestDataframe_HeaderOnly(t *testing.T) {
	tb, err := NewDataframe(&Records{Header: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 0, tb.NumRows())
	assert.Equal(t, []string{"a", "b"}, tb.Columns())
	r, err := tb.NullRatio("a")
	require.NoError(t, err)
	assert.Equal(t, 0.0, r)
}

func TestDataframe_SelectNoColumns(t *testing.T) {
	tb, err := NewDataframe(sampleRecords())
	require.NoError(t, err)
	sub, err := tb.Select()
	require.NoError(t, err)
	assert.Equal(t, 0, sub.NumColumns())
	assert.Empty(t, sub.Columns())
	assert.Equal(t, 5, sub.NumRows())
	_, err = sub.Kind("id")
	assert.Error(t, err)
}
