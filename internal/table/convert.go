package table

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/KaramelBytes/csvagent/internal/apperr"
)

// RecordsFromMaps turns uniform row dictionaries into records. Columns are
// ordered by key since maps carry no order.
func RecordsFromMaps(rows []map[string]any) (*Records, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty row list: %w", apperr.ErrUnsupportedFormat)
	}
	header := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		header = append(header, k)
	}
	sort.Strings(header)
	rec := &Records{Header: header, Rows: make([][]string, len(rows))}
	for i, m := range rows {
		if len(m) != len(header) {
			return nil, fmt.Errorf("row %d has %d keys, want %d: %w", i, len(m), len(header), apperr.ErrUnsupportedFormat)
		}
		row := make([]string, len(header))
		for j, k := range header {
			v, ok := m[k]
			if !ok {
				return nil, fmt.Errorf("row %d lacks key %q: %w", i, k, apperr.ErrUnsupportedFormat)
			}
			row[j] = cellString(v)
		}
		rec.Rows[i] = row
	}
	return rec, nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// StringMaps widens map[string]string rows.
func StringMaps(rows []map[string]string) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, m := range rows {
		w := make(map[string]any, len(m))
		for k, v := range m {
			w[k] = v
		}
		out[i] = w
	}
	return out
}

// Convert resolves data into a Table. Frames are collected; row dictionaries
// are converted with e, which must implement Converter.
func Convert(data any, e Engine) (Table, error) {
	var rows []map[string]any
	switch v := data.(type) {
	case []map[string]any:
		rows = v
	case []map[string]string:
		rows = StringMaps(v)
	default:
		return Materialize(data)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty row list: %w", apperr.ErrUnsupportedFormat)
	}
	if e == nil {
		return nil, fmt.Errorf("no table engine: %w", apperr.ErrMissingDependency)
	}
	conv, err := ConverterFor(e)
	if err != nil {
		return nil, err
	}
	return conv.FromMaps(rows)
}
