package analysis

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

// StatRow is one column of a StatsResult, flattened for columnar export.
type StatRow struct {
	Column string  `parquet:"column,snappy"`
	Kind   string  `parquet:"kind,snappy"`
	Count  int64   `parquet:"count,snappy"`
	Unique int64   `parquet:"unique,snappy"`
	Top    *string `parquet:"top,optional,snappy"`
	Freq   int64   `parquet:"freq,snappy"`
	Mean   float64 `parquet:"mean,snappy"`
	Std    float64 `parquet:"std,snappy"`
	Min    float64 `parquet:"min,snappy"`
	Q25    float64 `parquet:"q25,snappy"`
	Q50    float64 `parquet:"q50,snappy"`
	Q75    float64 `parquet:"q75,snappy"`
	Max    float64 `parquet:"max,snappy"`
}

// Rows flattens the summary in column order.
func (r *StatsResult) Rows() []StatRow {
	out := make([]StatRow, 0, len(r.Columns))
	for _, c := range r.Columns {
		s := r.Summary[c]
		row := StatRow{
			Column: c,
			Kind:   r.Kinds[c],
			Count:  int64(Float(s["count"])),
			Unique: int64(Float(s["unique"])),
			Freq:   int64(Float(s["freq"])),
			Mean:   Float(s["mean"]),
			Std:    Float(s["std"]),
			Min:    Float(s["min"]),
			Q25:    Float(s["25%"]),
			Q50:    Float(s["50%"]),
			Q75:    Float(s["75%"]),
			Max:    Float(s["max"]),
		}
		if top, ok := s["top"].(string); ok {
			row.Top = &top
		}
		out = append(out, row)
	}
	return out
}

// WriteParquet writes the summary rows to a Parquet file.
func WriteParquet(r *StatsResult, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[StatRow](file)
	if _, err := writer.Write(r.Rows()); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}
