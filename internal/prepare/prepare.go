// Package prepare prunes sparse columns and groups the rest by kind.
package prepare

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/KaramelBytes/csvagent/internal/logging"
	"github.com/KaramelBytes/csvagent/internal/table"
)

// DefaultNullThreshold is the null ratio above which a column is dropped.
const DefaultNullThreshold = 0.4

// PreparedData is a filtered table plus its columns grouped by kind. The
// three groups are disjoint and together cover every retained column.
type PreparedData struct {
	Table              table.Table `json:"-"`
	NumericColumns     []string    `json:"numeric_columns"`
	CategoricalColumns []string    `json:"categorical_columns"`
	DatetimeColumns    []string    `json:"datetime_columns"`
	// DroppedColumns are the columns over the threshold, in input order.
	DroppedColumns []string `json:"dropped_columns"`
}

// Retained lists the kept columns in table order.
func (p *PreparedData) Retained() []string { return p.Table.Columns() }

// Normalizer turns loaded data into PreparedData.
type Normalizer struct {
	threshold float64
	engine    table.Engine
	log       *zap.Logger
}

// NewNormalizer returns a normalizer. engine converts row dictionaries and
// may be nil when only tables are passed in.
func NewNormalizer(threshold float64, engine table.Engine, log *zap.Logger) *Normalizer {
	return &Normalizer{threshold: threshold, engine: engine, log: logging.OrNop(log)}
}

// Threshold returns the configured null ratio threshold.
func (n *Normalizer) Threshold() float64 { return n.threshold }

// Prepare accepts a table.Frame or a non-empty slice of uniform row
// dictionaries. A column is dropped when its null ratio is strictly greater
// than the threshold.
func (n *Normalizer) Prepare(data any) (*PreparedData, error) {
	t, err := table.Convert(data, n.engine)
	if err != nil {
		return nil, err
	}
	var keep, dropped []string
	for _, c := range t.Columns() {
		r, err := t.NullRatio(c)
		if err != nil {
			return nil, err
		}
		if r > n.threshold {
			dropped = append(dropped, c)
			n.log.Debug("dropping sparse column", zap.String("column", c), zap.Float64("null_ratio", r))
			continue
		}
		keep = append(keep, c)
	}
	filtered, err := t.Select(keep...)
	if err != nil {
		return nil, fmt.Errorf("select retained columns: %w", err)
	}
	p := &PreparedData{Table: filtered, DroppedColumns: dropped}
	for _, c := range keep {
		k, err := filtered.Kind(c)
		if err != nil {
			return nil, err
		}
		switch {
		case k.Numeric():
			p.NumericColumns = append(p.NumericColumns, c)
		case k.Temporal():
			p.DatetimeColumns = append(p.DatetimeColumns, c)
		default:
			p.CategoricalColumns = append(p.CategoricalColumns, c)
		}
	}
	n.log.Debug("prepared data",
		zap.Int("numeric", len(p.NumericColumns)),
		zap.Int("categorical", len(p.CategoricalColumns)),
		zap.Int("datetime", len(p.DatetimeColumns)),
		zap.Int("dropped", len(dropped)))
	return p, nil
}
