// Package table defines the tabular capability shared by every analysis
// component and the engines that implement it.
package table

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/csvagent/internal/apperr"
)

// Kind is the storage kind of a column.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindUint
	KindFloat
	KindBool
	KindDate
	KindDatetime
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindDatetime:
		return "datetime"
	default:
		return "text"
	}
}

// Numeric reports integer, unsigned and floating-point kinds.
func (k Kind) Numeric() bool { return k == KindInt || k == KindUint || k == KindFloat }

// Temporal reports date and datetime kinds.
func (k Kind) Temporal() bool { return k == KindDate || k == KindDatetime }

// Table is an in-memory, column-addressable dataset.
type Table interface {
	Frame
	NumRows() int
	NumColumns() int
	// Columns returns the column names in table order.
	Columns() []string
	Kind(col string) (Kind, error)
	// NullRatio is the fraction of missing values, 0 for an empty table.
	NullRatio(col string) (float64, error)
	// Select returns a table restricted to cols, in the given order.
	Select(cols ...string) (Table, error)
	// Floats returns the numeric values of col and a validity mask. Values
	// that cannot be read as numbers are reported invalid.
	Floats(col string) ([]float64, []bool, error)
	// Strings returns the textual values of col and a validity mask.
	Strings(col string) ([]string, []bool, error)
	// Engine names the backend that produced the table.
	Engine() string
}

// Frame is anything that can be materialized into a Table.
type Frame interface {
	Collect() (Table, error)
}

// Records is the raw header plus rows read from a delimited file. Every row
// has exactly len(Header) cells.
type Records struct {
	Header []string
	Rows   [][]string
}

// NullTokens are cell values treated as missing.
var NullTokens = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "None", "<nil>"}

// IsNull reports whether a cell is missing.
func IsNull(s string) bool {
	s = strings.TrimSpace(s)
	for _, tok := range NullTokens {
		if s == tok {
			return true
		}
	}
	return false
}

func columnNotFound(col string) error {
	return fmt.Errorf("column %q: %w", col, apperr.ErrInvalidArgument)
}

func indexOf(names []string, col string) int {
	for i, n := range names {
		if n == col {
			return i
		}
	}
	return -1
}

// Materialize collects f, or returns an UnsupportedFormat error when data is
// not a Frame.
func Materialize(data any) (Table, error) {
	switch v := data.(type) {
	case nil:
		return nil, fmt.Errorf("nil input: %w", apperr.ErrUnsupportedFormat)
	case Frame:
		return v.Collect()
	default:
		return nil, fmt.Errorf("input of type %T: %w", data, apperr.ErrUnsupportedFormat)
	}
}
