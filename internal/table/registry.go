package table

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/KaramelBytes/csvagent/internal/apperr"
)

// Engine names.
const (
	EngineAuto      = "auto"
	EngineColumnar  = "columnar"
	EngineDataframe = "dataframe"
	EngineRows      = "rows"
)

// Engine turns raw records into a Table.
type Engine interface {
	Name() string
	Build(rec *Records) (Table, error)
	// SupportsLazy reports whether scans can be deferred.
	SupportsLazy() bool
}

// Converter is implemented by engines able to build a table from row
// dictionaries.
type Converter interface {
	FromMaps(rows []map[string]any) (Table, error)
}

type registration struct {
	engine Engine
	rank   int
}

var (
	registryMu sync.RWMutex
	registry   = map[string]registration{}
)

// Register makes an engine available. Lower rank is preferred by Probe.
func Register(e Engine, rank int) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[e.Name()] = registration{engine: e, rank: rank}
}

// Engines lists registered engine names in preference order.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	regs := make([]registration, 0, len(registry))
	for _, r := range registry {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].rank < regs[j].rank })
	names := make([]string, len(regs))
	for i, r := range regs {
		names[i] = r.engine.Name()
	}
	return names
}

// Probe selects the engine to use. "auto" or "" picks the most preferred
// registered engine; an explicit name must be registered.
func Probe(name string) (Engine, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == EngineAuto {
		names := Engines()
		if len(names) == 0 {
			return nil, fmt.Errorf("no table engine registered: %w", apperr.ErrMissingDependency)
		}
		name = names[0]
	}
	registryMu.RLock()
	r, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("table engine %q not available (have %s): %w",
			name, strings.Join(Engines(), ", "), apperr.ErrMissingDependency)
	}
	return r.engine, nil
}

// ConverterFor returns e as a Converter. The rows engine has no dataframe
// representation to convert into.
func ConverterFor(e Engine) (Converter, error) {
	if c, ok := e.(Converter); ok {
		return c, nil
	}
	return nil, fmt.Errorf("engine %q cannot convert row dictionaries: %w", e.Name(), apperr.ErrMissingDependency)
}

func init() {
	Register(columnarEngine{}, 10)
	Register(rowsEngine{}, 100)
}
