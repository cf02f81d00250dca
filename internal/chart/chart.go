// Package chart renders histograms and scatter plots of dataset columns to a
// static image and an interactive HTML document.
package chart

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/csvagent/internal/analysis"
	"github.com/KaramelBytes/csvagent/internal/apperr"
	"github.com/KaramelBytes/csvagent/internal/logging"
	"github.com/KaramelBytes/csvagent/internal/table"
)

// DefaultBins is the histogram bin count used when none is configured.
const DefaultBins = 20

// Kind identifies how a Figure is drawn.
type Kind string

const (
	KindHistogram Kind = "histogram"
	KindBar       Kind = "bar"
	KindScatter   Kind = "scatter"
)

// Series is one group of scatter points.
type Series struct {
	Name string
	X, Y []float64
}

// Figure is the backend-neutral description handed to exporters.
type Figure struct {
	Kind   Kind
	Title  string
	XLabel string
	YLabel string
	// Histogram input.
	Values []float64
	Bins   int
	// Bar input.
	Labels []string
	Counts []float64
	// Scatter input.
	Series []Series
}

// Exporter writes a Figure to path, which carries no extension.
type Exporter interface {
	Ext() string
	Export(f *Figure, path string) error
}

// Result lists the files written for one chart.
type Result struct {
	Kind      Kind   `json:"kind"`
	HTMLPath  string `json:"html_path"`
	ImagePath string `json:"image_path"`
}

// Path returns the interactive document, or the image when no HTML exporter
// ran.
func (r *Result) Path() string {
	if r.HTMLPath != "" {
		return r.HTMLPath
	}
	return r.ImagePath
}

// Renderer draws charts into a directory through its exporters.
type Renderer struct {
	dir       string
	bins      int
	exporters []Exporter
	log       *zap.Logger
}

// New returns a renderer writing to dir.
func New(dir string, bins int, log *zap.Logger, exporters ...Exporter) *Renderer {
	if bins <= 0 {
		bins = DefaultBins
	}
	return &Renderer{dir: dir, bins: bins, exporters: exporters, log: logging.OrNop(log)}
}

// Default returns a renderer with the PNG and HTML exporters.
func Default(dir string, bins int, log *zap.Logger) *Renderer {
	return New(dir, bins, log, PNG{}, HTML{})
}

// Dir is the output directory.
func (r *Renderer) Dir() string { return r.dir }

// Histogram draws the distribution of column. Numeric columns are binned;
// text and boolean columns are drawn as category counts.
func (r *Renderer) Histogram(t table.Table, column, title string) (*Result, error) {
	k, err := t.Kind(column)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = "Distribution of " + column
	}
	f := &Figure{Title: title, XLabel: column, YLabel: "count"}
	switch {
	case k.Numeric():
		vals, valid, err := t.Floats(column)
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			if valid[i] && finite(v) {
				f.Values = append(f.Values, v)
			}
		}
		if len(f.Values) == 0 {
			return nil, fmt.Errorf("column %q has no values: %w", column, apperr.ErrEmptyDataset)
		}
		f.Kind, f.Bins = KindHistogram, r.bins
	case k.Temporal():
		return nil, fmt.Errorf("histogram of %s column %q: %w", k, column, apperr.ErrUnsupportedFormat)
	default:
		counts, n, err := analysis.ValueCounts(t, column)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("column %q has no values: %w", column, apperr.ErrEmptyDataset)
		}
		f.Kind = KindBar
		for _, c := range counts {
			f.Labels = append(f.Labels, c.Value)
			f.Counts = append(f.Counts, float64(c.Count))
		}
	}
	return r.render(f, "hist_"+sanitize(column))
}

// Scatter plots y against x. When color is set, points are grouped into one
// series per value of that column.
func (r *Renderer) Scatter(t table.Table, x, y, color, title string) (*Result, error) {
	for _, c := range []string{x, y} {
		k, err := t.Kind(c)
		if err != nil {
			return nil, err
		}
		if !k.Numeric() {
			return nil, fmt.Errorf("scatter axis %q is %s: %w", c, k, apperr.ErrUnsupportedFormat)
		}
	}
	xs, xok, err := t.Floats(x)
	if err != nil {
		return nil, err
	}
	ys, yok, err := t.Floats(y)
	if err != nil {
		return nil, err
	}
	var groups []string
	var gok []bool
	if color != "" {
		if groups, gok, err = t.Strings(color); err != nil {
			return nil, err
		}
	}
	if title == "" {
		title = fmt.Sprintf("Scatter %s x %s", x, y)
	}
	f := &Figure{Kind: KindScatter, Title: title, XLabel: x, YLabel: y}
	index := map[string]int{}
	points := 0
	for i := range xs {
		if !xok[i] || !yok[i] || !finite(xs[i]) || !finite(ys[i]) {
			continue
		}
		name := y
		if color != "" {
			name = "(missing)"
			if gok[i] {
				name = groups[i]
			}
		}
		j, ok := index[name]
		if !ok {
			j = len(f.Series)
			index[name] = j
			f.Series = append(f.Series, Series{Name: name})
		}
		f.Series[j].X = append(f.Series[j].X, xs[i])
		f.Series[j].Y = append(f.Series[j].Y, ys[i])
		points++
	}
	if points == 0 {
		return nil, fmt.Errorf("no rows with both %q and %q: %w", x, y, apperr.ErrEmptyDataset)
	}
	return r.render(f, fmt.Sprintf("scatter_%s_%s", sanitize(x), sanitize(y)))
}

func (r *Renderer) render(f *Figure, base string) (*Result, error) {
	if len(r.exporters) == 0 {
		return nil, fmt.Errorf("no chart exporters configured: %w", apperr.ErrMissingDependency)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	stem := filepath.Join(r.dir, base)
	res := &Result{Kind: f.Kind}
	paths := make([]string, len(r.exporters))
	g, _ := errgroup.WithContext(context.Background())
	for i, e := range r.exporters {
		paths[i] = stem + e.Ext()
		g.Go(func() error {
			if err := e.Export(f, paths[i]); err != nil {
				return fmt.Errorf("export %s: %w", paths[i], err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, e := range r.exporters {
		switch e.Ext() {
		case ".html":
			res.HTMLPath = paths[i]
		default:
			if res.ImagePath == "" {
				res.ImagePath = paths[i]
			}
		}
	}
	r.log.Info("chart written", zap.String("kind", string(f.Kind)), zap.String("html", res.HTMLPath), zap.String("image", res.ImagePath))
	return res, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func sanitize(name string) string {
	s := strings.Trim(unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_"), "_")
	if s == "" {
		return "column"
	}
	return s
}

func finite(v float64) bool { return !math.IsInf(v, 0) && !math.IsNaN(v) }
