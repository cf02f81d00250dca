package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/csvagent/internal/apperr"
	"github.com/KaramelBytes/csvagent/internal/logging"
	"github.com/KaramelBytes/csvagent/internal/table"
	"github.com/KaramelBytes/csvagent/internal/utils"
)

// DefaultSampleBytes is how much of a file is read for sniffing.
const DefaultSampleBytes = 8192

// DatasetMetadata summarizes a loaded file. It is never mutated after Load.
type DatasetMetadata struct {
	Path       string   `json:"path"`
	NumRows    int      `json:"rows"`
	NumColumns int      `json:"num_columns"`
	Columns    []string `json:"columns"`
	Delimiter  string   `json:"delimiter"`
	SizeBytes  int64    `json:"size_bytes"`
}

// DatasetContext pairs a loaded table with its metadata.
type DatasetContext struct {
	Data     table.Frame
	Metadata DatasetMetadata
	// Warnings lists recoverable problems met while loading.
	Warnings []string
}

// Table materializes the dataset.
func (d *DatasetContext) Table() (table.Table, error) { return d.Data.Collect() }

// Namespace identifies the dataset for memory scoping: the file stem.
func (d *DatasetContext) Namespace() string {
	return utils.Stem(d.Metadata.Path)
}

// Options configures a Loader.
type Options struct {
	DataDir     string
	SampleBytes int
	Engine      table.Engine
}

// Loader reads CSV files into DatasetContexts.
type Loader struct {
	opt Options
	log *zap.Logger
}

// NewLoader returns a loader. A nil engine falls back to the preferred
// registered one.
func NewLoader(opt Options, log *zap.Logger) (*Loader, error) {
	if opt.SampleBytes <= 0 {
		opt.SampleBytes = DefaultSampleBytes
	}
	if opt.Engine == nil {
		e, err := table.Probe(table.EngineAuto)
		if err != nil {
			return nil, err
		}
		opt.Engine = e
	}
	return &Loader{opt: opt, log: logging.OrNop(log)}, nil
}

// Engine returns the engine tables are built with.
func (l *Loader) Engine() table.Engine { return l.opt.Engine }

// Load reads path. With lazy set and an engine that supports it the table is
// a deferred plan; metadata always reflects the fully materialized table.
func (l *Loader) Load(path string, lazy bool) (*DatasetContext, error) {
	if l.opt.DataDir != "" {
		if err := utils.EnsureDir(l.opt.DataDir); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, apperr.ErrFileNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", path, apperr.ErrUnsupportedFormat)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	ctx := &DatasetContext{}
	delim, err := l.sniffFile(abs)
	if err != nil {
		if !errors.Is(err, apperr.ErrDelimiterUndetectable) {
			return nil, err
		}
		l.log.Warn("delimiter sniffing inconclusive, using default",
			zap.String("path", abs), zap.String("delimiter", string(DefaultDelimiter)), zap.Error(err))
		ctx.Warnings = append(ctx.Warnings, fmt.Sprintf("delimiter not detected, defaulted to %q", string(DefaultDelimiter)))
		delim = DefaultDelimiter
	}

	var skipped int
	build := func() (table.Table, error) {
		rec, n, err := ReadRecords(abs, delim)
		if err != nil {
			return nil, err
		}
		skipped = n
		return l.opt.Engine.Build(rec)
	}
	if lazy && l.opt.Engine.SupportsLazy() {
		ctx.Data = table.Scan(build)
	} else {
		if lazy {
			l.log.Debug("engine has no lazy scans, loading eagerly", zap.String("engine", l.opt.Engine.Name()))
		}
		t, err := build()
		if err != nil {
			return nil, err
		}
		ctx.Data = t
	}

	t, err := ctx.Data.Collect()
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		ctx.Warnings = append(ctx.Warnings, fmt.Sprintf("skipped %d malformed records", skipped))
	}
	ctx.Metadata = DatasetMetadata{
		Path:       abs,
		NumRows:    t.NumRows(),
		NumColumns: t.NumColumns(),
		Columns:    t.Columns(),
		Delimiter:  string(delim),
		SizeBytes:  info.Size(),
	}
	l.log.Info("dataset loaded",
		zap.String("path", abs),
		zap.Int("rows", ctx.Metadata.NumRows),
		zap.Int("columns", ctx.Metadata.NumColumns),
		zap.String("delimiter", ctx.Metadata.Delimiter),
		zap.String("engine", t.Engine()),
		zap.Bool("lazy", lazy))
	return ctx, nil
}

func (l *Loader) sniffFile(path string) (rune, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	// One extra byte tells a file of exactly SampleBytes from a longer one.
	buf := make([]byte, l.opt.SampleBytes+1)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read sample: %w", err)
	}
	truncated := n > l.opt.SampleBytes
	if truncated {
		n = l.opt.SampleBytes
	}
	sample, err := DecodeSample(buf[:n], truncated)
	if err != nil {
		return 0, err
	}
	return Sniff(sample)
}

// ReadRecords reads the whole file with a tolerant CSV reader. Short rows are
// padded with empty cells, long rows truncated, and records the reader cannot
// parse are skipped and counted.
func ReadRecords(path string, delim rune) (*table.Records, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(Decode(bufio.NewReader(f)))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("%s has no header: %w", path, apperr.ErrEmptyDataset)
		}
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	rec := &table.Records{Header: normalizeHeader(header)}
	width := len(rec.Header)
	skipped := 0
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				skipped++
				continue
			}
			return nil, 0, fmt.Errorf("read %s: %w", path, err)
		}
		switch {
		case len(row) < width:
			row = append(row, make([]string, width-len(row))...)
		case len(row) > width:
			row = row[:width]
		}
		rec.Rows = append(rec.Rows, row)
	}
	return rec, skipped, nil
}

func normalizeHeader(h []string) []string {
	out := make([]string, len(h))
	seen := make(map[string]int, len(h))
	for i, name := range h {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		seen[name]++
		out[i] = name
	}
	return out
}
