// Package anomaly flags outlier rows with an isolation forest.
package anomaly

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/KaramelBytes/csvagent/internal/analysis"
	"github.com/KaramelBytes/csvagent/internal/apperr"
)

// Detector is an unsupervised outlier detector.
type Detector interface {
	// Fit trains the detector on data, one row per sample.
	Fit(data [][]float64) error
	// Predict returns anomaly scores in (0, 1]; higher is more anomalous.
	Predict(data [][]float64) ([]float64, error)
}

// Config holds isolation forest parameters.
type Config struct {
	// Contamination is the expected proportion of outliers in training data.
	Contamination float64
	Trees         int
	SampleSize    int
	// Seed fixes tree construction for reproducible fits.
	Seed uint64
}

// DefaultConfig returns the forest defaults.
func DefaultConfig() Config {
	return Config{Contamination: 0.05, Trees: 100, SampleSize: 256, Seed: 42}
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if c.Contamination <= 0 || c.Contamination > 0.5 {
		return fmt.Errorf("contamination must be within (0, 0.5], got %v: %w", c.Contamination, apperr.ErrInvalidArgument)
	}
	if c.Trees <= 0 || c.SampleSize <= 1 {
		return fmt.Errorf("trees and sample size must be positive: %w", apperr.ErrInvalidArgument)
	}
	return nil
}

type node struct {
	feature     int
	split       float64
	left, right *node
	size        int
}

func (n *node) leaf() bool { return n.left == nil }

// Forest is an isolation forest.
type Forest struct {
	cfg       Config
	trees     []*node
	psi       int
	features  int
	threshold float64
}

var _ Detector = (*Forest)(nil)

// NewForest returns an untrained forest.
func NewForest(cfg Config) *Forest { return &Forest{cfg: cfg} }

// Fit builds the trees and sets the outlier threshold so that a
// Contamination share of the training rows scores above it.
func (f *Forest) Fit(data [][]float64) error {
	if err := f.cfg.Validate(); err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("no rows to fit: %w", apperr.ErrEmptyDataset)
	}
	f.features = len(data[0])
	if f.features == 0 {
		return fmt.Errorf("no features to fit: %w", apperr.ErrEmptyDataset)
	}
	f.psi = f.cfg.SampleSize
	if f.psi > len(data) {
		f.psi = len(data)
	}
	limit := int(math.Ceil(math.Log2(math.Max(float64(f.psi), 2))))
	rng := rand.New(rand.NewPCG(f.cfg.Seed, f.cfg.Seed^0x9e3779b97f4a7c15))
	f.trees = make([]*node, f.cfg.Trees)
	for i := range f.trees {
		idx := rng.Perm(len(data))[:f.psi]
		f.trees[i] = grow(data, idx, 0, limit, rng)
	}
	scores, err := f.Predict(data)
	if err != nil {
		return err
	}
	sort.Float64s(scores)
	f.threshold = analysis.Quantile(scores, 1-f.cfg.Contamination)
	return nil
}

func grow(data [][]float64, idx []int, depth, limit int, rng *rand.Rand) *node {
	if depth >= limit || len(idx) <= 1 {
		return &node{size: len(idx)}
	}
	// Only features that still vary within this partition can split it.
	var candidates []int
	lo := make([]float64, len(data[0]))
	hi := make([]float64, len(data[0]))
	for j := range lo {
		lo[j], hi[j] = math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			lo[j] = math.Min(lo[j], data[i][j])
			hi[j] = math.Max(hi[j], data[i][j])
		}
		if hi[j] > lo[j] {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &node{size: len(idx)}
	}
	feat := candidates[rng.IntN(len(candidates))]
	split := lo[feat] + rng.Float64()*(hi[feat]-lo[feat])
	var left, right []int
	for _, i := range idx {
		if data[i][feat] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &node{
		feature: feat,
		split:   split,
		left:    grow(data, left, depth+1, limit, rng),
		right:   grow(data, right, depth+1, limit, rng),
		size:    len(idx),
	}
}

// averagePath is c(n), the mean path length of an unsuccessful search in a
// binary search tree of n items.
func averagePath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	h := math.Log(float64(n-1)) + 0.5772156649015329
	return 2*h - 2*float64(n-1)/float64(n)
}

func pathLength(x []float64, n *node, depth int) float64 {
	for !n.leaf() {
		if x[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePath(n.size)
}

// Predict scores each row as 2^(-E[h(x)]/c(psi)).
func (f *Forest) Predict(data [][]float64) ([]float64, error) {
	if len(f.trees) == 0 {
		return nil, fmt.Errorf("forest is not fitted")
	}
	norm := averagePath(f.psi)
	out := make([]float64, len(data))
	for i, x := range data {
		if len(x) != f.features {
			return nil, fmt.Errorf("row %d has %d features, want %d: %w", i, len(x), f.features, apperr.ErrInvalidArgument)
		}
		var sum float64
		for _, t := range f.trees {
			sum += pathLength(x, t, 0)
		}
		mean := sum / float64(len(f.trees))
		if norm == 0 {
			out[i] = 0.5
			continue
		}
		out[i] = math.Pow(2, -mean/norm)
	}
	return out, nil
}

// Threshold is the score above which a training row is an outlier.
func (f *Forest) Threshold() float64 { return f.threshold }
