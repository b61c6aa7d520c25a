// Package forest implements a random forest classifier over dense feature
// rows: bootstrap-sampled CART trees, Gini impurity and balanced class
// weights.
package forest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidInput is returned when the training matrix is inconsistent.
var ErrInvalidInput = errors.New("invalid training input")

// Options configure forest growth.
type Options struct {
	Trees    int
	MaxDepth int
	Balanced bool // weight classes inversely to their frequency
	Seed     uint64
	Workers  int
}

// DefaultOptions returns 200 trees of depth at most 10 with balanced class
// weights.
func DefaultOptions() Options {
	return Options{
		Trees:    200,
		MaxDepth: 10,
		Balanced: true,
		Seed:     42,
	}
}

// Forest is a fitted ensemble. All fields are exported for persistence.
type Forest struct {
	NumClasses  int
	NumFeatures int
	Trees       []Tree
}

// Fit grows a forest on rows x with class indices y in [0, numClasses).
func Fit(ctx context.Context, x [][]float64, y []int, numClasses int, opts Options) (*Forest, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrInvalidInput, len(x), len(y))
	}
	if numClasses < 1 {
		return nil, fmt.Errorf("%w: %d classes", ErrInvalidInput, numClasses)
	}
	numFeatures := len(x[0])
	for i, row := range x {
		if len(row) != numFeatures {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrInvalidInput, i, len(row), numFeatures)
		}
		if y[i] < 0 || y[i] >= numClasses {
			return nil, fmt.Errorf("%w: label %d out of range", ErrInvalidInput, y[i])
		}
	}
	if opts.Trees < 1 {
		opts.Trees = DefaultOptions().Trees
	}
	if opts.MaxDepth < 1 {
		opts.MaxDepth = DefaultOptions().MaxDepth
	}
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	classWeight := classWeights(y, numClasses, opts.Balanced)
	maxFeatures := max(1, int(math.Sqrt(float64(numFeatures))))

	f := &Forest{
		NumClasses:  numClasses,
		NumFeatures: numFeatures,
		Trees:       make([]Tree, opts.Trees),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range f.Trees {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(opts.Seed, uint64(i)))

			// Bootstrap draw counts act as sample weights; out-of-bag rows
			// stay at zero.
			w := make([]float64, len(x))
			for range len(x) {
				w[rng.IntN(len(x))]++
			}
			var samples []int
			for s := range w {
				if w[s] > 0 {
					w[s] *= classWeight[y[s]]
					samples = append(samples, s)
				}
			}

			b := &builder{
				x:           x,
				y:           y,
				w:           w,
				numClasses:  numClasses,
				maxDepth:    opts.MaxDepth,
				maxFeatures: maxFeatures,
				rng:         rng,
				tree:        &f.Trees[i],
			}
			b.grow(samples, 0)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("growing trees: %w", err)
	}

	slog.Debug("forest fitted", "trees", len(f.Trees), "rows", len(x), "features", numFeatures, "classes", numClasses)
	return f, nil
}

// classWeights returns n / (k * count_c) for every class c when balanced,
// otherwise 1.
func classWeights(y []int, numClasses int, balanced bool) []float64 {
	weights := make([]float64, numClasses)
	if !balanced {
		for c := range weights {
			weights[c] = 1
		}
		return weights
	}
	counts := make([]int, numClasses)
	for _, c := range y {
		counts[c]++
	}
	present := 0
	for _, n := range counts {
		if n > 0 {
			present++
		}
	}
	for c, n := range counts {
		if n > 0 {
			weights[c] = float64(len(y)) / float64(present*n)
		}
	}
	return weights
}

// PredictProba returns the mean leaf class distribution over all trees.
// x maps a feature index to its value.
func (f *Forest) PredictProba(x func(int) float64) []float64 {
	proba := make([]float64, f.NumClasses)
	if len(f.Trees) == 0 {
		return proba
	}
	for i := range f.Trees {
		for c, p := range f.Trees[i].Leaf(x) {
			proba[c] += p
		}
	}
	for c := range proba {
		proba[c] /= float64(len(f.Trees))
	}
	return proba
}

// Predict returns the most probable class. Ties go to the lower index.
func (f *Forest) Predict(x func(int) float64) int {
	proba := f.PredictProba(x)
	best := 0
	for c := 1; c < len(proba); c++ {
		if proba[c] > proba[best] {
			best = c
		}
	}
	return best
}

// Validate checks structural consistency of a forest restored from disk.
func (f *Forest) Validate() error {
	if f.NumClasses < 1 || len(f.Trees) == 0 {
		return fmt.Errorf("forest has %d classes and %d trees", f.NumClasses, len(f.Trees))
	}
	for i := range f.Trees {
		t := &f.Trees[i]
		n := len(t.Feature)
		if n == 0 || len(t.Threshold) != n || len(t.Left) != n || len(t.Right) != n || len(t.Value) != n {
			return fmt.Errorf("tree %d: inconsistent node arrays", i)
		}
		for node := range n {
			if t.Feature[node] == leaf {
				if len(t.Value[node]) != f.NumClasses {
					return fmt.Errorf("tree %d node %d: leaf has %d classes", i, node, len(t.Value[node]))
				}
				continue
			}
			if t.Feature[node] >= f.NumFeatures || t.Left[node] <= node || t.Right[node] <= node ||
				t.Left[node] >= n || t.Right[node] >= n {
				return fmt.Errorf("tree %d node %d: invalid split", i, node)
			}
		}
	}
	return nil
}
