package ml

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// RandomForest averages bootstrapped regression trees.
type RandomForest struct {
	Trees       []Tree
	Weights     []float64
	NTrees      int
	MaxDepth    int
	MinLeaf     int
	Seed        int64
	FeatureFrac float64
}

// ForestOption configures a RandomForest.
type ForestOption func(*RandomForest)

// WithForestSeed sets the bootstrap and feature sampling seed.
func WithForestSeed(seed int64) ForestOption {
	return func(f *RandomForest) { f.Seed = seed }
}

// WithTrees sets the ensemble size.
func WithTrees(n int) ForestOption {
	return func(f *RandomForest) { f.NTrees = n }
}

// WithForestDepth limits tree depth.
func WithForestDepth(d int) ForestOption {
	return func(f *RandomForest) { f.MaxDepth = d }
}

// NewRandomForest returns an unfitted forest.
func NewRandomForest(opts ...ForestOption) *RandomForest {
	f := &RandomForest{
		NTrees:      100,
		MaxDepth:    8,
		MinLeaf:     3,
		Seed:        42,
		FeatureFrac: 1.0 / 3,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fit grows NTrees trees on bootstrap samples.
func (f *RandomForest) Fit(x [][]float64, y []float64) error {
	cols, err := checkDataset(x, y)
	if err != nil {
		return err
	}
	//nolint:gosec // G404: model sampling, not security
	rng := rand.New(rand.NewSource(f.Seed))
	maxFeatures := int(math.Ceil(float64(cols) * f.FeatureFrac))
	if maxFeatures < 1 {
		maxFeatures = 1
	}
	importance := make([]float64, cols)
	f.Trees = make([]Tree, 0, f.NTrees)
	n := len(x)
	for t := 0; t < f.NTrees; t++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		tree := growTree(x, y, idx, treeParams{
			maxDepth:    f.MaxDepth,
			minLeaf:     f.MinLeaf,
			maxFeatures: maxFeatures,
			rng:         rng,
		}, importance)
		f.Trees = append(f.Trees, *tree)
	}
	f.Weights = Normalize(importance)
	return nil
}

func (f *RandomForest) votes(row []float64) []float64 {
	out := make([]float64, len(f.Trees))
	for i := range f.Trees {
		out[i] = f.Trees[i].Predict(row)
	}
	return out
}

// Predict returns the mean tree output.
func (f *RandomForest) Predict(row []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	return stat.Mean(f.votes(row), nil)
}

// Confidence is tree agreement: one minus the coefficient of variation of
// the individual tree outputs, clamped to [0,1].
func (f *RandomForest) Confidence(row []float64) float64 {
	if len(f.Trees) < 2 {
		return 0
	}
	mean, std := stat.PopMeanStdDev(f.votes(row), nil)
	if mean == 0 || math.IsNaN(std) {
		return 0
	}
	return math.Max(0, math.Min(1, 1-std/math.Abs(mean)))
}

// Importances returns normalised variance reduction per column.
func (f *RandomForest) Importances() []float64 {
	return f.Weights
}
