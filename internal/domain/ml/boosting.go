package ml

import "gonum.org/v1/gonum/stat"

// GradientBoosting fits shallow trees to successive squared-error residuals.
type GradientBoosting struct {
	Init         float64
	Trees        []Tree
	Weights      []float64
	Stages       int
	LearningRate float64
	MaxDepth     int
	MinLeaf      int
}

// NewGradientBoosting returns an unfitted booster with conservative defaults.
func NewGradientBoosting() *GradientBoosting {
	return &GradientBoosting{
		Stages:       100,
		LearningRate: 0.1,
		MaxDepth:     3,
		MinLeaf:      3,
	}
}

// Fit runs Stages boosting rounds over all rows.
func (g *GradientBoosting) Fit(x [][]float64, y []float64) error {
	cols, err := checkDataset(x, y)
	if err != nil {
		return err
	}
	g.Init = stat.Mean(y, nil)
	g.Trees = make([]Tree, 0, g.Stages)

	idx := make([]int, len(x))
	current := make([]float64, len(x))
	for i := range idx {
		idx[i] = i
		current[i] = g.Init
	}
	residual := make([]float64, len(y))
	importance := make([]float64, cols)
	for s := 0; s < g.Stages; s++ {
		for i := range y {
			residual[i] = y[i] - current[i]
		}
		tree := growTree(x, residual, idx, treeParams{maxDepth: g.MaxDepth, minLeaf: g.MinLeaf}, importance)
		g.Trees = append(g.Trees, *tree)
		for i, row := range x {
			current[i] += g.LearningRate * tree.Predict(row)
		}
	}
	g.Weights = Normalize(importance)
	return nil
}

// Predict sums the shrunken stage outputs.
func (g *GradientBoosting) Predict(row []float64) float64 {
	out := g.Init
	for i := range g.Trees {
		out += g.LearningRate * g.Trees[i].Predict(row)
	}
	return out
}

// Importances returns normalised variance reduction per column.
func (g *GradientBoosting) Importances() []float64 {
	return g.Weights
}
