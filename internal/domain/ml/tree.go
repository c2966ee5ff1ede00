package ml

import (
	"math/rand"
	"sort"
)

// Node is one node of a flattened regression tree. Leaves have Feature -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

// Tree is a CART regression tree stored as a node slice, root at 0.
type Tree struct {
	Nodes []Node
}

// Predict walks the tree for row.
func (t *Tree) Predict(row []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

type treeParams struct {
	maxDepth    int
	minLeaf     int
	maxFeatures int // 0 means every column
	rng         *rand.Rand
}

type treeBuilder struct {
	x          [][]float64
	y          []float64
	cols       int
	params     treeParams
	importance []float64
	tree       *Tree
}

// growTree fits a tree on the rows in idx. Variance reduction per split is
// added to importance, which must have one slot per column.
func growTree(x [][]float64, y []float64, idx []int, p treeParams, importance []float64) *Tree {
	b := &treeBuilder{
		x:          x,
		y:          y,
		cols:       len(x[0]),
		params:     p,
		importance: importance,
		tree:       &Tree{},
	}
	b.grow(idx, 0)
	return b.tree
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	pos := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{Feature: -1, Value: b.mean(idx)})

	if depth >= b.params.maxDepth || len(idx) < 2*b.params.minLeaf {
		return pos
	}
	feature, threshold, gain, ok := b.bestSplit(idx)
	if !ok {
		return pos
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importance[feature] += gain

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.tree.Nodes[pos] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return pos
}

func (b *treeBuilder) mean(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var s float64
	for _, i := range idx {
		s += b.y[i]
	}
	return s / float64(len(idx))
}

// order returns the columns to search, shuffled when feature sampling is on.
func (b *treeBuilder) order() []int {
	all := make([]int, b.cols)
	for j := range all {
		all[j] = j
	}
	if b.sampled() {
		b.params.rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	}
	return all
}

func (b *treeBuilder) sampled() bool {
	k := b.params.maxFeatures
	return k > 0 && k < b.cols && b.params.rng != nil
}

// bestSplit maximises the reduction in squared error. gain is that
// reduction, which is what importance accumulates. With feature sampling
// the search stops after maxFeatures columns unless none of them could
// split, in which case it keeps going.
func (b *treeBuilder) bestSplit(idx []int) (feature int, threshold, gain float64, ok bool) {
	n := len(idx)
	var total float64
	for _, i := range idx {
		total += b.y[i]
	}
	parent := total * total / float64(n)

	sorted := make([]int, n)
	minLeaf := b.params.minLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}
	for searched, f := range b.order() {
		if ok && b.sampled() && searched >= b.params.maxFeatures {
			break
		}
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.x[sorted[a]][f] < b.x[sorted[c]][f] })

		var leftSum float64
		for k := 0; k < n-1; k++ {
			leftSum += b.y[sorted[k]]
			nl := k + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			lo, hi := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			rightSum := total - leftSum
			g := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr) - parent
			if g > gain+1e-12 {
				feature, threshold, gain, ok = f, (lo+hi)/2, g, true
			}
		}
	}
	return feature, threshold, gain, ok
}
