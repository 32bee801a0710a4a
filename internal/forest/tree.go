package forest

import (
	"math/rand/v2"
	"sort"
)

const (
	noChild       = -1
	valueEpsilon  = 1e-7
	impurityFloor = 1e-7
)

// Node is one node of a fitted tree. Rows with X[Feature] < Threshold go
// left. Value is the weighted fraction of the real class among the
// training rows that reached the node.
type Node struct {
	Left, Right int
	Feature     int
	Threshold   float64
	Value       float64
	Impurity    float64
	Weight      float64
	Samples     int
}

// Leaf reports whether the node has no children.
func (n *Node) Leaf() bool {
	return n.Left == noChild
}

// Tree is a binary classification tree stored as a flat node slice; the root
// is Nodes[0].
type Tree struct {
	Nodes []Node
	// importance is the normalised total weighted impurity decrease per
	// feature; all zeros for a single-leaf tree.
	importance []float64
}

// Predict returns the real-class probability for one row.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf() {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Split reports whether the tree has at least one internal node.
func (t *Tree) Split() bool {
	return len(t.Nodes) > 1
}

// treeParams are the growth limits of a single tree.
type treeParams struct {
	maxDepth    int // <= 0 means unlimited
	minLeaf     int
	maxFeatures int
}

type buildItem struct {
	node     int
	inx      []int
	constant []bool
	depth    int
}

type sample struct {
	x float64
	i int
}

// grower holds the per-tree scratch state. It is not shared between trees.
type grower struct {
	X      [][]float64
	Y      []int
	weight [2]float64 // class weights
	params treeParams
	rnd    *rand.Rand
	buf    []sample
	feats  []int
	tree   *Tree
	nFeat  int
}

// growTree fits a tree on the rows listed in inx (duplicates allowed, as in a
// bootstrap sample) using weighted gini impurity.
func growTree(X [][]float64, Y []int, inx []int, weight [2]float64, params treeParams, rnd *rand.Rand) *Tree {
	nFeat := len(X[0])
	g := &grower{
		X:      X,
		Y:      Y,
		weight: weight,
		params: params,
		rnd:    rnd,
		buf:    make([]sample, len(inx)),
		feats:  make([]int, nFeat),
		tree:   &Tree{importance: make([]float64, nFeat)},
		nFeat:  nFeat,
	}
	for i := range g.feats {
		g.feats[i] = i
	}

	g.tree.Nodes = append(g.tree.Nodes, Node{Left: noChild, Right: noChild})
	stack := []buildItem{{node: 0, inx: inx, constant: make([]bool, nFeat)}}

	for len(stack) > 0 {
		w := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		wc := g.classWeights(w.inx)
		imp := gini(wc)
		n := &g.tree.Nodes[w.node]
		n.Impurity = imp
		n.Weight = wc[0] + wc[1]
		n.Samples = len(w.inx)
		if n.Weight > 0 {
			n.Value = wc[1] / n.Weight
		}

		if len(w.inx) < 2 || len(w.inx) < 2*params.minLeaf ||
			(params.maxDepth > 0 && w.depth >= params.maxDepth) || imp <= impurityFloor {
			continue
		}

		s, ok := g.bestSplit(w.inx, wc, imp, w.constant)
		if !ok {
			continue
		}

		// partition inx so rows below the threshold come first
		i, j := 0, len(w.inx)
		for i < j {
			if X[w.inx[i]][s.feature] < s.threshold {
				i++
			} else {
				j--
				w.inx[i], w.inx[j] = w.inx[j], w.inx[i]
			}
		}

		left, right := len(g.tree.Nodes), len(g.tree.Nodes)+1
		g.tree.Nodes = append(g.tree.Nodes,
			Node{Left: noChild, Right: noChild},
			Node{Left: noChild, Right: noChild})

		n = &g.tree.Nodes[w.node]
		n.Left, n.Right = left, right
		n.Feature = s.feature
		n.Threshold = s.threshold

		g.tree.importance[s.feature] += s.decrease

		stack = append(stack,
			buildItem{node: left, inx: w.inx[:i], constant: s.constant, depth: w.depth + 1},
			buildItem{node: right, inx: w.inx[i:], constant: s.constant, depth: w.depth + 1})
	}

	total := 0.0
	for _, v := range g.tree.importance {
		total += v
	}
	if total > 0 {
		for f := range g.tree.importance {
			g.tree.importance[f] /= total
		}
	}

	return g.tree
}

func (g *grower) classWeights(inx []int) [2]float64 {
	var wc [2]float64
	for _, i := range inx {
		c := g.Y[i]
		wc[c] += g.weight[c]
	}
	return wc
}

// gini returns the weighted gini impurity of a two-class count vector.
func gini(wc [2]float64) float64 {
	total := wc[0] + wc[1]
	if total <= 0 {
		return 0
	}
	p0, p1 := wc[0]/total, wc[1]/total
	return 1 - p0*p0 - p1*p1
}

type split struct {
	feature   int
	threshold float64
	decrease  float64 // weighted impurity decrease, W*i - WL*iL - WR*iR
	constant  []bool
}

// bestSplit visits features in random order until maxFeatures non-constant
// features have been evaluated or all features are exhausted. Features found
// constant in a node stay constant in its subtree and are skipped there.
func (g *grower) bestSplit(inx []int, wc [2]float64, imp float64, constant []bool) (split, bool) {
	best := split{feature: -1, constant: constant}
	bestDelta := 0.0
	wTotal := wc[0] + wc[1]
	n := len(inx)
	buf := g.buf[:n]

	visited := 0
	for j := g.nFeat - 1; j >= 0 && visited < g.params.maxFeatures; j-- {
		k := g.rnd.IntN(j + 1)
		g.feats[k], g.feats[j] = g.feats[j], g.feats[k]
		f := g.feats[j]

		if best.constant[f] {
			continue
		}

		for k, i := range inx {
			buf[k] = sample{x: g.X[i][f], i: i}
		}
		sort.Slice(buf, func(a, b int) bool { return buf[a].x < buf[b].x })

		if buf[n-1].x <= buf[0].x+valueEpsilon {
			c := make([]bool, len(best.constant))
			copy(c, best.constant)
			c[f] = true
			best.constant = c
			continue
		}
		visited++

		var left [2]float64
		for k := 1; k < n; k++ {
			prev := buf[k-1]
			left[g.Y[prev.i]] += g.weight[g.Y[prev.i]]

			if buf[k].x <= prev.x+valueEpsilon {
				continue
			}
			if k < g.params.minLeaf || n-k < g.params.minLeaf {
				continue
			}

			right := [2]float64{wc[0] - left[0], wc[1] - left[1]}
			wl, wr := left[0]+left[1], right[0]+right[1]
			delta := imp - (wl/wTotal)*gini(left) - (wr/wTotal)*gini(right)
			if delta > bestDelta {
				bestDelta = delta
				best.feature = f
				best.threshold = (prev.x + buf[k].x) / 2
			}
		}
	}

	if best.feature < 0 {
		return best, false
	}
	best.decrease = bestDelta * wTotal
	return best, true
}
