package boost

import "math"

// node is one vertex of a regression tree. Leaves carry Value; internal nodes
// route rows with x[Feature] < Threshold to Left. Rows with a missing value
// follow DefaultLeft.
type node struct {
	Leaf        bool
	Value       float64
	Feature     int
	Threshold   float64
	DefaultLeft bool
	Left        int
	Right       int
}

// Tree is a fitted regression tree stored as a flat node slice rooted at 0.
type Tree struct {
	nodes []node
}

// Predict returns the leaf value for one row.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.nodes[i]
		if n.Leaf {
			return n.Value
		}
		v := x[n.Feature]
		switch {
		case math.IsNaN(v):
			if n.DefaultLeft {
				i = n.Left
			} else {
				i = n.Right
			}
		case v < n.Threshold:
			i = n.Left
		default:
			i = n.Right
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.nodes[i]
		if n.Leaf {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

// Leaves returns the number of leaf nodes.
func (t *Tree) Leaves() int {
	c := 0
	for _, n := range t.nodes {
		if n.Leaf {
			c++
		}
	}
	return c
}
