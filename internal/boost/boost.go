// Package boost fits gradient-boosted regression trees with a squared-error
// objective and second-order split gain.
//
// Each stage fits a tree to the current residual gradients on a row subsample
// and a column subsample drawn without replacement. Splits score
//
//	gain = ½ · (G_L²/(H_L+λ) + G_R²/(H_R+λ) − G²/(H+λ))
//
// and leaves take weight −G/(H+λ) scaled by the learning rate. Missing
// feature values (NaN) are routed along a learned default direction.
package boost

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// minSplitGain is the smallest loss reduction accepted for a split.
const minSplitGain = 1e-10

var (
	// ErrInvalidParams is returned when a parameter is out of range.
	ErrInvalidParams = errors.New("invalid boosting parameters")
	// ErrInvalidInput is returned for empty, ragged, or NaN-target training data.
	ErrInvalidInput = errors.New("invalid training data")
)

// Params controls ensemble fitting.
type Params struct {
	NEstimators     int
	MaxDepth        int
	LearningRate    float64
	Subsample       float64
	ColsampleByTree float64

	// Lambda is the L2 penalty on leaf weights.
	Lambda float64
	// MinChildWeight is the smallest hessian sum allowed in a child.
	MinChildWeight float64
	Seed           uint64
}

func (p Params) validate() error {
	switch {
	case p.NEstimators <= 0:
		return fmt.Errorf("%w: n_estimators must be positive, got %d", ErrInvalidParams, p.NEstimators)
	case p.MaxDepth <= 0:
		return fmt.Errorf("%w: max_depth must be positive, got %d", ErrInvalidParams, p.MaxDepth)
	case !(p.LearningRate > 0 && p.LearningRate <= 1):
		return fmt.Errorf("%w: learning_rate must be in (0,1], got %v", ErrInvalidParams, p.LearningRate)
	case !(p.Subsample > 0 && p.Subsample <= 1):
		return fmt.Errorf("%w: subsample must be in (0,1], got %v", ErrInvalidParams, p.Subsample)
	case !(p.ColsampleByTree > 0 && p.ColsampleByTree <= 1):
		return fmt.Errorf("%w: colsample_bytree must be in (0,1], got %v", ErrInvalidParams, p.ColsampleByTree)
	case p.Lambda < 0 || p.MinChildWeight < 0:
		return fmt.Errorf("%w: lambda and min_child_weight must be non-negative", ErrInvalidParams)
	}
	return nil
}

// Ensemble is a fitted sequence of trees. It is safe for concurrent reads.
type Ensemble struct {
	BaseScore   float64
	Trees       []*Tree
	NumFeatures int

	gain   []float64
	splits []float64
}

// Fit trains an ensemble on rows X with targets y.
func Fit(X [][]float64, y []float64, p Params) (*Ensemble, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	n := len(X)
	if n == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidInput)
	}
	if len(y) != n {
		return nil, fmt.Errorf("%w: %d rows but %d targets", ErrInvalidInput, n, len(y))
	}
	nf := len(X[0])
	if nf == 0 {
		return nil, fmt.Errorf("%w: no features", ErrInvalidInput)
	}
	for i, row := range X {
		if len(row) != nf {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrInvalidInput, i, len(row), nf)
		}
	}
	if floats.HasNaN(y) {
		return nil, fmt.Errorf("%w: target contains NaN", ErrInvalidInput)
	}

	e := &Ensemble{
		BaseScore:   stat.Mean(y, nil),
		NumFeatures: nf,
		gain:        make([]float64, nf),
		splits:      make([]float64, nf),
	}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = e.BaseScore
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))

	for range p.NEstimators {
		for i := range pred {
			grad[i] = pred[i] - y[i]
			hess[i] = 1
		}
		b := &builder{
			x:        X,
			grad:     grad,
			hess:     hess,
			features: sampleIndices(rng, nf, p.ColsampleByTree),
			params:   p,
			ens:      e,
		}
		tree := b.grow(sampleIndices(rng, n, p.Subsample))
		e.Trees = append(e.Trees, tree)
		for i, row := range X {
			pred[i] += tree.Predict(row)
		}
	}
	return e, nil
}

// PredictRow returns the ensemble output for one row.
func (e *Ensemble) PredictRow(x []float64) float64 {
	out := e.BaseScore
	for _, t := range e.Trees {
		out += t.Predict(x)
	}
	return out
}

// Predict returns the ensemble output for each row.
func (e *Ensemble) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = e.PredictRow(row)
	}
	return out
}

// FeatureImportance returns the average split gain per feature, normalised to
// sum to 1. Features never used for a split score 0.
func (e *Ensemble) FeatureImportance() []float64 {
	imp := make([]float64, e.NumFeatures)
	for f := range imp {
		if e.splits[f] > 0 {
			imp[f] = e.gain[f] / e.splits[f]
		}
	}
	if total := floats.Sum(imp); total > 0 {
		floats.Scale(1/total, imp)
	}
	return imp
}

// sampleIndices draws round(frac·n) sorted indices from [0,n) without
// replacement, at least one.
func sampleIndices(rng *rand.Rand, n int, frac float64) []int {
	k := int(math.Round(frac * float64(n)))
	k = max(1, min(k, n))
	if k == n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := rng.Perm(n)[:k]
	slices.Sort(idx)
	return idx
}

type candidate struct {
	feature     int
	threshold   float64
	defaultLeft bool
	gain        float64
}

// builder grows one tree against fixed gradients.
type builder struct {
	x        [][]float64
	grad     []float64
	hess     []float64
	features []int
	params   Params
	ens      *Ensemble
}

func (b *builder) grow(rows []int) *Tree {
	t := &Tree{}
	b.split(t, rows, 0)
	return t
}

func (b *builder) split(t *Tree, rows []int, depth int) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{})

	var g, h float64
	for _, r := range rows {
		g += b.grad[r]
		h += b.hess[r]
	}

	if depth < b.params.MaxDepth {
		if c, ok := b.bestSplit(rows, g, h); ok {
			left, right := b.partition(rows, c)
			b.ens.gain[c.feature] += c.gain
			b.ens.splits[c.feature]++
			l := b.split(t, left, depth+1)
			r := b.split(t, right, depth+1)
			t.nodes[idx] = node{
				Feature:     c.feature,
				Threshold:   c.threshold,
				DefaultLeft: c.defaultLeft,
				Left:        l,
				Right:       r,
			}
			return idx
		}
	}

	t.nodes[idx] = node{Leaf: true, Value: -g / (h + b.params.Lambda) * b.params.LearningRate}
	return idx
}

func (b *builder) bestSplit(rows []int, g, h float64) (candidate, bool) {
	lambda := b.params.Lambda
	minChild := b.params.MinChildWeight
	parent := g * g / (h + lambda)

	best := candidate{gain: minSplitGain}
	found := false
	order := make([]int, 0, len(rows))

	for _, f := range b.features {
		order = order[:0]
		var gm, hm float64
		for _, r := range rows {
			if math.IsNaN(b.x[r][f]) {
				gm += b.grad[r]
				hm += b.hess[r]
				continue
			}
			order = append(order, r)
		}
		if len(order) < 2 {
			continue
		}
		slices.SortFunc(order, func(a, c int) int { return cmp.Compare(b.x[a][f], b.x[c][f]) })

		var gl, hl float64
		for i := 0; i < len(order)-1; i++ {
			r := order[i]
			gl += b.grad[r]
			hl += b.hess[r]
			v, next := b.x[r][f], b.x[order[i+1]][f]
			if v == next {
				continue
			}
			// An infinite neighbour makes the midpoint NaN or unbounded.
			threshold := v + (next-v)/2
			if math.IsNaN(threshold) || threshold <= v {
				threshold = next
			}
			if math.IsNaN(threshold) || math.IsInf(threshold, -1) {
				continue
			}

			for _, missLeft := range [2]bool{false, true} {
				if missLeft && hm == 0 {
					break
				}
				lg, lh := gl, hl
				if missLeft {
					lg += gm
					lh += hm
				}
				rg, rh := g-lg, h-lh
				if lh < minChild || rh < minChild {
					continue
				}
				gain := 0.5 * (lg*lg/(lh+lambda) + rg*rg/(rh+lambda) - parent)
				if gain > best.gain {
					best = candidate{feature: f, threshold: threshold, defaultLeft: missLeft, gain: gain}
					found = true
				}
			}
		}
	}
	return best, found
}

func (b *builder) partition(rows []int, c candidate) (left, right []int) {
	for _, r := range rows {
		v := b.x[r][c.feature]
		goLeft := v < c.threshold
		if math.IsNaN(v) {
			goLeft = c.defaultLeft
		}
		if goLeft {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	return left, right
}
