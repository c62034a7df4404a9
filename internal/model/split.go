package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/couchcryptid/cloud-pocket-etl/internal/domain"
)

// ErrInvalidSplit is returned when a dataset cannot be partitioned.
var ErrInvalidSplit = errors.New("invalid split")

// Split is a row partition of a dataset into predictors and target.
type Split struct {
	Features []string
	TrainX   [][]float64
	TrainY   []float64
	TestX    [][]float64
	TestY    []float64
}

// SplitDataset shuffles rows with rng and holds out ceil(testFraction·n) of
// them for testing. The target column is removed from the predictors. The
// dataset is not modified.
func SplitDataset(ds domain.Dataset, testFraction float64, rng *rand.Rand) (Split, error) {
	if !(testFraction > 0 && testFraction < 1) {
		return Split{}, fmt.Errorf("%w: test fraction must be in (0,1), got %v", ErrInvalidSplit, testFraction)
	}
	target := ds.ColumnIndex(ds.Target)
	if ds.Target == "" || target < 0 {
		return Split{}, fmt.Errorf("%w: dataset has no target column", ErrInvalidSplit)
	}
	n := ds.Len()
	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest < 1 || nTest >= n {
		return Split{}, fmt.Errorf("%w: %d rows cannot give non-empty train and test sets at fraction %v",
			ErrInvalidSplit, n, testFraction)
	}

	features := slices.Delete(slices.Clone(ds.Columns), target, target+1)
	s := Split{
		Features: features,
		TrainX:   make([][]float64, 0, n-nTest),
		TrainY:   make([]float64, 0, n-nTest),
		TestX:    make([][]float64, 0, nTest),
		TestY:    make([]float64, 0, nTest),
	}

	for i, idx := range rng.Perm(n) {
		row := ds.Rows[idx]
		x := make([]float64, 0, len(features))
		x = append(x, row[:target]...)
		x = append(x, row[target+1:]...)
		if i < nTest {
			s.TestX = append(s.TestX, x)
			s.TestY = append(s.TestY, row[target])
		} else {
			s.TrainX = append(s.TrainX, x)
			s.TrainY = append(s.TrainY, row[target])
		}
	}
	return s, nil
}

// NewRand returns a seeded generator, or one seeded from entropy when seed is nil.
func NewRand(seed *uint64) *rand.Rand {
	if seed == nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(*seed, *seed))
}
