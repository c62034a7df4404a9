package model

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrMissingHyperparameter is returned before fitting when a required
// hyperparameter is unset or out of range.
var ErrMissingHyperparameter = errors.New("missing hyperparameter")

// Hyperparameters configures the boosted-tree regressor. Every field is
// required; the zero value means "not provided".
type Hyperparameters struct {
	NEstimators     int
	MaxDepth        int
	LearningRate    float64
	Subsample       float64
	ColsampleByTree float64
}

// Validate reports the first missing or invalid hyperparameter.
func (h Hyperparameters) Validate() error {
	switch {
	case h.NEstimators <= 0:
		return fmt.Errorf("%w: n_estimators", ErrMissingHyperparameter)
	case h.MaxDepth <= 0:
		return fmt.Errorf("%w: max_depth", ErrMissingHyperparameter)
	case !(h.LearningRate > 0 && h.LearningRate <= 1):
		return fmt.Errorf("%w: learning_rate", ErrMissingHyperparameter)
	case !(h.Subsample > 0 && h.Subsample <= 1):
		return fmt.Errorf("%w: subsample", ErrMissingHyperparameter)
	case !(h.ColsampleByTree > 0 && h.ColsampleByTree <= 1):
		return fmt.Errorf("%w: colsample_bytree", ErrMissingHyperparameter)
	}
	return nil
}

// Param is one named hyperparameter value, formatted for logging.
type Param struct {
	Key   string
	Value string
}

// Params lists the hyperparameters in a stable order.
func (h Hyperparameters) Params() []Param {
	return []Param{
		{"n_estimators", strconv.Itoa(h.NEstimators)},
		{"max_depth", strconv.Itoa(h.MaxDepth)},
		{"learning_rate", strconv.FormatFloat(h.LearningRate, 'g', -1, 64)},
		{"subsample", strconv.FormatFloat(h.Subsample, 'g', -1, 64)},
		{"colsample_bytree", strconv.FormatFloat(h.ColsampleByTree, 'g', -1, 64)},
	}
}
