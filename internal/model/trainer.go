package model

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/couchcryptid/cloud-pocket-etl/internal/boost"
)

// Regularisation applied to every fit. These mirror common gradient-boosting
// library defaults and are not tuned per run.
const (
	leafLambda     = 1.0
	minChildWeight = 1.0
)

// TrainedModel is a fitted regressor plus the inputs that produced it. It is
// read-only once returned.
type TrainedModel struct {
	ensemble *boost.Ensemble
	hp       Hyperparameters
	features []string
}

// Predict returns one prediction per row.
func (m *TrainedModel) Predict(X [][]float64) []float64 {
	return m.ensemble.Predict(X)
}

// FeatureImportance returns normalised gain importance aligned with Features.
func (m *TrainedModel) FeatureImportance() []float64 {
	return m.ensemble.FeatureImportance()
}

// Features returns the predictor names in column order.
func (m *TrainedModel) Features() []string {
	return slices.Clone(m.features)
}

// Hyperparameters returns the hyperparameters used for fitting.
func (m *TrainedModel) Hyperparameters() Hyperparameters {
	return m.hp
}

// Trainer fits boosted-tree regressors.
type Trainer struct {
	seed   uint64
	logger *slog.Logger
}

// NewTrainer creates a Trainer whose row and column subsampling is driven by seed.
func NewTrainer(seed uint64, logger *slog.Logger) *Trainer {
	return &Trainer{seed: seed, logger: logger}
}

// Train fits a model on X/y and returns it with its in-sample R² score.
// Hyperparameters are validated before any numeric work starts.
func (t *Trainer) Train(ctx context.Context, X [][]float64, y []float64, features []string, hp Hyperparameters) (*TrainedModel, float64, error) {
	if err := hp.Validate(); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if len(X) > 0 && len(X[0]) != len(features) {
		return nil, 0, fmt.Errorf("train: %d feature names for %d columns", len(features), len(X[0]))
	}

	t.logger.Info("training started",
		"rows", len(X),
		"features", len(features),
		"n_estimators", hp.NEstimators,
		"max_depth", hp.MaxDepth,
		"learning_rate", hp.LearningRate,
		"subsample", hp.Subsample,
		"colsample_bytree", hp.ColsampleByTree,
	)
	start := time.Now()

	ens, err := boost.Fit(X, y, boost.Params{
		NEstimators:     hp.NEstimators,
		MaxDepth:        hp.MaxDepth,
		LearningRate:    hp.LearningRate,
		Subsample:       hp.Subsample,
		ColsampleByTree: hp.ColsampleByTree,
		Lambda:          leafLambda,
		MinChildWeight:  minChildWeight,
		Seed:            t.seed,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("train: %w", err)
	}

	m := &TrainedModel{ensemble: ens, hp: hp, features: slices.Clone(features)}
	score := R2Score(y, m.Predict(X))
	t.logger.Info("training finished", "score", score, "duration", time.Since(start))
	return m, score, nil
}
