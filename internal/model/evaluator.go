package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/couchcryptid/cloud-pocket-etl/internal/chart"
	"github.com/couchcryptid/cloud-pocket-etl/internal/domain"
	"github.com/couchcryptid/cloud-pocket-etl/internal/tracking"
)

const (
	// CorrelationSampleSize is the number of test rows drawn for the correlation chart.
	CorrelationSampleSize = 25
	// DefaultSampleSeed makes the correlation sample repeatable across runs.
	DefaultSampleSeed uint64 = 42

	correlationFeature = "re_liq"
	defaultExperiment  = "default"
	runNameLayout      = "20060102T150405Z"
)

// MetricMSE is the tracked name of the test mean squared error.
const MetricMSE = "mse"

// Report is the outcome of one evaluation. It is handed to the caller and
// not retained.
type Report struct {
	MSE               float64
	FeatureImportance *chart.Chart
	Correlation       *chart.Chart
	Hyperparameters   Hyperparameters
	// RunID is set when the report was logged to a tracker.
	RunID string
	// Sample holds the test-row indices drawn for the correlation chart.
	Sample []int
}

// Evaluator scores a model on held-out data and reports it.
type Evaluator struct {
	tracker    tracking.Tracker
	sampleSeed uint64
	logger     *slog.Logger
}

// NewEvaluator creates an Evaluator. Pass a nil tracker to return reports
// without logging them.
func NewEvaluator(tracker tracking.Tracker, sampleSeed uint64, logger *slog.Logger) *Evaluator {
	return &Evaluator{tracker: tracker, sampleSeed: sampleSeed, logger: logger}
}

// Evaluate predicts on the test set, builds both charts, and, when a tracker
// is configured, logs hyperparameters, the MSE, and the charts in one run
// named after experimentID. The run is always closed before returning.
func (e *Evaluator) Evaluate(ctx context.Context, X [][]float64, y []float64, m *TrainedModel, experimentID string) (*Report, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, errors.New("evaluate: test set is empty or misaligned")
	}

	mse := MeanSquaredError(y, m.Predict(X))
	e.logger.Info("evaluation finished", "rows", len(X), "mse", mse)

	importance, err := chart.FeatureImportance(m.Features(), m.FeatureImportance())
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	sample := SampleRows(len(X), CorrelationSampleSize, e.sampleSeed)
	correlation, err := e.correlationChart(X, sample, m)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	report := &Report{
		MSE:               mse,
		FeatureImportance: importance,
		Correlation:       correlation,
		Hyperparameters:   m.Hyperparameters(),
		Sample:            sample,
	}
	if e.tracker == nil {
		return report, nil
	}

	if experimentID == "" {
		experimentID = defaultExperiment
	}
	runName := experimentID + "-" + clock.Now().UTC().Format(runNameLayout)
	err = tracking.WithRun(ctx, e.tracker, experimentID, runName, func(run tracking.Run) error {
		report.RunID = run.ID()
		for _, p := range report.Hyperparameters.Params() {
			if err := run.LogParam(ctx, p.Key, p.Value); err != nil {
				return fmt.Errorf("log param %s: %w", p.Key, err)
			}
		}
		if err := run.LogMetric(ctx, MetricMSE, mse); err != nil {
			return fmt.Errorf("log metric: %w", err)
		}
		for _, c := range []*chart.Chart{importance, correlation} {
			if err := run.LogArtifact(ctx, c.Name, c.PNG); err != nil {
				return fmt.Errorf("log artifact %s: %w", c.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	e.logger.Info("evaluation logged", "experiment", experimentID, "run", runName, "run_id", report.RunID)
	return report, nil
}

func (e *Evaluator) correlationChart(X [][]float64, sample []int, m *TrainedModel) (*chart.Chart, error) {
	col := slices.Index(m.Features(), correlationFeature)
	if col < 0 {
		return nil, fmt.Errorf("correlation chart: feature %q not in model", correlationFeature)
	}
	rows := make([][]float64, len(sample))
	xs := make([]float64, len(sample))
	for i, idx := range sample {
		rows[i] = X[idx]
		xs[i] = X[idx][col]
	}
	return chart.Correlation(xs, m.Predict(rows), correlationFeature, domain.TargetColumn)
}

// SampleRows draws min(k, n) distinct row indices with a generator seeded
// from seed. The same inputs always give the same indices.
func SampleRows(n, k int, seed uint64) []int {
	k = min(k, n)
	rng := rand.New(rand.NewPCG(seed, seed))
	return rng.Perm(n)[:k]
}
