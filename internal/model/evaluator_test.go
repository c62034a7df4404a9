package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/cloud-pocket-etl/internal/chart"
	"github.com/couchcryptid/cloud-pocket-etl/internal/tracking"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRun struct {
	params      map[string]string
	metrics     map[string]float64
	artifacts   map[string][]byte
	status      tracking.RunStatus
	ended       bool
	artifactErr error
}

func (r *recordingRun) ID() string { return "run-42" }

func (r *recordingRun) LogParam(_ context.Context, key, value string) error {
	r.params[key] = value
	return nil
}

func (r *recordingRun) LogMetric(_ context.Context, key string, value float64) error {
	r.metrics[key] = value
	return nil
}

func (r *recordingRun) LogArtifact(_ context.Context, name string, data []byte) error {
	if r.artifactErr != nil {
		return r.artifactErr
	}
	r.artifacts[name] = data
	return nil
}

func (r *recordingRun) End(_ context.Context, status tracking.RunStatus) error {
	r.ended = true
	r.status = status
	return nil
}

type recordingTracker struct {
	run        *recordingRun
	experiment string
	runName    string
}

func newRecordingTracker() *recordingTracker {
	return &recordingTracker{run: &recordingRun{
		params:    map[string]string{},
		metrics:   map[string]float64{},
		artifacts: map[string][]byte{},
	}}
}

func (t *recordingTracker) StartRun(_ context.Context, experiment, runName string) (tracking.Run, error) {
	t.experiment = experiment
	t.runName = runName
	return t.run, nil
}

// trainedFixture fits a small model with an re_liq column and returns it with
// a held-out set of 40 rows.
func trainedFixture(t *testing.T) (*TrainedModel, [][]float64, []float64) {
	t.Helper()
	var X [][]float64
	var y []float64
	for i := range 120 {
		reLiq := 8 + float64(i%10)
		X = append(X, []float64{float64(i % 4), reLiq})
		y = append(y, 0.005*reLiq)
	}
	m, _, err := NewTrainer(1, discardLogger()).Train(context.Background(), X[:80], y[:80], []string{"tau", "re_liq"}, testHyperparameters())
	require.NoError(t, err)
	return m, X[80:], y[80:]
}

func TestEvaluator_WithoutTracker(t *testing.T) {
	m, X, y := trainedFixture(t)

	report, err := NewEvaluator(nil, DefaultSampleSeed, discardLogger()).Evaluate(context.Background(), X, y, m, "cloud-pockets")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, report.MSE, 0.0)
	assert.Empty(t, report.RunID)
	assert.Len(t, report.Sample, CorrelationSampleSize)
	assert.Equal(t, chart.FeatureImportanceName, report.FeatureImportance.Name)
	assert.Equal(t, chart.CorrelationName, report.Correlation.Name)
	assert.NotEmpty(t, report.FeatureImportance.PNG)
	assert.NotEmpty(t, report.Correlation.PNG)
	assert.Equal(t, testHyperparameters(), report.Hyperparameters)
}

func TestEvaluator_LogsToTracker(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)))
	t.Cleanup(func() { SetClock(nil) })

	m, X, y := trainedFixture(t)
	tr := newRecordingTracker()

	report, err := NewEvaluator(tr, DefaultSampleSeed, discardLogger()).Evaluate(context.Background(), X, y, m, "cloud-pockets")
	require.NoError(t, err)

	assert.Equal(t, "cloud-pockets", tr.experiment)
	assert.Equal(t, "cloud-pockets-20240301T123000Z", tr.runName)
	assert.Equal(t, "run-42", report.RunID)

	run := tr.run
	assert.True(t, run.ended)
	assert.Equal(t, tracking.StatusFinished, run.status)
	assert.Equal(t, map[string]string{
		"n_estimators":     "50",
		"max_depth":        "3",
		"learning_rate":    "0.1",
		"subsample":        "0.8",
		"colsample_bytree": "0.8",
	}, run.params)
	assert.InDelta(t, report.MSE, run.metrics[MetricMSE], 1e-15)
	assert.Contains(t, run.artifacts, chart.FeatureImportanceName)
	assert.Contains(t, run.artifacts, chart.CorrelationName)
}

func TestEvaluator_EmptyExperimentUsesDefault(t *testing.T) {
	m, X, y := trainedFixture(t)
	tr := newRecordingTracker()

	_, err := NewEvaluator(tr, DefaultSampleSeed, discardLogger()).Evaluate(context.Background(), X, y, m, "")
	require.NoError(t, err)
	assert.Equal(t, "default", tr.experiment)
}

func TestEvaluator_RunEndsFailedOnLoggingError(t *testing.T) {
	m, X, y := trainedFixture(t)
	tr := newRecordingTracker()
	tr.run.artifactErr = errors.New("disk full")

	_, err := NewEvaluator(tr, DefaultSampleSeed, discardLogger()).Evaluate(context.Background(), X, y, m, "cloud-pockets")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, tr.run.ended)
	assert.Equal(t, tracking.StatusFailed, tr.run.status)
}

func TestEvaluator_SmallTestSetUsesAllRows(t *testing.T) {
	m, X, y := trainedFixture(t)

	report, err := NewEvaluator(nil, DefaultSampleSeed, discardLogger()).Evaluate(context.Background(), X[:3], y[:3], m, "x")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1, 2}, report.Sample)
}

func TestEvaluator_EmptyTestSet(t *testing.T) {
	m, _, _ := trainedFixture(t)
	_, err := NewEvaluator(nil, DefaultSampleSeed, discardLogger()).Evaluate(context.Background(), nil, nil, m, "x")
	assert.Error(t, err)
}

func TestSampleRows(t *testing.T) {
	a := SampleRows(100, 25, 42)
	b := SampleRows(100, 25, 42)
	assert.Equal(t, a, b)
	assert.Len(t, a, 25)

	seen := map[int]bool{}
	for _, i := range a {
		assert.False(t, seen[i])
		assert.True(t, i >= 0 && i < 100)
		seen[i] = true
	}

	assert.NotEqual(t, a, SampleRows(100, 25, 7))
	assert.Len(t, SampleRows(4, 25, 42), 4)
}
