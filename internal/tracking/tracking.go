// Package tracking defines the experiment-logging contract used by evaluation.
// Backends live under internal/adapter.
package tracking

import (
	"context"
	"errors"
)

// RunStatus is the terminal state recorded when a run ends.
type RunStatus string

const (
	StatusFinished RunStatus = "FINISHED"
	StatusFailed   RunStatus = "FAILED"
)

// Tracker opens runs scoped to an experiment.
type Tracker interface {
	StartRun(ctx context.Context, experiment, runName string) (Run, error)
}

// Run receives parameters, metrics, and artifacts until End is called.
type Run interface {
	ID() string
	LogParam(ctx context.Context, key, value string) error
	LogMetric(ctx context.Context, key string, value float64) error
	LogArtifact(ctx context.Context, name string, data []byte) error
	End(ctx context.Context, status RunStatus) error
}

// WithRun opens a run, passes it to fn, and always ends it. The run ends
// FAILED when fn returns an error. Errors from fn and End are joined.
func WithRun(ctx context.Context, t Tracker, experiment, runName string, fn func(Run) error) (err error) {
	run, err := t.StartRun(ctx, experiment, runName)
	if err != nil {
		return err
	}
	defer func() {
		status := StatusFinished
		if err != nil {
			status = StatusFailed
		}
		if endErr := run.End(context.WithoutCancel(ctx), status); endErr != nil {
			err = errors.Join(err, endErr)
		}
	}()
	return fn(run)
}
