package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/cloud-pocket-etl/internal/domain"
	"github.com/couchcryptid/cloud-pocket-etl/internal/model"
	"github.com/couchcryptid/cloud-pocket-etl/internal/observability"
)

// Ingester discovers and parses the raw files of one run.
type Ingester interface {
	Ingest(ctx context.Context) (domain.IngestResult, error)
	Paired() bool
	Dir() string
}

// Trainer fits a regressor and returns it with its in-sample score.
type Trainer interface {
	Train(ctx context.Context, X [][]float64, y []float64, features []string, hp model.Hyperparameters) (*model.TrainedModel, float64, error)
}

// Evaluator scores a model on held-out rows and reports it.
type Evaluator interface {
	Evaluate(ctx context.Context, X [][]float64, y []float64, m *model.TrainedModel, experimentID string) (*model.Report, error)
}

// ReadinessChecker reports whether a backing store can be reached.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Options holds the per-run settings of every stage.
type Options struct {
	Filter          domain.QualityFilter
	DateParts       domain.DateParts
	TestFraction    float64
	SplitSeed       *uint64
	Hyperparameters model.Hyperparameters
	ExperimentID    string

	// Dependencies are checked by CheckReadiness after the first run.
	Dependencies []ReadinessChecker
}

// Result is the outcome of a complete run.
type Result struct {
	DatasetRows   int
	TrainRows     int
	TestRows      int
	TrainingScore float64
	Model         *model.TrainedModel
	Report        *model.Report
}

// Pipeline runs prepare, split, train, and evaluate in order. Each stage is
// also callable on its own.
type Pipeline struct {
	ingester  Ingester
	trainer   Trainer
	evaluator Evaluator
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	last      atomic.Pointer[model.Report]
}

// New creates a Pipeline with the given stages and observability.
func New(in Ingester, tr Trainer, ev Evaluator, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		ingester:  in,
		trainer:   tr,
		evaluator: ev,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a run has completed and every dependency
// is reachable.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	for _, d := range p.opts.Dependencies {
		if err := d.CheckReadiness(ctx); err != nil {
			return fmt.Errorf("dependency not ready: %w", err)
		}
	}
	return nil
}

// LastReport returns the report of the last completed run, or nil.
func (p *Pipeline) LastReport() *model.Report {
	return p.last.Load()
}

// Run prepares the dataset from raw files and trains and evaluates on it.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	ds, err := p.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	return p.RunFromDataset(ctx, ds)
}

// RunFromDataset splits, trains, and evaluates on an already assembled dataset.
func (p *Pipeline) RunFromDataset(ctx context.Context, ds domain.Dataset) (*Result, error) {
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	split, err := p.Split(ds)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, score, err := p.Train(ctx, split)
	if err != nil {
		return nil, err
	}
	report, err := p.Evaluate(ctx, split, m)
	if err != nil {
		return nil, err
	}

	p.last.Store(report)
	p.ready.Store(true)
	p.logger.Info("pipeline finished",
		"dataset_rows", ds.Len(),
		"training_score", score,
		"mse", report.MSE,
		"run_id", report.RunID,
	)
	return &Result{
		DatasetRows:   ds.Len(),
		TrainRows:     len(split.TrainX),
		TestRows:      len(split.TestX),
		TrainingScore: score,
		Model:         m,
		Report:        report,
	}, nil
}

// Prepare ingests, filters, and transforms every file and assembles the
// training dataset. File-level problems are skipped and counted; an empty
// result is an error.
func (p *Pipeline) Prepare(ctx context.Context) (domain.Dataset, error) {
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	defer p.observe(observability.StagePrepare, time.Now())

	p.logger.Info("preparing dataset",
		"dir", p.ingester.Dir(),
		"paired", p.ingester.Paired(),
		"pixel_threshold", p.opts.Filter.Threshold.String(),
		"date_parts", p.opts.DateParts.String(),
	)

	res, err := p.ingester.Ingest(ctx)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("prepare: %w", err)
	}
	p.metrics.FilesDiscovered.Add(float64(res.Discovered))
	for _, s := range res.Skipped {
		p.metrics.FilesSkipped.WithLabelValues(string(s.Reason)).Inc()
	}

	transformer := domain.NewFeatureTransformer(domain.TransformOptions{
		DateParts:    p.opts.DateParts,
		DeriveTarget: true,
		WithThermo:   p.ingester.Paired(),
	})

	parts := make([]domain.Part, 0, len(res.Files))
	var parsed, dropped int
	for _, f := range res.Files {
		parsed += len(f.Records)
		kept, n := p.opts.Filter.Apply(f.Records)
		dropped += n

		rows, err := transformer.Transform(kept)
		if errors.Is(err, domain.ErrBadTimestamp) {
			p.logger.Warn("skipping file", "path", f.Path, "reason", domain.SkipBadTimestamp, "error", err)
			p.metrics.FilesSkipped.WithLabelValues(string(domain.SkipBadTimestamp)).Inc()
			continue
		}
		if err != nil {
			return domain.Dataset{}, fmt.Errorf("transform %s: %w", f.Path, err)
		}
		parts = append(parts, domain.Part{Source: f.Path, Rows: rows})
	}
	p.metrics.RowsParsed.Add(float64(parsed))
	p.metrics.RowsDropped.Add(float64(dropped))

	ds, err := domain.Assemble(p.ingester.Dir(), transformer.Columns(), transformer.Target(), parts)
	if err != nil {
		return domain.Dataset{}, err
	}
	p.metrics.DatasetRows.Set(float64(ds.Len()))
	p.logger.Info("dataset assembled",
		"files", len(parts),
		"skipped", res.Discovered-len(parts),
		"rows_parsed", parsed,
		"rows_dropped", dropped,
		"rows", ds.Len(),
		"columns", len(ds.Columns),
	)
	return ds, nil
}

// Split partitions the dataset into train and test rows.
func (p *Pipeline) Split(ds domain.Dataset) (model.Split, error) {
	defer p.observe(observability.StageSplit, time.Now())

	s, err := model.SplitDataset(ds, p.opts.TestFraction, model.NewRand(p.opts.SplitSeed))
	if err != nil {
		return model.Split{}, fmt.Errorf("split: %w", err)
	}
	p.logger.Info("dataset split",
		"train_rows", len(s.TrainX),
		"test_rows", len(s.TestX),
		"test_fraction", p.opts.TestFraction,
		"seeded", p.opts.SplitSeed != nil,
	)
	return s, nil
}

// Train fits the model on the training rows.
func (p *Pipeline) Train(ctx context.Context, s model.Split) (*model.TrainedModel, float64, error) {
	defer p.observe(observability.StageTrain, time.Now())

	m, score, err := p.trainer.Train(ctx, s.TrainX, s.TrainY, s.Features, p.opts.Hyperparameters)
	if err != nil {
		return nil, 0, err
	}
	p.metrics.TrainingScore.Set(score)
	return m, score, nil
}

// Evaluate scores the model on the test rows.
func (p *Pipeline) Evaluate(ctx context.Context, s model.Split, m *model.TrainedModel) (*model.Report, error) {
	defer p.observe(observability.StageEvaluate, time.Now())

	report, err := p.evaluator.Evaluate(ctx, s.TestX, s.TestY, m, p.opts.ExperimentID)
	if err != nil {
		return nil, err
	}
	p.metrics.TestMSE.Set(report.MSE)
	return report, nil
}

func (p *Pipeline) observe(stage string, start time.Time) {
	p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
