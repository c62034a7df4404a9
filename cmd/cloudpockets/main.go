// Command cloudpockets prepares the cloud-pocket dataset from raw measurement
// files, trains the pocket_ratio regressor, and evaluates it. Settings come
// from the environment (see internal/config).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/cloud-pocket-etl/internal/adapter/frame"
	"github.com/couchcryptid/cloud-pocket-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/cloud-pocket-etl/internal/adapter/kafka"
	"github.com/couchcryptid/cloud-pocket-etl/internal/adapter/rawfile"
	"github.com/couchcryptid/cloud-pocket-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/cloud-pocket-etl/internal/chart"
	"github.com/couchcryptid/cloud-pocket-etl/internal/config"
	"github.com/couchcryptid/cloud-pocket-etl/internal/domain"
	"github.com/couchcryptid/cloud-pocket-etl/internal/model"
	"github.com/couchcryptid/cloud-pocket-etl/internal/observability"
	"github.com/couchcryptid/cloud-pocket-etl/internal/pipeline"
	"github.com/couchcryptid/cloud-pocket-etl/internal/tracking"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	tracker, closeTracker, err := newTracker(cfg, logger)
	if err != nil {
		logger.Error("failed to open tracker", "backend", cfg.TrackingBackend, "error", err)
		return 1
	}
	defer closeTracker()

	ingester := rawfile.NewIngester(rawfile.Options{
		PrimaryDir:      cfg.RawDataDir,
		SecondaryDir:    cfg.SecondaryDataDir,
		Pattern:         cfg.PrimaryPattern,
		SecondarySuffix: cfg.SecondarySuffix,
		Workers:         cfg.IngestWorkers,
	}, logger)
	trainer := model.NewTrainer(cfg.ModelSeed, logger)
	evaluator := model.NewEvaluator(tracker, cfg.CorrelationSampleSeed, logger)

	opts := pipeline.Options{
		Filter:          domain.QualityFilter{Threshold: cfg.PixelThreshold},
		DateParts:       cfg.DateParts,
		TestFraction:    cfg.TestFraction,
		SplitSeed:       cfg.SplitSeed,
		Hyperparameters: cfg.Hyperparameters,
		ExperimentID:    cfg.ExperimentID,
	}
	if rc, ok := tracker.(pipeline.ReadinessChecker); ok {
		opts.Dependencies = append(opts.Dependencies, rc)
	}
	p := pipeline.New(ingester, trainer, evaluator, opts, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	code := 0
	if err := execute(ctx, cfg, p, logger); err != nil {
		logger.Error("pipeline failed", "error", err)
		code = 1
	}

	if cfg.PushgatewayURL != "" {
		if err := metrics.Push(ctx, cfg.PushgatewayURL, cfg.ExperimentID); err != nil {
			logger.Error("metrics push failed", "error", err)
		}
	}

	if srv != nil {
		// Keep serving the report and metrics until asked to stop.
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	logger.Info("done", "exit_code", code)
	return code
}

// execute loads or prepares the dataset, persists it when asked, and runs the
// remaining stages.
func execute(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) error {
	var ds domain.Dataset
	var err error
	if cfg.DatasetIn != "" {
		ds, err = frame.ReadCSV(cfg.DatasetIn)
		if err != nil {
			return err
		}
		if ds.Target == "" {
			return fmt.Errorf("dataset %s has no %s column", cfg.DatasetIn, domain.TargetColumn)
		}
		logger.Info("dataset loaded", "path", cfg.DatasetIn, "rows", ds.Len(), "columns", len(ds.Columns))
	} else {
		ds, err = p.Prepare(ctx)
		if err != nil {
			return err
		}
	}

	if cfg.DatasetOut != "" {
		if err := frame.WriteCSV(cfg.DatasetOut, ds); err != nil {
			return err
		}
		logger.Info("dataset written", "path", cfg.DatasetOut)
	}

	res, err := p.RunFromDataset(ctx, ds)
	if err != nil {
		return err
	}

	if cfg.ArtifactDir != "" {
		for _, c := range []*chart.Chart{res.Report.FeatureImportance, res.Report.Correlation} {
			path, err := c.WriteFile(cfg.ArtifactDir)
			if err != nil {
				return err
			}
			logger.Info("chart written", "path", path)
		}
	}

	fmt.Printf("rows=%d train=%d test=%d score=%.6f mse=%.6g\n",
		res.DatasetRows, res.TrainRows, res.TestRows, res.TrainingScore, res.Report.MSE)
	return nil
}

// newTracker opens the configured tracking backend. The returned close
// function is always safe to call.
func newTracker(cfg *config.Config, logger *slog.Logger) (tracking.Tracker, func(), error) {
	switch cfg.TrackingBackend {
	case config.TrackingSQLite:
		t, err := sqlite.NewTracker(cfg.TrackingSQLitePath)
		if err != nil {
			return nil, func() {}, err
		}
		logger.Info("tracking to sqlite", "path", cfg.TrackingSQLitePath)
		return t, func() {
			if err := t.Close(); err != nil {
				logger.Error("sqlite tracker close error", "error", err)
			}
		}, nil
	case config.TrackingKafka:
		t := kafkaadapter.NewTracker(cfg, logger)
		logger.Info("tracking to kafka", "brokers", cfg.TrackingKafkaBrokers, "topic", cfg.TrackingKafkaTopic)
		return t, func() {
			if err := t.Close(); err != nil {
				logger.Error("kafka tracker close error", "error", err)
			}
		}, nil
	default:
		logger.Info("tracking disabled")
		return nil, func() {}, nil
	}
}
