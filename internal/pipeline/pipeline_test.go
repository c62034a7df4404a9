package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/couchcryptid/cloud-pocket-etl/internal/domain"
	"github.com/couchcryptid/cloud-pocket-etl/internal/model"
	"github.com/couchcryptid/cloud-pocket-etl/internal/observability"
	"github.com/couchcryptid/cloud-pocket-etl/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockIngester struct {
	result domain.IngestResult
	err    error
	paired bool
}

func (m *mockIngester) Ingest(context.Context) (domain.IngestResult, error) {
	return m.result, m.err
}

func (m *mockIngester) Paired() bool { return m.paired }
func (m *mockIngester) Dir() string  { return "/data/raw" }

type failingTrainer struct{ err error }

func (f failingTrainer) Train(context.Context, [][]float64, []float64, []string, model.Hyperparameters) (*model.TrainedModel, float64, error) {
	return nil, 0, f.err
}

type stubReadiness struct{ err error }

func (s stubReadiness) CheckReadiness(context.Context) error { return s.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fixtures ---

func goodRecord(i int) domain.CloudRecord {
	return domain.CloudRecord{
		Date:          200501151230,
		Area:          60 + float64(i),
		Tau:           2,
		NbIce:         5,
		NbLiq:         5,
		ReLiq:         (8 + float64(i%10)) * 1e-6,
		ReIce:         1e-5,
		NbPocketIce:   float64(i % 5),
		SizePocketIce: 30,
		SizePocketLiq: 40,
		Lon:           140,
		Lat:           -55,
		Thermo:        &domain.Thermo{CAPE: 100, Omega: -0.1, SST: 280},
	}
}

func file(path string, good, bad int) domain.SourceFile {
	f := domain.SourceFile{Path: path}
	for i := range good {
		f.Records = append(f.Records, goodRecord(i))
	}
	for i := range bad {
		r := goodRecord(i)
		r.Area = 10
		f.Records = append(f.Records, r)
	}
	return f
}

func badTimestampFile(path string) domain.SourceFile {
	f := file(path, 5, 0)
	f.Records[2].Date = math.NaN()
	return f
}

func seed(v uint64) *uint64 { return &v }

func testOptions() pipeline.Options {
	return pipeline.Options{
		Filter:       domain.QualityFilter{Threshold: domain.PixelThresholdStrict},
		DateParts:    domain.DatePartsMonth,
		TestFraction: 0.2,
		SplitSeed:    seed(1),
		Hyperparameters: model.Hyperparameters{
			NEstimators:     20,
			MaxDepth:        2,
			LearningRate:    0.3,
			Subsample:       1,
			ColsampleByTree: 1,
		},
		ExperimentID: "cloud-pockets",
	}
}

func newPipeline(in pipeline.Ingester, tr pipeline.Trainer, metrics *observability.Metrics) *pipeline.Pipeline {
	if tr == nil {
		tr = model.NewTrainer(0, discardLogger())
	}
	ev := model.NewEvaluator(nil, model.DefaultSampleSeed, discardLogger())
	return pipeline.New(in, tr, ev, testOptions(), discardLogger(), metrics)
}

// --- tests ---

func TestPipeline_Prepare(t *testing.T) {
	in := &mockIngester{result: domain.IngestResult{
		Discovered: 4,
		Files: []domain.SourceFile{
			file("/data/raw/a.txt", 30, 4),
			badTimestampFile("/data/raw/b.txt"),
			file("/data/raw/c.txt", 20, 1),
		},
		Skipped: []domain.Skip{{Path: "/data/raw/d.txt", Reason: domain.SkipMissingSecondary}},
	}}
	metrics := observability.NewMetricsForTesting()
	p := newPipeline(in, nil, metrics)

	ds, err := p.Prepare(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 50, ds.Len())
	assert.Equal(t, domain.TargetColumn, ds.Target)
	assert.Equal(t, []string{
		"tau", "ctt", "perim", "re_liq", "re_ice", "tau_liq", "tau_ice", "lon", "lat",
		"month", domain.TargetColumn,
	}, ds.Columns)

	reLiq, err := ds.Column("re_liq")
	require.NoError(t, err)
	assert.InDelta(t, 8.0, reLiq[0], 1e-9)
	month, err := ds.Column("month")
	require.NoError(t, err)
	assert.Equal(t, 1.0, month[0])

	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.FilesDiscovered))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FilesSkipped.WithLabelValues(string(domain.SkipMissingSecondary))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FilesSkipped.WithLabelValues(string(domain.SkipBadTimestamp))))
	assert.Equal(t, 60.0, testutil.ToFloat64(metrics.RowsParsed))
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.RowsDropped))
	assert.Equal(t, 50.0, testutil.ToFloat64(metrics.DatasetRows))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning))
}

func TestPipeline_PreparePairedAddsThermoColumns(t *testing.T) {
	in := &mockIngester{paired: true, result: domain.IngestResult{
		Discovered: 1,
		Files:      []domain.SourceFile{file("/data/raw/a.txt", 3, 0)},
	}}
	ds, err := newPipeline(in, nil, observability.NewMetricsForTesting()).Prepare(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"tau", "ctt", "perim", "re_liq", "re_ice", "tau_liq", "tau_ice", "lon", "lat",
		"cape", "omega", "sst", "month", domain.TargetColumn,
	}, ds.Columns)
	cape, err := ds.Column("cape")
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 100, 100}, cape)
}

func TestPipeline_PrepareEmptyDataset(t *testing.T) {
	in := &mockIngester{result: domain.IngestResult{
		Discovered: 1,
		Files:      []domain.SourceFile{file("/data/raw/a.txt", 0, 3)},
	}}
	_, err := newPipeline(in, nil, observability.NewMetricsForTesting()).Prepare(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmptyDataset)
	assert.Contains(t, err.Error(), "no well-formed records found in /data/raw")
}

func TestPipeline_PrepareIngestError(t *testing.T) {
	in := &mockIngester{err: context.Canceled}
	_, err := newPipeline(in, nil, observability.NewMetricsForTesting()).Prepare(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_Run_HappyPath(t *testing.T) {
	in := &mockIngester{result: domain.IngestResult{
		Discovered: 2,
		Files: []domain.SourceFile{
			file("/data/raw/a.txt", 40, 0),
			file("/data/raw/b.txt", 20, 0),
		},
	}}
	metrics := observability.NewMetricsForTesting()
	p := newPipeline(in, nil, metrics)
	require.Error(t, p.CheckReadiness(context.Background()))
	assert.Nil(t, p.LastReport())

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 60, res.DatasetRows)
	assert.Equal(t, 12, res.TestRows)
	assert.Equal(t, 48, res.TrainRows)
	assert.False(t, math.IsNaN(res.TrainingScore))
	require.NotNil(t, res.Report)
	assert.GreaterOrEqual(t, res.Report.MSE, 0.0)
	assert.Len(t, res.Report.Sample, 12)
	assert.NotEmpty(t, res.Report.FeatureImportance.PNG)
	assert.NotContains(t, res.Model.Features(), domain.TargetColumn)

	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.Same(t, res.Report, p.LastReport())
	assert.Equal(t, res.Report.MSE, testutil.ToFloat64(metrics.TestMSE))
	assert.Equal(t, res.TrainingScore, testutil.ToFloat64(metrics.TrainingScore))
	assert.Equal(t, 4, testutil.CollectAndCount(metrics.StageDuration))
}

func TestPipeline_RunTrainError(t *testing.T) {
	in := &mockIngester{result: domain.IngestResult{
		Discovered: 1,
		Files:      []domain.SourceFile{file("/data/raw/a.txt", 10, 0)},
	}}
	boom := errors.New("train failed")
	p := newPipeline(in, failingTrainer{err: boom}, observability.NewMetricsForTesting())

	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_RunFromDatasetInvalidSplit(t *testing.T) {
	p := newPipeline(&mockIngester{}, nil, observability.NewMetricsForTesting())
	ds := domain.Dataset{
		Columns: []string{"tau", domain.TargetColumn},
		Target:  domain.TargetColumn,
		Rows:    []domain.FeatureRow{{2, 0.1}},
	}
	_, err := p.RunFromDataset(context.Background(), ds)
	assert.ErrorIs(t, err, model.ErrInvalidSplit)
}

func TestPipeline_ReadinessChecksDependencies(t *testing.T) {
	in := &mockIngester{result: domain.IngestResult{
		Discovered: 1,
		Files:      []domain.SourceFile{file("/data/raw/a.txt", 30, 0)},
	}}
	down := errors.New("database is closed")
	dep := &stubReadiness{}
	opts := testOptions()
	opts.Dependencies = []pipeline.ReadinessChecker{dep}
	ev := model.NewEvaluator(nil, model.DefaultSampleSeed, discardLogger())
	p := pipeline.New(in, model.NewTrainer(0, discardLogger()), ev, opts, discardLogger(), observability.NewMetricsForTesting())

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.NoError(t, p.CheckReadiness(context.Background()))

	dep.err = down
	err = p.CheckReadiness(context.Background())
	assert.ErrorIs(t, err, down)
}
