package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cloudpocket"

// Pipeline stage labels for StageDuration.
const (
	StagePrepare  = "prepare"
	StageSplit    = "split"
	StageTrain    = "train"
	StageEvaluate = "evaluate"
)

// Metrics holds the Prometheus counters, histograms, and gauges for one pipeline run.
type Metrics struct {
	FilesDiscovered prometheus.Counter
	FilesSkipped    *prometheus.CounterVec // labels: reason={missing_secondary,row_count_mismatch,read_error,bad_timestamp}
	RowsParsed      prometheus.Counter
	RowsDropped     prometheus.Counter
	DatasetRows     prometheus.Gauge

	TrainingScore prometheus.Gauge
	TestMSE       prometheus.Gauge

	StageDuration   *prometheus.HistogramVec // labels: stage={prepare,split,train,evaluate}
	PipelineRunning prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_discovered_total",
			Help:      "Primary files matched in the raw directory.",
		}),
		FilesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_skipped_total",
			Help:      "Files that contributed no rows, by reason.",
		}, []string{"reason"}),
		RowsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_parsed_total",
			Help:      "Rows read from files that were not skipped.",
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows rejected by the quality filter.",
		}),
		DatasetRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_rows",
			Help:      "Rows in the assembled dataset.",
		}),
		TrainingScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_score",
			Help:      "In-sample R² of the last trained model.",
		}),
		TestMSE: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "test_mse",
			Help:      "Mean squared error on the held-out set.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"stage"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress, 0 otherwise.",
		}),
	}
}

// collectors lists every metric for registration and pushing.
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FilesDiscovered,
		m.FilesSkipped,
		m.RowsParsed,
		m.RowsDropped,
		m.DatasetRows,
		m.TrainingScore,
		m.TestMSE,
		m.StageDuration,
		m.PipelineRunning,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
