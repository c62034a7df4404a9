package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/cloud-pocket-etl/internal/domain"
	"github.com/couchcryptid/cloud-pocket-etl/internal/model"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Tracking backends.
const (
	TrackingNone   = "none"
	TrackingSQLite = "sqlite"
	TrackingKafka  = "kafka"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	RawDataDir       string
	SecondaryDataDir string
	PrimaryPattern   string
	SecondarySuffix  string
	IngestWorkers    int

	PixelThreshold domain.PixelThreshold
	DateParts      domain.DateParts

	TestFraction float64
	// SplitSeed is nil when the split should be drawn from entropy.
	SplitSeed *uint64

	Hyperparameters       model.Hyperparameters
	ModelSeed             uint64
	CorrelationSampleSeed uint64

	ExperimentID         string
	TrackingBackend      string
	TrackingSQLitePath   string
	TrackingKafkaBrokers []string
	TrackingKafkaTopic   string

	DatasetOut  string
	DatasetIn   string
	ArtifactDir string

	HTTPAddr        string
	PushgatewayURL  string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Paired reports whether primary files are joined with secondary files.
func (c *Config) Paired() bool {
	return c.SecondaryDataDir != ""
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	threshold, err := domain.ParsePixelThreshold(sharedcfg.EnvOrDefault("PIXEL_THRESHOLD", "strict"))
	if err != nil {
		return nil, fmt.Errorf("invalid PIXEL_THRESHOLD: %w", err)
	}
	dateParts, err := domain.ParseDateParts(sharedcfg.EnvOrDefault("DATE_PARTS", "month"))
	if err != nil {
		return nil, fmt.Errorf("invalid DATE_PARTS: %w", err)
	}

	workers, err := parsePositiveInt("INGEST_WORKERS", "4")
	if err != nil {
		return nil, err
	}
	testFraction, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("TEST_FRACTION", "0.2"), 64)
	if err != nil || testFraction <= 0 || testFraction >= 1 {
		return nil, errors.New("invalid TEST_FRACTION: must be in (0,1)")
	}
	splitSeed, err := parseOptionalSeed("SPLIT_SEED")
	if err != nil {
		return nil, err
	}
	modelSeed, err := parseSeed("MODEL_SEED", "0")
	if err != nil {
		return nil, err
	}
	sampleSeed, err := parseSeed("CORRELATION_SAMPLE_SEED", strconv.FormatUint(model.DefaultSampleSeed, 10))
	if err != nil {
		return nil, err
	}

	hp, err := loadHyperparameters()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RawDataDir:       os.Getenv("RAW_DATA_DIR"),
		SecondaryDataDir: os.Getenv("SECONDARY_DATA_DIR"),
		PrimaryPattern:   sharedcfg.EnvOrDefault("PRIMARY_PATTERN", "*.txt"),
		SecondarySuffix:  sharedcfg.EnvOrDefault("SECONDARY_SUFFIX", "_CAPE.txt"),
		IngestWorkers:    workers,

		PixelThreshold: threshold,
		DateParts:      dateParts,

		TestFraction: testFraction,
		SplitSeed:    splitSeed,

		Hyperparameters:       hp,
		ModelSeed:             modelSeed,
		CorrelationSampleSeed: sampleSeed,

		ExperimentID:         sharedcfg.EnvOrDefault("EXPERIMENT_ID", "cloud-pockets"),
		TrackingBackend:      sharedcfg.EnvOrDefault("TRACKING_BACKEND", TrackingNone),
		TrackingSQLitePath:   sharedcfg.EnvOrDefault("TRACKING_SQLITE_PATH", "tracking.db"),
		TrackingKafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("TRACKING_KAFKA_BROKERS", "localhost:9092")),
		TrackingKafkaTopic:   sharedcfg.EnvOrDefault("TRACKING_KAFKA_TOPIC", "experiment-runs"),

		DatasetOut:  os.Getenv("DATASET_OUT"),
		DatasetIn:   os.Getenv("DATASET_IN"),
		ArtifactDir: os.Getenv("ARTIFACT_DIR"),

		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		PushgatewayURL:  os.Getenv("PUSHGATEWAY_URL"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.RawDataDir == "" && cfg.DatasetIn == "" {
		return nil, errors.New("RAW_DATA_DIR is required")
	}
	switch cfg.TrackingBackend {
	case TrackingNone, TrackingSQLite:
	case TrackingKafka:
		if len(cfg.TrackingKafkaBrokers) == 0 {
			return nil, errors.New("TRACKING_KAFKA_BROKERS is required for the kafka backend")
		}
	default:
		return nil, fmt.Errorf("invalid TRACKING_BACKEND %q: want none, sqlite, or kafka", cfg.TrackingBackend)
	}

	return cfg, nil
}

// loadHyperparameters reads the required model settings. A missing value
// wraps model.ErrMissingHyperparameter and names the variable.
func loadHyperparameters() (model.Hyperparameters, error) {
	var hp model.Hyperparameters
	var err error
	if hp.NEstimators, err = requiredInt("MODEL_N_ESTIMATORS"); err != nil {
		return hp, err
	}
	if hp.MaxDepth, err = requiredInt("MODEL_MAX_DEPTH"); err != nil {
		return hp, err
	}
	if hp.LearningRate, err = requiredFloat("MODEL_LEARNING_RATE"); err != nil {
		return hp, err
	}
	if hp.Subsample, err = requiredFloat("MODEL_SUBSAMPLE"); err != nil {
		return hp, err
	}
	if hp.ColsampleByTree, err = requiredFloat("MODEL_COLSAMPLE_BYTREE"); err != nil {
		return hp, err
	}
	if err := hp.Validate(); err != nil {
		return hp, fmt.Errorf("invalid model settings: %w", err)
	}
	return hp, nil
}

func requiredInt(key string) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return 0, fmt.Errorf("%s is required: %w", key, model.ErrMissingHyperparameter)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func requiredFloat(key string) (float64, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return 0, fmt.Errorf("%s is required: %w", key, model.ErrMissingHyperparameter)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parsePositiveInt(key, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseSeed(key, def string) (uint64, error) {
	v, err := strconv.ParseUint(sharedcfg.EnvOrDefault(key, def), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseOptionalSeed(key string) (*uint64, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &v, nil
}
