package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/cloud-pocket-etl/internal/config"
	"github.com/couchcryptid/cloud-pocket-etl/internal/tracking"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
)

// EventKind identifies one entry in a run's event stream.
type EventKind string

const (
	KindRunStarted EventKind = "run_started"
	KindParam      EventKind = "param"
	KindMetric     EventKind = "metric"
	KindArtifact   EventKind = "artifact"
	KindRunEnded   EventKind = "run_ended"
)

// RunEvent is the JSON value of every message published for a run.
type RunEvent struct {
	RunID      string    `json:"run_id"`
	Experiment string    `json:"experiment"`
	RunName    string    `json:"run_name"`
	Kind       EventKind `json:"kind"`
	Key        string    `json:"key,omitempty"`
	Text       string    `json:"text,omitempty"`
	Value      *float64  `json:"value,omitempty"`
	Data       []byte    `json:"data,omitempty"`
	LoggedAt   time.Time `json:"logged_at"`
}

// messageWriter is the subset of *kafkago.Writer the tracker needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Tracker publishes experiment runs to a Kafka topic. Events are buffered per
// run and written in a single WriteMessages call when the run ends, keyed by
// run ID so one run stays on one partition in order.
type Tracker struct {
	writer messageWriter
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewTracker creates a Kafka producer for the configured tracking topic.
func NewTracker(cfg *config.Config, logger *slog.Logger) *Tracker {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.TrackingKafkaBrokers...),
		Topic:        cfg.TrackingKafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchBytes:   8 << 20,
	}
	return newTracker(w, clockwork.NewRealClock(), logger)
}

func newTracker(w messageWriter, clock clockwork.Clock, logger *slog.Logger) *Tracker {
	return &Tracker{writer: w, clock: clock, logger: logger}
}

// StartRun opens a buffered run. Nothing is published until End.
func (t *Tracker) StartRun(_ context.Context, experiment, runName string) (tracking.Run, error) {
	r := &run{
		tracker:    t,
		id:         uuid.New().String(),
		experiment: experiment,
		name:       runName,
	}
	r.add(RunEvent{Kind: KindRunStarted})
	return r, nil
}

func (t *Tracker) Close() error {
	return t.writer.Close()
}

type run struct {
	tracker    *Tracker
	id         string
	experiment string
	name       string
	events     []RunEvent
	ended      bool
}

func (r *run) add(e RunEvent) {
	e.RunID = r.id
	e.Experiment = r.experiment
	e.RunName = r.name
	e.LoggedAt = r.tracker.clock.Now().UTC()
	r.events = append(r.events, e)
}

var errRunEnded = errors.New("run already ended")

func (r *run) ID() string { return r.id }

func (r *run) LogParam(_ context.Context, key, value string) error {
	if r.ended {
		return errRunEnded
	}
	r.add(RunEvent{Kind: KindParam, Key: key, Text: value})
	return nil
}

func (r *run) LogMetric(_ context.Context, key string, value float64) error {
	if r.ended {
		return errRunEnded
	}
	r.add(RunEvent{Kind: KindMetric, Key: key, Value: &value})
	return nil
}

func (r *run) LogArtifact(_ context.Context, name string, data []byte) error {
	if r.ended {
		return errRunEnded
	}
	r.add(RunEvent{Kind: KindArtifact, Key: name, Data: data})
	return nil
}

// End appends the terminal event and publishes the whole run.
func (r *run) End(ctx context.Context, status tracking.RunStatus) error {
	if r.ended {
		return errRunEnded
	}
	r.ended = true
	r.add(RunEvent{Kind: KindRunEnded, Text: string(status)})

	msgs := make([]kafkago.Message, len(r.events))
	for i := range r.events {
		msg, err := serializeToMessage(r.events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := r.tracker.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish run %s: %w", r.id, err)
	}
	r.tracker.logger.Info("run published", "run_id", r.id, "events", len(msgs), "status", status)
	return nil
}

// serializeToMessage marshals a RunEvent into a Kafka message.
func serializeToMessage(event RunEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_kind", Value: []byte(event.Kind)},
			{Key: "logged_at", Value: []byte(event.LoggedAt.Format(time.RFC3339))},
		},
	}, nil
}
