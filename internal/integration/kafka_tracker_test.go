//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkaadapter "github.com/couchcryptid/cloud-pocket-etl/internal/adapter/kafka"
	"github.com/couchcryptid/cloud-pocket-etl/internal/config"
	"github.com/couchcryptid/cloud-pocket-etl/internal/tracking"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTrackingTopic = "test-experiment-runs"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("cloud-pocket-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestKafkaTracker_PublishesRun logs a run through the tracker and reads the
// event stream back from the topic.
func TestKafkaTracker_PublishesRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTrackingTopic)

	cfg := &config.Config{
		TrackingKafkaBrokers: []string{broker},
		TrackingKafkaTopic:   testTrackingTopic,
	}
	tracker := kafkaadapter.NewTracker(cfg, discardLogger())
	t.Cleanup(func() { _ = tracker.Close() })

	var runID string
	err := tracking.WithRun(ctx, tracker, "cloud-pockets", "cloud-pockets-it", func(run tracking.Run) error {
		runID = run.ID()
		if err := run.LogParam(ctx, "n_estimators", "50"); err != nil {
			return err
		}
		if err := run.LogMetric(ctx, "mse", 0.0012); err != nil {
			return err
		}
		return run.LogArtifact(ctx, "chart_feat_importance.png", []byte{0x89, 'P', 'N', 'G'})
	})
	require.NoError(t, err)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTrackingTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	var events []kafkaadapter.RunEvent
	for len(events) < 5 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from tracking topic")

		assert.Equal(t, runID, string(msg.Key))
		var e kafkaadapter.RunEvent
		require.NoError(t, json.Unmarshal(msg.Value, &e))
		events = append(events, e)
	}

	assert.Equal(t, kafkaadapter.KindRunStarted, events[0].Kind)
	assert.Equal(t, kafkaadapter.KindParam, events[1].Kind)
	assert.Equal(t, "50", events[1].Text)
	assert.Equal(t, kafkaadapter.KindMetric, events[2].Kind)
	require.NotNil(t, events[2].Value)
	assert.InDelta(t, 0.0012, *events[2].Value, 1e-12)
	assert.Equal(t, kafkaadapter.KindArtifact, events[3].Kind)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, events[3].Data)
	assert.Equal(t, kafkaadapter.KindRunEnded, events[4].Kind)
	assert.Equal(t, string(tracking.StatusFinished), events[4].Text)
}
