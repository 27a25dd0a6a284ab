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

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/risk-zone-service/internal/adapter/geojson"
	"github.com/couchcryptid/risk-zone-service/internal/domain"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker for the duration of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := kafka.Run(ctx, kafkaImage, kafka.WithClusterID("test-cluster"))
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})
	require.NoError(t, err, "start kafka container")

	brokers, err := ctr.Brokers(ctx)
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

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// zoneMessage holds a zone result read from the sink topic.
type zoneMessage struct {
	Result  domain.ZoneResult
	Key     string
	Headers map[string]string
}

// readZones reads a single message from the sink consumer and decodes it.
func readZones(ctx context.Context, t *testing.T, consumer *kafkago.Reader) zoneMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	result, err := geojson.UnmarshalResult(msg.Value)
	require.NoError(t, err, "decode sink message")

	return zoneMessage{
		Result:  result,
		Key:     string(msg.Key),
		Headers: headers,
	}
}

// zoneRequestPayload builds a request with one danger and one warning
// cluster, 4 km apart, each a 3x2 grid of points about 50 m apart.
func zoneRequestPayload(t *testing.T, dataset string) []byte {
	t.Helper()
	var features []map[string]any
	add := func(prefix string, lon, lat, velocity float64) {
		n := 0
		for i := 0; i < 3; i++ {
			for j := 0; j < 2; j++ {
				n++
				features = append(features, map[string]any{
					"type": "Feature",
					"id":   fmt.Sprintf("%s%d", prefix, n),
					"geometry": map[string]any{
						"type":        "Point",
						"coordinates": []float64{lon + 0.0005*float64(i), lat + 0.0005*float64(j)},
					},
					"properties": map[string]any{"velocity": velocity},
				})
			}
		}
	}
	add("d", 12.4900, 41.8900, -15)
	add("w", 12.5400, 41.8900, -5)

	points, err := json.Marshal(map[string]any{"type": "FeatureCollection", "features": features})
	require.NoError(t, err)
	payload, err := json.Marshal(domain.ZoneRequest{Dataset: dataset, Points: points})
	require.NoError(t, err)
	return payload
}
