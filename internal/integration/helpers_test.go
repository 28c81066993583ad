//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/couchcryptid/geonews-etl/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("geonews-test"))
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start kafka container")

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the controller.
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

// startPostgres runs a throwaway database and returns its DSN.
func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("geonews"),
		tcpostgres.WithUsername("geonews"),
		tcpostgres.WithPassword("geonews"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start postgres container")

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

// scriptedRecognizer returns fixed GPE entities per title.
type scriptedRecognizer map[string][]string

func (s scriptedRecognizer) Recognize(_ context.Context, text string) ([]domain.Entity, error) {
	var out []domain.Entity
	for _, name := range s[text] {
		out = append(out, domain.Entity{Text: name, Label: domain.LabelGPE})
	}
	return out, nil
}

// scriptedGeocoder returns fixed coordinates per query and counts calls.
type scriptedGeocoder struct {
	mu      sync.Mutex
	results map[string]domain.GeocodingResult
	calls   int
}

func (g *scriptedGeocoder) Geocode(_ context.Context, query string) (domain.GeocodingResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.results[query], nil
}
