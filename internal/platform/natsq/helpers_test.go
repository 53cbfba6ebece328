package natsq

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// startServer runs an embedded JetStream-enabled server for the test and
// returns its client URL.
func startServer(t *testing.T) string {
	t.Helper()

	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		t.Fatal("nats server did not become ready")
	}
	t.Cleanup(func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	})
	return srv.ClientURL()
}

// connect opens a client connection through Connect, closed when the test
// ends.
func connect(t *testing.T, url string) *nats.Conn {
	t.Helper()
	nc, err := Connect(context.Background(), url, t.Name(), 1, testLogger())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func newJetStream(t *testing.T, nc *nats.Conn) jetstream.JetStream {
	t.Helper()
	js, err := jetstream.New(nc)
	require.NoError(t, err)
	return js
}

func testBrokerConfig() BrokerConfig {
	return BrokerConfig{
		SubjectPrefix: "story",
		Stream:        "STORY_TASKS",
		AckWait:       5 * time.Second,
		PollWait:      100 * time.Millisecond,
	}
}
