package bus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-clone/internal/config"
	"github.com/loqalabs/loqa-clone/internal/natsserver"
	"github.com/loqalabs/loqa-clone/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNilClientPublishIsNoop(t *testing.T) {
	var c *Client
	if err := c.Publish(protocol.SubjectCloneCompleted, protocol.CloneCompleted{JobID: "x"}); err != nil {
		t.Fatalf("nil publish: %v", err)
	}
	if c.Healthy() {
		t.Fatal("nil client should not be healthy")
	}
	c.Close()
}

func TestConnectRequiresServers(t *testing.T) {
	cfg := config.Default().Bus
	cfg.Servers = nil
	if _, err := Connect(context.Background(), cfg, "test", newLogger()); err == nil {
		t.Fatal("expected error without servers")
	}
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	cfg := config.Default().Bus
	cfg.Enabled = true
	cfg.Embedded = true
	cfg.Port = -1
	cfg.StoreDir = t.TempDir()
	srv, err := natsserver.Start(cfg, newLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	defer srv.Shutdown()

	cfg.Servers = []string{srv.ClientURL()}
	client, err := Connect(context.Background(), cfg, "test", newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if !client.Healthy() {
		t.Fatal("expected healthy client")
	}

	got := make(chan protocol.CloneCompleted, 1)
	sub, err := Subscribe(client, protocol.SubjectCloneCompleted, func(msg protocol.CloneCompleted) { got <- msg })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if err := client.Publish(protocol.SubjectCloneCompleted, protocol.CloneCompleted{JobID: "job-1", AudioURL: "/output/a.wav"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case msg := <-got:
		if msg.JobID != "job-1" || msg.AudioURL != "/output/a.wav" {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
