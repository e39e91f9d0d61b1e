package capability

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-clone/internal/config"
	"github.com/loqalabs/loqa-clone/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCloneCapability(t *testing.T) {
	c := CloneCapability("exec", "xtts_v2", []string{"en", "fr"})
	if c.Name != VoiceClone {
		t.Fatalf("unexpected name %q", c.Name)
	}
	if c.Attributes["languages"] != "en,fr" || c.Attributes["cloner"] != "exec" {
		t.Fatalf("unexpected attributes %v", c.Attributes)
	}
}

func TestRegistryTracksNodes(t *testing.T) {
	cfg := config.Default().Node
	r := newRegistry(cfg, nil, newLogger())
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.clock = func() time.Time { return now }

	r.handleAnnounce(protocol.NodeAnnounce{
		NodeID:       "peer-1",
		Role:         "voice-clone",
		Capabilities: []protocol.Capability{CloneCapability("http", "xtts_v2", []string{"en"})},
	})
	r.handleHeartbeat(protocol.NodeHeartbeat{NodeID: "peer-2"})
	r.handleHeartbeat(protocol.NodeHeartbeat{})

	nodes := r.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	if nodes[0].ID != "peer-1" || nodes[0].Role != "voice-clone" || len(nodes[0].Capabilities) != 1 {
		t.Fatalf("unexpected first node %+v", nodes[0])
	}
	if !nodes[0].Healthy || !nodes[1].Healthy {
		t.Fatal("expected nodes healthy after contact")
	}

	now = now.Add(time.Duration(cfg.HeartbeatTimeout+1) * time.Millisecond)
	r.handleHeartbeat(protocol.NodeHeartbeat{NodeID: "peer-2", Timestamp: now})
	r.evaluateHealth()

	nodes = r.Nodes()
	if nodes[0].Healthy {
		t.Fatal("expected silent peer-1 to be unhealthy")
	}
	if !nodes[1].Healthy {
		t.Fatal("expected peer-2 to stay healthy")
	}
	if len(nodes[0].Capabilities) != 1 {
		t.Fatal("heartbeat must not clear capabilities")
	}
}
