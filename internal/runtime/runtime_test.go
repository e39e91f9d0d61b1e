package runtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-clone/internal/config"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.HTTP.Bind = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.HTTP.StaticDir = t.TempDir()
	cfg.Output.Directory = t.TempDir()
	cfg.Converter.TempDir = t.TempDir()
	return cfg
}

func startRuntime(t *testing.T, cfg config.Config) (*Runtime, context.CancelFunc, <-chan error) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	rt := New(cfg, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Start(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if addr := rt.Addr(); addr != "" {
			if resp, err := http.Get("http://" + addr + "/readyz"); err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return rt, cancel, done
				}
			}
		}
		select {
		case err := <-done:
			cancel()
			t.Fatalf("runtime exited early: %v", err)
		case <-time.After(20 * time.Millisecond):
		}
	}
	cancel()
	t.Fatal("runtime did not become ready")
	return nil, nil, nil
}

func stopRuntime(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runtime returned error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("runtime did not stop")
	}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func TestRuntimeServesAndStops(t *testing.T) {
	rt, cancel, done := startRuntime(t, testConfig(t))
	base := "http://" + rt.Addr()

	if code, body := get(t, base+"/healthz"); code != http.StatusOK || body != "ok" {
		t.Fatalf("unexpected healthz %d %q", code, body)
	}
	if code, body := get(t, base+"/api/languages"); code != http.StatusOK || !strings.Contains(body, `"zh-cn"`) {
		t.Fatalf("unexpected languages %d %q", code, body)
	}
	if code, _ := get(t, base+"/metrics"); code != http.StatusOK {
		t.Fatalf("expected metrics endpoint, got %d", code)
	}

	stopRuntime(t, cancel, done)
}

func TestRuntimeWithEmbeddedBus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bus.Enabled = true
	cfg.Bus.Embedded = true
	cfg.Bus.Port = -1
	cfg.Bus.StoreDir = t.TempDir()
	cfg.Telemetry.MetricsEnabled = false

	rt, cancel, done := startRuntime(t, cfg)
	if !rt.bus.Healthy() {
		t.Fatal("expected bus connection")
	}
	if code, _ := get(t, "http://"+rt.Addr()+"/metrics"); code != http.StatusNotFound {
		t.Fatalf("expected metrics disabled, got %d", code)
	}
	stopRuntime(t, cancel, done)
}

func TestRuntimeRejectsBadSynthMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Synth.Mode = "grpc"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := New(cfg, logger).Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "init cloner") {
		t.Fatalf("expected cloner init error, got %v", err)
	}
}

func TestSetupTelemetryMetricsHandler(t *testing.T) {
	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	shutdown, handler, err := setupTelemetry(cfg, logger)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer shutdown(context.Background())
	if handler == nil {
		t.Fatal("expected metrics handler when metrics are enabled")
	}

	cfg.Telemetry.MetricsEnabled = false
	shutdown2, handler2, err := setupTelemetry(cfg, logger)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer shutdown2(context.Background())
	if handler2 != nil {
		t.Fatal("expected no metrics handler when metrics are disabled")
	}
}
