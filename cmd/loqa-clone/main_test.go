package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-clone/internal/config"
	"github.com/loqalabs/loqa-clone/internal/eventstore"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile = ""
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLanguagesCommand(t *testing.T) {
	out, err := run(t, "languages")
	if err != nil {
		t.Fatalf("languages: %v", err)
	}
	if !strings.Contains(out, "Chinese (Simplified)") || !strings.Contains(out, "zh-cn") {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = run(t, "languages", "--json")
	if err != nil {
		t.Fatalf("languages --json: %v", err)
	}
	if !strings.Contains(out, `"code": "hi"`) {
		t.Fatalf("unexpected json output %q", out)
	}
}

func TestValidateConfigCommand(t *testing.T) {
	out, err := run(t, "validate-config")
	if err != nil {
		t.Fatalf("validate-config: %v", err)
	}
	if !strings.HasPrefix(out, "config ok") {
		t.Fatalf("unexpected output %q", out)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("synth:\n  mode: grpc\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := run(t, "--config", path, "validate-config"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestConvertCommandRequiresArgs(t *testing.T) {
	if _, err := run(t, "convert", "only-one"); err == nil {
		t.Fatal("expected argument error")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != version {
		t.Fatalf("unexpected version %q", out)
	}
}

func TestJobsCommand(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "events.db")
	cfgPath := filepath.Join(dir, "loqa-clone.yaml")
	data := "event_store:\n  retention_mode: persistent\n  path: " + dbPath + "\n"
	if err := os.WriteFile(cfgPath, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := eventstore.Open(ctx, config.EventStoreConfig{Path: dbPath, RetentionMode: "persistent"}, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.AppendJob(ctx, "job-42", "fr", "mock"); err != nil {
		t.Fatalf("append job: %v", err)
	}
	for _, typ := range []string{eventstore.TypeRequested, eventstore.TypeCompleted} {
		if err := store.AppendEvent(ctx, eventstore.Event{JobID: "job-42", Type: typ}); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}
	store.Close()

	out, err := run(t, "--config", cfgPath, "jobs", "job-42")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, eventstore.TypeRequested) || !strings.Contains(out, eventstore.TypeCompleted) {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := run(t, "--config", cfgPath, "jobs", "job-unknown"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestJobsCommandEphemeral(t *testing.T) {
	_, err := run(t, "jobs", "job-1")
	if err == nil || !strings.Contains(err.Error(), "ephemeral") {
		t.Fatalf("expected ephemeral error, got %v", err)
	}
}
