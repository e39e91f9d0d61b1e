package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-clone/internal/config"
	"github.com/loqalabs/loqa-clone/internal/wavfile"
)

// writeScript creates a stand-in converter that receives the same argument
// layout as ffmpeg.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "converter.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func testConfig(command string) config.ConverterConfig {
	cfg := config.Default().Converter
	cfg.Command = command
	cfg.TimeoutMS = 5000
	return cfg
}

func TestArgs(t *testing.T) {
	c, err := New(testConfig("ffmpeg"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got := strings.Join(c.Args("in.mp3", "out.wav"), " ")
	want := "-i in.mp3 -ar 24000 -ac 1 -c:a pcm_s16le out.wav -y -hide_banner -loglevel error"
	if got != want {
		t.Fatalf("args mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestNewRejectsEmptyCommand(t *testing.T) {
	if _, err := New(testConfig("   ")); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestToCanonicalNoInput(t *testing.T) {
	c, err := New(testConfig("ffmpeg"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.ToCanonical(context.Background(), ""); !errors.Is(err, ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
}

func TestToCanonicalSuccess(t *testing.T) {
	script := writeScript(t, `cp "$2" "$9"`)
	cfg := testConfig("sh " + script)
	cfg.TempDir = t.TempDir()
	cfg.Verify = true
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	input := filepath.Join(t.TempDir(), "ref.wav")
	if err := wavfile.WriteSilence(input, 200*time.Millisecond, 24000, 1); err != nil {
		t.Fatalf("write input: %v", err)
	}

	res, err := c.ToCanonical(context.Background(), input)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if filepath.Dir(res.Path) != cfg.TempDir {
		t.Fatalf("expected output in temp dir, got %s", res.Path)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Fatalf("expected converted file: %v", err)
	}
	res.Cleanup()
	res.Cleanup()
	if _, err := os.Stat(res.Path); !os.IsNotExist(err) {
		t.Fatalf("expected cleanup to remove file, stat err=%v", err)
	}
}

func TestToCanonicalFailureRemovesOutput(t *testing.T) {
	script := writeScript(t, `echo "invalid data found" >&2; exit 1`)
	cfg := testConfig("sh " + script)
	cfg.TempDir = t.TempDir()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = c.ToCanonical(context.Background(), "/does/not/matter.webm")
	if !errors.Is(err, ErrConversion) {
		t.Fatalf("expected ErrConversion, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid data found") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected *ConversionError, got %T", err)
	}
	if got := convErr.Detail(); got != "exit status 1: invalid data found" {
		t.Fatalf("unexpected detail %q", got)
	}
	entries, _ := os.ReadDir(cfg.TempDir)
	if len(entries) != 0 {
		t.Fatalf("expected temp output removed, found %d entries", len(entries))
	}
}

func TestVerifyRejectsWrongRate(t *testing.T) {
	c, err := New(testConfig("ffmpeg"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wrong.wav")
	if err := wavfile.WriteSilence(path, 100*time.Millisecond, 16000, 1); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.Verify(path); !errors.Is(err, ErrNotCanonical) {
		t.Fatalf("expected ErrNotCanonical, got %v", err)
	}
}
