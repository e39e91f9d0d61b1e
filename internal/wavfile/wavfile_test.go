package wavfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteSilenceAndInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silence.wav")
	if err := WriteSilence(path, 500*time.Millisecond, 24000, 1); err != nil {
		t.Fatalf("write silence: %v", err)
	}
	format, err := Inspect(path)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if format.SampleRate != 24000 || format.Channels != 1 || format.BitDepth != 16 {
		t.Fatalf("unexpected format: %+v", format)
	}
	if format.Duration < 450*time.Millisecond || format.Duration > 550*time.Millisecond {
		t.Fatalf("unexpected duration: %s", format.Duration)
	}
}

func TestWritePCM16(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcm.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pcm := []byte{0x00, 0x01, 0xff, 0x7f, 0x00, 0x80, 0x10, 0x00}
	if err := WritePCM16(f, pcm, 16000, 2); err != nil {
		t.Fatalf("write pcm: %v", err)
	}
	f.Close()
	format, err := Inspect(path)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if format.SampleRate != 16000 || format.Channels != 2 {
		t.Fatalf("unexpected format: %+v", format)
	}
}

func TestWritePCM16Misaligned(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "bad.wav"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := WritePCM16(f, []byte{0x01}, 16000, 1); err == nil {
		t.Fatal("expected alignment error")
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(path, []byte("definitely not RIFF data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Inspect(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
