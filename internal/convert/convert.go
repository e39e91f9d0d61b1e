// Package convert normalises reference clips to the canonical WAV format the
// cloning model expects by shelling out to an external media converter.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/loqalabs/loqa-clone/internal/config"
	"github.com/loqalabs/loqa-clone/internal/wavfile"
	"github.com/mattn/go-shellwords"
)

var (
	ErrNoInput      = errors.New("no input audio provided")
	ErrConversion   = errors.New("audio conversion failed")
	ErrNotCanonical = errors.New("converted audio is not in canonical format")
)

// ConversionError reports a failed converter run. It matches ErrConversion.
type ConversionError struct {
	Err    error
	Stderr string
}

func (e *ConversionError) Error() string {
	return ErrConversion.Error() + ": " + e.Detail()
}

// Detail is the converter failure without the ErrConversion prefix.
func (e *ConversionError) Detail() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Stderr)
	}
	return e.Err.Error()
}

func (e *ConversionError) Unwrap() []error { return []error{ErrConversion, e.Err} }

// Result is a converted file and the func that removes it.
type Result struct {
	Path    string
	Cleanup func()
}

type Converter struct {
	cmd []string
	cfg config.ConverterConfig
}

func New(cfg config.ConverterConfig) (*Converter, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse converter command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("converter command empty")
	}
	return &Converter{cmd: args, cfg: cfg}, nil
}

// Args returns the converter arguments that turn input into a canonical WAV
// at output.
func (c *Converter) Args(input, output string) []string {
	return []string{
		"-i", input,
		"-ar", strconv.Itoa(c.cfg.SampleRate),
		"-ac", strconv.Itoa(c.cfg.Channels),
		"-c:a", c.cfg.Codec,
		output,
		"-y", "-hide_banner", "-loglevel", "error",
	}
}

// ToCanonical converts the file at input into a fresh temporary WAV file.
// The caller owns the result and must call Cleanup.
func (c *Converter) ToCanonical(ctx context.Context, input string) (Result, error) {
	if strings.TrimSpace(input) == "" {
		return Result{}, ErrNoInput
	}

	tmp, err := os.CreateTemp(c.cfg.TempDir, "loqa_clone_ref_*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("temp file: %w", err)
	}
	output := tmp.Name()
	tmp.Close()

	if err := c.ConvertFile(ctx, input, output); err != nil {
		os.Remove(output)
		return Result{}, err
	}

	var once sync.Once
	return Result{
		Path:    output,
		Cleanup: func() { once.Do(func() { os.Remove(output) }) },
	}, nil
}

// ConvertFile runs the converter from input to output, overwriting output.
func (c *Converter) ConvertFile(ctx context.Context, input, output string) error {
	if timeout := c.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := append(append([]string{}, c.cmd[1:]...), c.Args(input, output)...)
	command := exec.CommandContext(ctx, c.cmd[0], args...)
	var stderr bytes.Buffer
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return &ConversionError{Err: err, Stderr: strings.TrimSpace(stderr.String())}
	}

	if c.cfg.Verify {
		if err := c.Verify(output); err != nil {
			return err
		}
	}
	return nil
}

// Verify checks that path holds 16-bit PCM at the configured rate and channel count.
func (c *Converter) Verify(path string) error {
	format, err := wavfile.Inspect(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotCanonical, err)
	}
	if format.SampleRate != c.cfg.SampleRate || format.Channels != c.cfg.Channels || format.BitDepth != 16 {
		return fmt.Errorf("%w: got %d Hz, %d ch, %d bit", ErrNotCanonical, format.SampleRate, format.Channels, format.BitDepth)
	}
	return nil
}
