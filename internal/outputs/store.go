// Package outputs manages the directory of generated audio files. Files are
// ephemeral: a sweeper removes them once they outlive the retention window.
package outputs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-clone/internal/config"
)

var ErrInvalidName = errors.New("invalid output file name")

type Store struct {
	dir   string
	base  string
	cfg   config.OutputConfig
	log   *slog.Logger
	clock func() time.Time
}

func Open(cfg config.OutputConfig, log *slog.Logger) (*Store, error) {
	dir, err := filepath.Abs(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Store{
		dir:   dir,
		base:  strings.TrimRight(cfg.PublicBase, "/"),
		cfg:   cfg,
		log:   log.With(slog.String("component", "outputs")),
		clock: time.Now,
	}, nil
}

func (s *Store) Dir() string { return s.dir }

// NewName allocates a unique file name for a generated clip.
func (s *Store) NewName() string {
	return "clone_" + uuid.NewString() + ".wav"
}

// Path resolves name inside the output directory.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", ErrInvalidName
	}
	full := filepath.Join(s.dir, name)
	if filepath.Dir(full) != s.dir {
		return "", ErrInvalidName
	}
	return full, nil
}

// URL is the public URL of name.
func (s *Store) URL(name string) string {
	return s.base + path.Join("/output", name)
}

// Remove deletes name if present.
func (s *Store) Remove(name string) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Sweep removes regular files whose modification time is older than the
// retention window and returns how many were removed.
func (s *Store) Sweep() (int, error) {
	retention := s.cfg.Retention()
	if retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	cutoff := s.clock().Add(-retention)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Run sweeps on the configured interval until ctx is done.
func (s *Store) Run(ctx context.Context) error {
	if s.cfg.Retention() <= 0 || s.cfg.SweepInterval() <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.cfg.SweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Sweep()
			if err != nil {
				s.log.Warn("output sweep failed", slog.String("error", err.Error()))
			}
			if n > 0 {
				s.log.Info("removed expired outputs", slog.Int("count", n))
			}
		}
	}
}
