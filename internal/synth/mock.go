package synth

import (
	"context"
	"time"

	"github.com/loqalabs/loqa-clone/internal/wavfile"
)

type mockCloner struct {
	sampleRate int
	delay      time.Duration
}

// NewMockCloner returns a Cloner that writes one second of silence.
func NewMockCloner(sampleRate int) Cloner {
	return &mockCloner{sampleRate: sampleRate, delay: 50 * time.Millisecond}
}

func (m *mockCloner) Name() string { return "mock" }

func (m *mockCloner) Clone(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-time.After(m.delay):
	}
	if err := wavfile.WriteSilence(req.OutputPath, time.Second, m.sampleRate, 1); err != nil {
		return Result{}, err
	}
	return Result{OutputPath: req.OutputPath, SampleRate: m.sampleRate, Duration: time.Second}, nil
}
