package synth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrInvalidRequest is returned when a request lacks text, language or a speaker reference.
var ErrInvalidRequest = errors.New("invalid synthesis request")

// Request contains parameters to synthesize speech in the voice of SpeakerWAV.
type Request struct {
	JobID      string
	Text       string
	Language   string
	SpeakerWAV string
	OutputPath string
}

// Result describes the written audio file.
type Result struct {
	OutputPath string
	SampleRate int
	Duration   time.Duration
}

// Cloner is the contract for voice-cloning synthesis backends.
type Cloner interface {
	Name() string
	Clone(ctx context.Context, req Request) (Result, error)
}

// Pinger is implemented by cloners that can report backend readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

func (r Request) validate() error {
	switch {
	case strings.TrimSpace(r.Text) == "":
		return errors.Join(ErrInvalidRequest, errors.New("text is empty"))
	case r.Language == "":
		return errors.Join(ErrInvalidRequest, errors.New("language is empty"))
	case r.SpeakerWAV == "":
		return errors.Join(ErrInvalidRequest, errors.New("speaker reference is empty"))
	case r.OutputPath == "":
		return errors.Join(ErrInvalidRequest, errors.New("output path is empty"))
	}
	return nil
}
