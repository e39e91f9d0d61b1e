// Package synth binds the pretrained voice-cloning model. The model itself
// runs outside this process: either as a runner command invoked per request
// or as a resident model server reached over HTTP.
package synth

import (
	"fmt"
	"net/http"

	"github.com/loqalabs/loqa-clone/internal/config"
)

// New builds the Cloner selected by cfg.Mode.
func New(cfg config.SynthConfig, sampleRate int) (Cloner, error) {
	switch cfg.Mode {
	case "mock", "":
		return NewMockCloner(sampleRate), nil
	case "exec":
		return NewExecCloner(cfg.Command, cfg.Model, cfg.Device, sampleRate)
	case "http":
		return NewHTTPCloner(cfg.Endpoint, cfg.Model, &http.Client{Timeout: cfg.Timeout()}), nil
	default:
		return nil, fmt.Errorf("unsupported synth mode %q", cfg.Mode)
	}
}
