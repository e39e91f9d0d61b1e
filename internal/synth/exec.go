package synth

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/loqalabs/loqa-clone/internal/wavfile"
	"github.com/mattn/go-shellwords"
	"golang.org/x/sync/semaphore"
)

// EncodingPCM16 marks runner output written as headerless signed 16-bit
// little-endian PCM; the adapter wraps it in a WAV header.
const EncodingPCM16 = "pcm_s16le"

// runnerWaitDelay bounds how long a cancelled runner may keep its pipes open.
const runnerWaitDelay = 2 * time.Second

// execCloner drives a model runner process (for example a small Python
// wrapper around the pretrained model) through a JSON request on stdin and a
// JSON result line on stdout.
type execCloner struct {
	cmd        []string
	model      string
	device     string
	sampleRate int
	sem        *semaphore.Weighted
}

type execRequest struct {
	Text       string `json:"text"`
	Language   string `json:"language"`
	SpeakerWAV string `json:"speaker_wav"`
	OutputPath string `json:"output_path"`
	Model      string `json:"model,omitempty"`
	Device     string `json:"device,omitempty"`
}

type execResponse struct {
	OutputPath string `json:"output_path"`
	SampleRate int    `json:"sample_rate"`
	DurationMS int64  `json:"duration_ms"`
	Encoding   string `json:"encoding,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Error      string `json:"error"`
}

// NewExecCloner runs command once per request. sampleRate is assumed for raw
// PCM output when the runner does not report one.
func NewExecCloner(command, model, device string, sampleRate int) (Cloner, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command empty")
	}
	return &execCloner{
		cmd:        args,
		model:      model,
		device:     device,
		sampleRate: sampleRate,
		sem:        semaphore.NewWeighted(1),
	}, nil
}

func (e *execCloner) Name() string { return "exec" }

func (e *execCloner) Clone(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}

	// Runs are serialized; waiting callers give up with their ctx.
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer e.sem.Release(1)

	payload, err := sonic.Marshal(execRequest{
		Text:       req.Text,
		Language:   req.Language,
		SpeakerWAV: req.SpeakerWAV,
		OutputPath: req.OutputPath,
		Model:      e.model,
		Device:     e.device,
	})
	if err != nil {
		return Result{}, err
	}

	command := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	command.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	command.WaitDelay = runnerWaitDelay

	if err := command.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, fmt.Errorf("synth command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	resp, err := lastResponse(stdout.Bytes())
	if err != nil {
		return Result{}, err
	}
	if resp.Error != "" {
		return Result{}, errors.New(resp.Error)
	}

	if resp.OutputPath != "" && resp.OutputPath != req.OutputPath {
		return Result{}, fmt.Errorf("synth runner wrote %s, expected %s", resp.OutputPath, req.OutputPath)
	}
	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return Result{}, fmt.Errorf("synth runner produced no audio: %w", err)
	}
	if info.Size() == 0 {
		return Result{}, errors.New("synth runner produced an empty file")
	}

	result := Result{
		OutputPath: req.OutputPath,
		SampleRate: resp.SampleRate,
		Duration:   time.Duration(resp.DurationMS) * time.Millisecond,
	}
	switch resp.Encoding {
	case "", "wav":
	case EncodingPCM16:
		format, err := e.wrapPCM(req.OutputPath, resp)
		if err != nil {
			return Result{}, err
		}
		result.SampleRate = format.SampleRate
		result.Duration = format.Duration
	default:
		return Result{}, fmt.Errorf("synth runner returned unsupported encoding %q", resp.Encoding)
	}
	return result, nil
}

// wrapPCM rewrites the raw PCM at path as a WAV file in place.
func (e *execCloner) wrapPCM(path string, resp execResponse) (wavfile.Format, error) {
	pcm, err := os.ReadFile(path)
	if err != nil {
		return wavfile.Format{}, err
	}
	rate := resp.SampleRate
	if rate <= 0 {
		rate = e.sampleRate
	}
	channels := resp.Channels
	if channels <= 0 {
		channels = 1
	}
	f, err := os.Create(path)
	if err != nil {
		return wavfile.Format{}, err
	}
	if err := wavfile.WritePCM16(f, pcm, rate, channels); err != nil {
		f.Close()
		return wavfile.Format{}, fmt.Errorf("wrap pcm output: %w", err)
	}
	if err := f.Close(); err != nil {
		return wavfile.Format{}, err
	}
	return wavfile.Inspect(path)
}

// lastResponse decodes the final non-empty stdout line; runners may print
// progress lines before it.
func lastResponse(out []byte) (execResponse, error) {
	var last []byte
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := bytes.TrimSpace(scanner.Bytes()); len(line) > 0 {
			last = append(last[:0], line...)
		}
	}
	if err := scanner.Err(); err != nil {
		return execResponse{}, err
	}
	if len(last) == 0 {
		return execResponse{}, errors.New("synth runner returned no response")
	}
	var resp execResponse
	if err := sonic.Unmarshal(last, &resp); err != nil {
		return execResponse{}, fmt.Errorf("decode synth response: %w", err)
	}
	return resp, nil
}
