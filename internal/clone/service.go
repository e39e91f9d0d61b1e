// Package clone implements the voice cloning workflow: store the uploaded
// reference clip, normalise it, run the cloning model and publish the result.
package clone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/loqalabs/loqa-clone/internal/convert"
	"github.com/loqalabs/loqa-clone/internal/eventstore"
	"github.com/loqalabs/loqa-clone/internal/languages"
	"github.com/loqalabs/loqa-clone/internal/protocol"
	"github.com/loqalabs/loqa-clone/internal/synth"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Converter turns an arbitrary audio file into the canonical speaker WAV.
type Converter interface {
	ToCanonical(ctx context.Context, input string) (convert.Result, error)
}

// OutputStore allocates and resolves generated file names.
type OutputStore interface {
	NewName() string
	Path(name string) (string, error)
	URL(name string) string
	Remove(name string) error
}

// Recorder persists the job timeline.
type Recorder interface {
	AppendJob(ctx context.Context, jobID, language, cloner string) error
	AppendEvent(ctx context.Context, evt eventstore.Event) error
}

// Publisher broadcasts job outcomes.
type Publisher interface {
	Publish(subject string, v any) error
}

// Input is one clone request as received from a client.
type Input struct {
	Filename string
	Reader   io.Reader
	Text     string
	Language string
}

// Output describes a finished clone job.
type Output struct {
	JobID        string
	FileName     string
	URL          string
	LanguageCode string
	Duration     time.Duration
}

type Options struct {
	NodeID       string
	TempDir      string
	SynthTimeout time.Duration
	Recorder     Recorder
	Publisher    Publisher
}

type Service struct {
	converter Converter
	cloner    synth.Cloner
	outputs   OutputStore
	opts      Options
	log       *slog.Logger
	clock     func() time.Time
	tracer    trace.Tracer

	requests        metric.Int64Counter
	duration        metric.Float64Histogram
	convertDuration metric.Float64Histogram
}

func NewService(converter Converter, cloner synth.Cloner, outputs OutputStore, opts Options, log *slog.Logger) *Service {
	s := &Service{
		converter: converter,
		cloner:    cloner,
		outputs:   outputs,
		opts:      opts,
		log:       log.With(slog.String("component", "clone-service")),
		clock:     time.Now,
		tracer:    otel.Tracer("github.com/loqalabs/loqa-clone/clone"),
	}
	if err := s.initMetrics(); err != nil {
		s.log.Warn("failed to initialize metrics", slogError(err))
	}
	return s
}

func (s *Service) initMetrics() error {
	meter := otel.Meter("github.com/loqalabs/loqa-clone/clone")
	var err error
	if s.requests, err = meter.Int64Counter("loqa.clone.requests", metric.WithDescription("Clone requests by outcome")); err != nil {
		return err
	}
	if s.duration, err = meter.Float64Histogram("loqa.clone.duration", metric.WithUnit("ms"), metric.WithDescription("End to end clone latency")); err != nil {
		return err
	}
	if s.convertDuration, err = meter.Float64Histogram("loqa.clone.convert.duration", metric.WithUnit("ms"), metric.WithDescription("Reference conversion latency")); err != nil {
		return err
	}
	return nil
}

// Cloner exposes the configured backend, used for readiness checks.
func (s *Service) Cloner() synth.Cloner { return s.cloner }

// Clone runs one clone job to completion.
func (s *Service) Clone(ctx context.Context, in Input) (Output, error) {
	start := s.clock()
	ctx, span := s.tracer.Start(ctx, "clone")
	defer span.End()

	if in.Reader == nil {
		return Output{}, s.reject(ctx, ErrMissingAudio)
	}
	if strings.TrimSpace(in.Text) == "" || strings.TrimSpace(in.Language) == "" {
		return Output{}, s.reject(ctx, ErrMissingField)
	}
	lang, ok := languages.Lookup(in.Language)
	if !ok {
		return Output{}, s.reject(ctx, ErrInvalidLanguage)
	}

	jobID := uuid.NewString()
	span.SetAttributes(attribute.String("clone.job_id", jobID), attribute.String("clone.language", lang.Code))
	log := s.log.With(slog.String("job_id", jobID))
	log.Info("clone requested", slog.String("language", lang.Code), slog.Int("text_len", len(in.Text)))

	if err := s.record(func(r Recorder) error { return r.AppendJob(ctx, jobID, lang.Code, s.cloner.Name()) }); err != nil {
		log.Warn("failed to record job", slogError(err))
	}
	s.event(ctx, jobID, eventstore.TypeRequested, map[string]any{"language": lang.Code, "filename": in.Filename})

	refPath, err := s.saveUpload(in)
	if err != nil {
		return Output{}, s.fail(ctx, jobID, start, &Error{Kind: KindInternal, Op: "save_upload", Message: "Failed to store uploaded audio.", Err: err})
	}

	convStart := s.clock()
	converted, err := s.converter.ToCanonical(ctx, refPath)
	os.Remove(refPath)
	s.convertDuration.Record(ctx, msSince(s.clock, convStart))
	if err != nil {
		return Output{}, s.fail(ctx, jobID, start, &Error{
			Kind:    KindConversion,
			Op:      "convert",
			Message: "Audio conversion failed. Error: " + conversionDetail(err),
			Err:     err,
		})
	}
	defer converted.Cleanup()
	s.event(ctx, jobID, eventstore.TypeConverted, nil)

	name := s.outputs.NewName()
	outPath, err := s.outputs.Path(name)
	if err != nil {
		return Output{}, s.fail(ctx, jobID, start, &Error{Kind: KindInternal, Op: "allocate_output", Message: "Failed to allocate output file.", Err: err})
	}

	synthCtx := ctx
	if s.opts.SynthTimeout > 0 {
		var cancel context.CancelFunc
		synthCtx, cancel = context.WithTimeout(ctx, s.opts.SynthTimeout)
		defer cancel()
	}
	log.Info("generating audio", slog.String("cloner", s.cloner.Name()))
	res, err := s.cloner.Clone(synthCtx, synth.Request{
		JobID:      jobID,
		Text:       in.Text,
		Language:   lang.Code,
		SpeakerWAV: converted.Path,
		OutputPath: outPath,
	})
	if err != nil {
		if rmErr := s.outputs.Remove(name); rmErr != nil {
			log.Warn("failed to remove partial output", slogError(rmErr))
		}
		return Output{}, s.fail(ctx, jobID, start, &Error{Kind: KindSynthesis, Op: "synthesize", Message: err.Error(), Err: err})
	}

	if info, statErr := os.Stat(outPath); statErr != nil || info.Size() == 0 {
		if statErr == nil {
			statErr = errors.New("empty file")
		}
		if rmErr := s.outputs.Remove(name); rmErr != nil {
			log.Warn("failed to remove partial output", slogError(rmErr))
		}
		return Output{}, s.fail(ctx, jobID, start, &Error{
			Kind:    KindSynthesis,
			Op:      "synthesize",
			Message: "Voice model produced no audio.",
			Err:     fmt.Errorf("output %s: %w", name, statErr),
		})
	}

	out := Output{
		JobID:        jobID,
		FileName:     name,
		URL:          s.outputs.URL(name),
		LanguageCode: lang.Code,
		Duration:     res.Duration,
	}
	elapsed := msSince(s.clock, start)
	s.event(ctx, jobID, eventstore.TypeCompleted, map[string]any{"file": name, "elapsed_ms": int64(elapsed)})
	if err := s.publish(protocol.SubjectCloneCompleted, protocol.CloneCompleted{
		JobID:      jobID,
		NodeID:     s.opts.NodeID,
		Language:   lang.Code,
		AudioURL:   out.URL,
		FileName:   name,
		DurationMS: res.Duration.Milliseconds(),
		ElapsedMS:  int64(elapsed),
		Timestamp:  s.clock().UTC(),
	}); err != nil {
		log.Warn("failed to publish completion", slogError(err))
	}
	s.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	s.duration.Record(ctx, elapsed)
	log.Info("audio generation successful", slog.String("file", name), slog.Float64("elapsed_ms", elapsed))
	return out, nil
}

func (s *Service) reject(ctx context.Context, err *Error) error {
	s.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(err.Kind))))
	trace.SpanFromContext(ctx).SetStatus(codes.Error, err.Message)
	s.log.Debug("clone request rejected", slog.String("reason", err.Message))
	return err
}

func (s *Service) fail(ctx context.Context, jobID string, start time.Time, err *Error) error {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Message)

	s.log.Error("clone failed", slog.String("job_id", jobID), slog.String("stage", err.Op), slogError(err))
	s.event(ctx, jobID, eventstore.TypeFailed, map[string]any{"stage": err.Op, "error": err.Error()})
	if pubErr := s.publish(protocol.SubjectCloneFailed, protocol.CloneFailed{
		JobID:     jobID,
		NodeID:    s.opts.NodeID,
		Stage:     err.Op,
		Error:     err.Message,
		Timestamp: s.clock().UTC(),
	}); pubErr != nil {
		s.log.Warn("failed to publish failure", slogError(pubErr))
	}
	s.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(err.Kind))))
	s.duration.Record(ctx, msSince(s.clock, start))
	return err
}

func (s *Service) event(ctx context.Context, jobID, typ string, payload map[string]any) {
	var data []byte
	if payload != nil {
		var err error
		if data, err = sonic.Marshal(payload); err != nil {
			s.log.Warn("failed to encode event payload", slogError(err))
		}
	}
	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	err := s.record(func(r Recorder) error {
		return r.AppendEvent(ctx, eventstore.Event{JobID: jobID, TraceID: traceID, Type: typ, Payload: data})
	})
	if err != nil {
		s.log.Warn("failed to record event", slog.String("type", typ), slogError(err))
	}
}

func (s *Service) record(fn func(Recorder) error) error {
	if s.opts.Recorder == nil {
		return nil
	}
	return fn(s.opts.Recorder)
}

func (s *Service) publish(subject string, v any) error {
	if s.opts.Publisher == nil {
		return nil
	}
	return s.opts.Publisher.Publish(subject, v)
}

var extPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,8}$`)

func (s *Service) saveUpload(in Input) (string, error) {
	ext := filepath.Ext(in.Filename)
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	f, err := os.CreateTemp(s.opts.TempDir, "loqa_clone_upload_*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, in.Reader); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// conversionDetail strips the sentinel prefix so the client message reads
// "Audio conversion failed. Error: <detail>".
func conversionDetail(err error) string {
	var convErr *convert.ConversionError
	if errors.As(err, &convErr) {
		return convErr.Detail()
	}
	return strings.TrimPrefix(err.Error(), convert.ErrConversion.Error()+": ")
}

func msSince(clock func() time.Time, start time.Time) float64 {
	return float64(clock().Sub(start).Microseconds()) / 1000
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
