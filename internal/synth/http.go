package synth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loqalabs/loqa-clone/internal/wavfile"
)

// httpCloner calls a model-serving process that keeps the pretrained model
// resident and answers multipart clone requests with WAV bytes.
type httpCloner struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewHTTPCloner(endpoint, model string, client *http.Client) Cloner {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpCloner{endpoint: strings.TrimRight(endpoint, "/"), model: model, client: client}
}

func (h *httpCloner) Name() string { return "http" }

func (h *httpCloner) Clone(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}

	body, contentType, err := h.encode(req)
	if err != nil {
		return Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/clone", body)
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "audio/wav")
	if req.JobID != "" {
		httpReq.Header.Set("X-Job-Id", req.JobID)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("model server returned status %s: %s", resp.Status, strings.TrimSpace(string(excerpt)))
	}

	out, err := os.Create(req.OutputPath)
	if err != nil {
		return Result{}, err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return Result{}, fmt.Errorf("write synthesized audio: %w", err)
	}
	if err := out.Close(); err != nil {
		return Result{}, err
	}

	result := Result{OutputPath: req.OutputPath}
	if format, err := wavfile.Inspect(req.OutputPath); err == nil {
		result.SampleRate = format.SampleRate
		result.Duration = format.Duration
	}
	return result, nil
}

func (h *httpCloner) encode(req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"text":     req.Text,
		"language": req.Language,
	}
	if h.model != "" {
		fields["model"] = h.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	speaker, err := os.Open(req.SpeakerWAV)
	if err != nil {
		return nil, "", fmt.Errorf("open speaker reference: %w", err)
	}
	defer speaker.Close()
	part, err := mw.CreateFormFile("speaker_wav", filepath.Base(req.SpeakerWAV))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, speaker); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// Ping checks the model server health endpoint.
func (h *httpCloner) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("model server health returned status %s", resp.Status)
	}
	return nil
}
