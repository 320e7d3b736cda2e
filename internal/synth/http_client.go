// Package synth implements the chunk-level inference capability over the
// HTTP API of the model runtime service that hosts the acoustic models and
// vocoders.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hawkaii/fastspeech/internal/audio"
	"github.com/hawkaii/fastspeech/internal/core"
	"github.com/hawkaii/fastspeech/internal/text"
)

// API endpoints and paths.
const (
	apiInfer  = "/v1/infer"
	apiHealth = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

var (
	// ErrEmptyAudio indicates the runtime returned a success status with no
	// audio payload.
	ErrEmptyAudio = errors.New("received empty audio data")
	// ErrServiceUnhealthy indicates the runtime health endpoint reported a
	// non-OK status.
	ErrServiceUnhealthy = errors.New("inference service unhealthy")
)

// HTTPClient calls the model runtime over HTTP. It implements
// core.Synthesizer and is safe for concurrent use.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	norm       *text.Normalizer
}

// inferRequest is the JSON payload of one chunk inference call.
type inferRequest struct {
	// Text is the chunk text, already whitespace-normalized.
	Text string `json:"text"`

	// Language and Voice select the model pair the runtime must use. The
	// pair is guaranteed materialized on shared storage before this call.
	Language string `json:"language"`
	Voice    string `json:"voice"`

	// Alpha is the duration scale factor for this chunk.
	Alpha float64 `json:"alpha"`

	// Profile names the normalization scheme the runtime must apply.
	Profile string `json:"profile"`
}

// errorResponse is the runtime's structured error body.
type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPClient creates a client for the model runtime at baseURL, which
// includes protocol and port (e.g. "http://localhost:8000"). The timeout
// applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		norm: text.NewNormalizer(),
	}
}

// Infer synthesizes one chunk and returns its waveform. Failures wrap
// core.ErrInference except for context cancellation, which passes through.
func (c *HTTPClient) Infer(
	ctx context.Context,
	chunkText string,
	handle *core.ModelHandle,
	alpha float64,
) (core.Fragment, error) {
	payload := inferRequest{
		Text:     c.norm.Normalize(chunkText),
		Language: handle.Key.Language,
		Voice:    string(handle.Key.Voice),
		Alpha:    alpha,
		Profile:  string(handle.Profile),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return core.Fragment{}, fmt.Errorf("%w: marshaling request: %w", core.ErrInference, err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiInfer,
		bytes.NewReader(body),
	)
	if err != nil {
		return core.Fragment{}, fmt.Errorf("%w: creating request: %w", core.ErrInference, err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAccept, contentTypeWAV)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return core.Fragment{}, fmt.Errorf("inference call: %w", ctx.Err())
		}

		return core.Fragment{}, fmt.Errorf("%w: calling runtime: %w", core.ErrInference, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Fragment{}, fmt.Errorf("%w: reading response: %w", core.ErrInference, err)
	}

	if resp.StatusCode != http.StatusOK {
		return core.Fragment{}, c.serviceError(resp.StatusCode, data)
	}

	if len(data) == 0 {
		return core.Fragment{}, fmt.Errorf("%w: %w", core.ErrInference, ErrEmptyAudio)
	}

	waveform, err := audio.DecodeWAV(data)
	if err != nil {
		return core.Fragment{}, fmt.Errorf("%w: decoding audio: %w", core.ErrInference, err)
	}

	return core.Fragment{
		Samples:    waveform.Samples,
		SampleRate: waveform.SampleRate,
	}, nil
}

// serviceError maps a non-OK runtime response to the failure taxonomy,
// preferring the structured error body when one is present.
func (c *HTTPClient) serviceError(status int, body []byte) error {
	var parsed errorResponse

	err := json.Unmarshal(body, &parsed)
	if err == nil && parsed.Detail != "" {
		return fmt.Errorf(
			"%w: runtime returned %d: %s (code %q)",
			core.ErrInference, status, parsed.Detail, parsed.ErrorCode,
		)
	}

	return fmt.Errorf(
		"%w: runtime returned %d: %s",
		core.ErrInference, status, string(body),
	)
}

// HealthCheck verifies the runtime is reachable and reports healthy.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+apiHealth,
		nil,
	)
	if err != nil {
		return fmt.Errorf("creating health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %s", ErrServiceUnhealthy, resp.Status)
	}

	return nil
}
