package core

import (
	"errors"
	"fmt"
)

// Request failure taxonomy. Every failure surfaced by the orchestrator wraps
// exactly one of these sentinels so transport layers can map them to status
// codes without string matching.
var (
	// ErrMalformedMarkup indicates invalid in-band markup in the request
	// text. Not retryable.
	ErrMalformedMarkup = errors.New("malformed markup")
	// ErrInputTooLong indicates the request text exceeds the configured
	// maximum length. Not retryable.
	ErrInputTooLong = errors.New("input text too long")
	// ErrModelNotFound indicates the (language, voice) key is absent from
	// the model catalog. Not retryable.
	ErrModelNotFound = errors.New("model not found")
	// ErrModelLoad indicates a catalog-known model failed to fetch or load.
	// Safe to retry after backoff; never cached as a failure state.
	ErrModelLoad = errors.New("model load failed")
	// ErrInference indicates a chunk-level inference call failed. The whole
	// request fails; no partial audio is returned.
	ErrInference = errors.New("inference failed")
)

// MarkupError reports the offending token and its byte offset in the request
// text. It wraps ErrMalformedMarkup.
type MarkupError struct {
	Token  string
	Offset int
	Reason string
}

func (e *MarkupError) Error() string {
	return fmt.Sprintf("malformed markup at byte %d: %s: %q", e.Offset, e.Reason, e.Token)
}

func (e *MarkupError) Unwrap() error {
	return ErrMalformedMarkup
}
