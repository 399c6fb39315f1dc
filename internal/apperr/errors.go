// Package apperr defines the sentinel errors shared across Voxnote packages.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")

	// Document store failures. In-memory state is left at its pre-operation value.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStoreWrite       = errors.New("store write failed")

	// Speech capture.
	ErrCaptureUnsupported = errors.New("speech capture unsupported")
	ErrEmptyTranscript    = errors.New("empty transcript")

	// Text generation.
	ErrGenerationUnavailable = errors.New("text generation unavailable")
	ErrGenerationFailed      = errors.New("text generation failed")

	ErrNoSelection     = errors.New("no note selected")
	ErrStaleResult     = errors.New("stale result discarded")
	ErrUnauthenticated = errors.New("unauthenticated")
)
