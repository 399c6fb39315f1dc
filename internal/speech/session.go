package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/voxnote/internal/apperr"
	"github.com/starford/voxnote/internal/models"
)

// State is the capture lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StatePending   State = "pending"
)

// Snapshot is the observable session state.
type Snapshot struct {
	State      State  `json:"state"`
	Transcript string `json:"transcript"`
	Interim    string `json:"interim,omitempty"`
	// Error is the last capture failure of the current capture.
	Error string `json:"error,omitempty"`
}

// Titler produces a title for transcript text.
type Titler interface {
	Title(ctx context.Context, text string) (string, error)
}

// NoteCreator persists a confirmed voice note.
type NoteCreator func(ctx context.Context, title, content string) (models.Note, error)

// Session turns a capture into a note: idle -> listening -> pending -> idle.
type Session struct {
	rec    Recognizer
	titler Titler
	create NoteCreator
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	transcript Transcript
	stream     Stream
	pumped     chan struct{}
	failure    string
	starting   bool
	closed     bool

	obsMu     sync.Mutex
	observers map[int]func(Snapshot)
	nextObs   int
}

// NewSession probes rec once. An unavailable facility is reported here as
// apperr.ErrCaptureUnsupported and never again per call.
func NewSession(ctx context.Context, rec Recognizer, titler Titler, create NoteCreator, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		return nil, fmt.Errorf("speech: %w: no recognizer configured", apperr.ErrCaptureUnsupported)
	}
	if err := rec.Probe(ctx); err != nil {
		return nil, fmt.Errorf("speech: %w: %w", apperr.ErrCaptureUnsupported, err)
	}
	return &Session{
		rec:       rec,
		titler:    titler,
		create:    create,
		logger:    logger,
		state:     StateIdle,
		observers: make(map[int]func(Snapshot)),
	}, nil
}

// Subscribe registers fn for every state or transcript change.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Session) notify(snap Snapshot) {
	s.obsMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Snapshot returns the current state and live transcript.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:      s.state,
		Transcript: s.transcript.Text(),
		Interim:    s.transcript.Interim(),
		Error:      s.failure,
	}
}

// Start begins capturing. Only valid while idle. The recognizer is started
// without holding the session lock; a concurrent Start is rejected.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return fmt.Errorf("speech: start after close: %w", apperr.ErrInvalidState)
	case s.starting:
		s.mu.Unlock()
		return fmt.Errorf("speech: start already in progress: %w", apperr.ErrInvalidState)
	case s.state != StateIdle:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("speech: start while %s: %w", state, apperr.ErrInvalidState)
	}
	s.starting = true
	s.mu.Unlock()

	stream, err := s.rec.Start(ctx)

	s.mu.Lock()
	s.starting = false
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("speech: start capture: %w", err)
	}
	if s.closed {
		s.mu.Unlock()
		_ = stream.Stop()
		return fmt.Errorf("speech: closed while starting: %w", apperr.ErrInvalidState)
	}
	s.transcript.Reset()
	s.failure = ""
	s.state = StateListening
	s.stream = stream
	s.pumped = make(chan struct{})
	go s.pump(stream, s.pumped)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("speech: listening")
	s.notify(snap)
	return nil
}

// pump posts segments into the transcript until the stream closes.
// Segments of a stream that was cancelled are dropped. Each failure is
// recorded in the snapshot and notified once; a stream that closes while
// still listening is a failure too. The session stays listening with what
// was captured so far, so Confirm and Cancel still apply.
func (s *Session) pump(stream Stream, done chan struct{}) {
	defer close(done)
	failed := false
	for seg := range stream.Segments() {
		s.mu.Lock()
		if s.stream != stream {
			s.mu.Unlock()
			continue
		}
		if seg.Err != nil {
			failed = true
			s.failure = seg.Err.Error()
		} else {
			s.transcript.Apply(seg)
		}
		snap := s.snapshotLocked()
		s.mu.Unlock()

		if seg.Err != nil {
			s.logger.Warn("speech: capture failed", slog.String("error", seg.Err.Error()))
		}
		s.notify(snap)
	}

	s.mu.Lock()
	if failed || s.stream != stream || s.state != StateListening {
		s.mu.Unlock()
		return
	}
	s.failure = ErrCaptureEnded.Error()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Warn("speech: capture ended unexpectedly")
	s.notify(snap)
}

// ErrCaptureEnded is reported when a capture stops without Stop.
var ErrCaptureEnded = errors.New("speech capture ended unexpectedly")

// Cancel stops capturing and discards the transcript. Only valid while
// listening.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.state != StateListening {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("speech: cancel while %s: %w", state, apperr.ErrInvalidState)
	}
	stream := s.stream
	s.stream = nil
	s.transcript.Reset()
	s.failure = ""
	s.state = StateIdle
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := stream.Stop(); err != nil {
		s.logger.Warn("speech: stop on cancel", slog.String("error", err.Error()))
	}
	s.notify(snap)
	return nil
}

// Confirm stops capturing and turns the transcript into a note. A blank
// transcript returns apperr.ErrEmptyTranscript. A failed title falls back
// to models.UntitledTitle so the transcript is never lost to it. The
// session is idle again when Confirm returns.
func (s *Session) Confirm(ctx context.Context) (models.Note, error) {
	s.mu.Lock()
	if s.state != StateListening {
		state := s.state
		s.mu.Unlock()
		return models.Note{}, fmt.Errorf("speech: confirm while %s: %w", state, apperr.ErrInvalidState)
	}
	s.state = StatePending
	stream, pumped := s.stream, s.pumped
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	if err := stream.Stop(); err != nil {
		s.logger.Warn("speech: stop on confirm", slog.String("error", err.Error()))
	}
	select {
	case <-pumped:
	case <-ctx.Done():
	}

	s.mu.Lock()
	s.stream = nil
	text := strings.TrimSpace(s.transcript.Text())
	s.mu.Unlock()

	defer s.finish()

	if text == "" {
		return models.Note{}, fmt.Errorf("speech: %w", apperr.ErrEmptyTranscript)
	}

	title := models.UntitledTitle
	if s.titler != nil {
		t, err := s.titler.Title(ctx, text)
		if err != nil {
			s.logger.Warn("speech: title generation failed, using fallback", slog.String("error", err.Error()))
		} else {
			title = t
		}
	}

	n, err := s.create(ctx, title, text)
	if err != nil {
		return models.Note{}, fmt.Errorf("speech: create voice note: %w", err)
	}
	s.logger.Info("speech: voice note created", slog.String("id", n.ID))
	return n, nil
}

// finish returns to idle and consumes the transcript.
func (s *Session) finish() {
	s.mu.Lock()
	s.transcript.Reset()
	s.failure = ""
	s.state = StateIdle
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Close cancels a running capture and rejects later starts.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	listening := s.state == StateListening
	s.mu.Unlock()
	if listening {
		_ = s.Cancel()
	}
}
