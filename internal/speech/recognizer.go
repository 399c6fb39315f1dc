package speech

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Segment is one recognition result. Interim segments are superseded by the
// next segment; final segments are permanent. A segment with Err set carries
// a capture failure instead of text.
type Segment struct {
	Text  string
	Final bool
	Err   error
}

// Stream is one running capture.
type Stream interface {
	// Segments delivers results until the capture ends, then is closed. A
	// close before Stop means the capture failed.
	Segments() <-chan Segment
	// Stop ends the capture. Segments already produced are still delivered
	// before the channel closes.
	Stop() error
}

// Recognizer is the speech capture facility.
type Recognizer interface {
	// Probe checks that capture is available on this host.
	Probe(ctx context.Context) error
	// Start begins a continuous capture.
	Start(ctx context.Context) (Stream, error)
}

// DefaultDrain is how long a stopped stream keeps reading late segments.
const DefaultDrain = 750 * time.Millisecond

// DaemonRecognizer talks to a local speech daemon over a Unix socket.
type DaemonRecognizer struct {
	SocketPath string
	Locale     string
	Drain      time.Duration
	Logger     *slog.Logger
}

var _ Recognizer = (*DaemonRecognizer)(nil)

func (r *DaemonRecognizer) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Probe sends a status command.
func (r *DaemonRecognizer) Probe(ctx context.Context) error {
	c, err := dial(ctx, r.SocketPath)
	if err != nil {
		return err
	}
	defer c.Close()
	if _, err := c.send(ctx, Command{Cmd: "status"}); err != nil {
		return fmt.Errorf("speech daemon status: %w", err)
	}
	return nil
}

// Start opens a control connection that issues start/stop and a second
// connection subscribed to recognition events.
func (r *DaemonRecognizer) Start(ctx context.Context) (Stream, error) {
	ctrl, err := dial(ctx, r.SocketPath)
	if err != nil {
		return nil, err
	}
	events, err := dial(ctx, r.SocketPath)
	if err != nil {
		_ = ctrl.Close()
		return nil, err
	}
	if _, err := events.send(ctx, Command{Cmd: "subscribe", Events: []string{EventPartial, EventSegment, EventError}}); err != nil {
		_ = ctrl.Close()
		_ = events.Close()
		return nil, fmt.Errorf("speech daemon subscribe: %w", err)
	}
	resp, err := ctrl.send(ctx, Command{Cmd: "start", Locale: r.Locale})
	if err != nil {
		_ = ctrl.Close()
		_ = events.Close()
		return nil, fmt.Errorf("speech daemon start: %w", err)
	}

	drain := r.Drain
	if drain <= 0 {
		drain = DefaultDrain
	}
	s := &daemonStream{
		ctrl:      ctrl,
		events:    events,
		sessionID: resp.SessionID,
		drain:     drain,
		logger:    r.logger(),
		ch:        make(chan Segment, 64),
	}
	go s.read()
	return s, nil
}

type daemonStream struct {
	ctrl      *conn
	events    *conn
	sessionID string
	drain     time.Duration
	logger    *slog.Logger
	ch        chan Segment
	stopOnce  sync.Once
	stopErr   error
	stopping  atomic.Bool
}

func (s *daemonStream) Segments() <-chan Segment { return s.ch }

func (s *daemonStream) read() {
	defer close(s.ch)
	defer s.events.Close()
	for {
		ev, err := s.events.readEvent()
		if err != nil {
			if !s.stopping.Load() {
				s.ch <- Segment{Err: fmt.Errorf("speech daemon: %w", err)}
				return
			}
			s.logger.Debug("speech: event stream drained", slog.String("session", s.sessionID))
			return
		}
		if s.sessionID != "" && ev.SessionID != "" && ev.SessionID != s.sessionID {
			continue
		}
		switch ev.Event {
		case EventPartial:
			s.ch <- Segment{Text: ev.Text}
		case EventSegment:
			s.ch <- Segment{Text: ev.Text, Final: true}
		case EventError:
			s.ch <- Segment{Err: fmt.Errorf("speech daemon: %s", ev.Message)}
		}
	}
}

func (s *daemonStream) Stop() error {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		if _, err := s.ctrl.send(context.Background(), Command{Cmd: "stop"}); err != nil {
			s.stopErr = fmt.Errorf("speech daemon stop: %w", err)
		}
		_ = s.ctrl.Close()
		s.events.drainUntil(time.Now().Add(s.drain))
	})
	return s.stopErr
}
