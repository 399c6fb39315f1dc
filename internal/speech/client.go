package speech

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// CommandTimeout bounds one command round-trip when ctx has no earlier
// deadline.
const CommandTimeout = 5 * time.Second

// conn is one NDJSON connection to the speech daemon.
type conn struct {
	nc      net.Conn
	scanner *bufio.Scanner
	mu      sync.Mutex
}

func dial(ctx context.Context, socketPath string) (*conn, error) {
	d := net.Dialer{Timeout: CommandTimeout}
	nc, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to speech daemon: %w", err)
	}
	scanner := bufio.NewScanner(nc)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &conn{nc: nc, scanner: scanner}, nil
}

func (c *conn) Close() error {
	return c.nc.Close()
}

// send writes cmd and reads one response line within the command deadline.
// A response with ok=false is returned as an error.
func (c *conn) send(ctx context.Context, cmd Command) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(CommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.nc.SetDeadline(deadline); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	defer func() { _ = c.nc.SetDeadline(time.Time{}) }()

	data, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("marshal command: %w", err)
	}
	data = append(data, '\n')
	if _, err := c.nc.Write(data); err != nil {
		return Response{}, fmt.Errorf("write command: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Response{}, fmt.Errorf("read response: %w", err)
		}
		return Response{}, errors.New("connection closed")
	}
	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if !resp.OK {
		msg := resp.Error
		if msg == "" {
			msg = "command rejected"
		}
		return resp, fmt.Errorf("%s: %s", cmd.Cmd, msg)
	}
	return resp, nil
}

// readEvent blocks until the next event line arrives.
func (c *conn) readEvent() (Event, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Event{}, fmt.Errorf("read event: %w", err)
		}
		return Event{}, errors.New("connection closed")
	}
	var ev Event
	if err := json.Unmarshal(c.scanner.Bytes(), &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return ev, nil
}

// drainUntil bounds how long pending events are still read.
func (c *conn) drainUntil(t time.Time) {
	_ = c.nc.SetReadDeadline(t)
}
