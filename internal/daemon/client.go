package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// maxLine bounds a single NDJSON message from the daemon.
const maxLine = 1 << 20

// ErrClosed is returned when the daemon hangs up mid-conversation.
var ErrClosed = errors.New("daemon closed the connection")

// SocketPath returns the default capture daemon socket path.
func SocketPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "casebook", "capture.sock")
}

// Client is one connection to the capture daemon. Commands on a client are
// serialized; a subscribed client should only be used for ReadEvent.
type Client struct {
	conn  net.Conn
	lines *bufio.Scanner
	mu    sync.Mutex
}

// Connect dials the daemon socket.
func Connect(socketPath string) (*Client, error) {
	return ConnectContext(context.Background(), socketPath)
}

// ConnectContext dials the daemon socket, giving up when ctx is done.
func ConnectContext(ctx context.Context, socketPath string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to capture daemon at %s: %w", socketPath, err)
	}
	lines := bufio.NewScanner(conn)
	lines.Buffer(make([]byte, 64*1024), maxLine)
	return &Client{conn: conn, lines: lines}, nil
}

// Close hangs up.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// SendCommand writes cmd and waits for the daemon's reply.
func (c *Client) SendCommand(cmd Command) (Response, error) {
	return c.SendCommandContext(context.Background(), cmd)
}

// SendCommandContext is SendCommand bounded by ctx's deadline and
// cancellation.
func (c *Client) SendCommandContext(ctx context.Context, cmd Command) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	}
	// Cancellation unblocks a pending read by expiring the deadline.
	stop := context.AfterFunc(ctx, func() { c.conn.SetDeadline(time.Unix(1, 0)) })
	defer func() {
		stop()
		c.conn.SetDeadline(time.Time{})
	}()

	line, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("encode %s command: %w", cmd.Cmd, err)
	}
	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		return Response{}, fmt.Errorf("send %s command: %w", cmd.Cmd, err)
	}

	var resp Response
	if err := c.readLine(&resp); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return Response{}, fmt.Errorf("%s response: %w", cmd.Cmd, err)
	}
	return resp, nil
}

// ReadEvent blocks for the next event on a subscribed connection.
func (c *Client) ReadEvent() (Event, error) {
	var ev Event
	if err := c.readLine(&ev); err != nil {
		return Event{}, fmt.Errorf("event: %w", err)
	}
	return ev, nil
}

// readLine decodes the next NDJSON line into v.
func (c *Client) readLine(v any) error {
	if !c.lines.Scan() {
		if err := c.lines.Err(); err != nil {
			return err
		}
		return ErrClosed
	}
	if err := json.Unmarshal(c.lines.Bytes(), v); err != nil {
		return fmt.Errorf("decode %q: %w", truncateLine(c.lines.Bytes()), err)
	}
	return nil
}

func truncateLine(b []byte) string {
	if len(b) > 80 {
		return string(b[:80]) + "..."
	}
	return string(b)
}
