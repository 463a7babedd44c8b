package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
)

// MaxMessageSize bounds a single inbound record.
const MaxMessageSize = 64 * 1024

// Conn is a bidirectional stream of discrete records. Writes may be called
// concurrently with reads; Close unblocks a pending read.
type Conn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, p []byte) error
	Close() error
	RemoteAddr() string
}

// ErrMessageTooLarge is returned by ReadMessage for a record longer than
// MaxMessageSize. The record is discarded and the connection stays usable.
var ErrMessageTooLarge = errors.New("message too large")

// lineConn frames records as newline-terminated lines on a TCP stream.
type lineConn struct {
	conn net.Conn
	r    *bufio.Reader

	mu sync.Mutex
	w  *bufio.Writer

	closeOnce sync.Once
	closeErr  error
}

func NewLineConn(c net.Conn) Conn {
	return &lineConn{conn: c, r: bufio.NewReaderSize(c, 4096), w: bufio.NewWriter(c)}
}

// ReadMessage returns the next non-empty line. ctx is only checked before
// reading; Close is what interrupts a blocked read.
func (c *lineConn) ReadMessage(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

// readLine reads up to the next '\n'. An overlong line is consumed in full
// without being buffered.
func (c *lineConn) readLine() ([]byte, error) {
	var line []byte
	tooLarge := false
	for {
		frag, err := c.r.ReadSlice('\n')
		if !tooLarge {
			line = append(line, frag...)
			// +2 leaves room for the "\r\n" terminator.
			if len(line) > MaxMessageSize+2 {
				tooLarge, line = true, nil
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && !tooLarge && len(line) > 0:
			// Final record without a terminator.
		default:
			return nil, err
		}

		if tooLarge {
			return nil, ErrMessageTooLarge
		}
		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) > MaxMessageSize {
			return nil, ErrMessageTooLarge
		}
		return line, nil
	}
}

func (c *lineConn) WriteMessage(ctx context.Context, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(dl); err != nil {
			return err
		}
	}
	if _, err := c.w.Write(p); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *lineConn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}

func (c *lineConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
