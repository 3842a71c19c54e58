package cgi

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/brettbedarf/mimic/internal/metrics"
)

// ErrCaptureClosed is returned by the streams of a released [Capture]
var ErrCaptureClosed = errors.New("capture closed")

// Capture holds the input and output streams for exactly one execution of a
// hosted handler. Streams are scoped to the capture, never to the process, so
// concurrent captures cannot observe each other.
//
// Create with [Begin]; always release with [Capture.End].
type Capture struct {
	stdin  io.Reader
	out    bytes.Buffer
	closed bool
	mu     sync.Mutex // protects out and closed
}

// Begin acquires fresh streams for one execution. stdin may be nil.
func Begin(stdin io.Reader) *Capture {
	if stdin == nil {
		stdin = bytes.NewReader(nil)
	}
	metrics.ActiveCaptures.Inc()
	return &Capture{stdin: stdin}
}

// Stdin returns the captured input stream
func (c *Capture) Stdin() io.Reader {
	return captureReader{c}
}

// Stdout returns the captured output stream
func (c *Capture) Stdout() io.Writer {
	return c
}

// Write appends p to the captured output
func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrCaptureClosed
	}
	return c.out.Write(p)
}

// Bytes returns a copy of everything written so far
func (c *Capture) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.out.Bytes())
}

// Closed reports whether the capture has been released
func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// End releases the capture and returns the captured output. Later writes and
// reads fail with [ErrCaptureClosed]. Safe to call more than once, so it can
// be deferred unconditionally.
func (c *Capture) End() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		metrics.ActiveCaptures.Dec()
	}
	return bytes.Clone(c.out.Bytes())
}

type captureReader struct {
	c *Capture
}

func (r captureReader) Read(p []byte) (int, error) {
	if r.c.Closed() {
		return 0, ErrCaptureClosed
	}
	return r.c.stdin.Read(p)
}
