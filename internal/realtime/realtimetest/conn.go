// Package realtimetest provides an in-memory realtime.Conn for tests.
package realtimetest

import (
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/netcafe-service/internal/realtime"
)

// Conn records every frame it is sent.
type Conn struct {
	id string

	mu     sync.Mutex
	frames []realtime.Frame
	closed bool
	full   bool
	onClose func()
}

// NewConn returns a connection with a random id.
func NewConn() *Conn {
	return &Conn{id: uuid.NewString()}
}

func (c *Conn) ID() string { return c.id }

// Send records frame unless the connection is closed or marked full.
func (c *Conn) Send(frame realtime.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.frames = append(c.frames, frame)
	return true
}

// Close marks the connection closed and runs the OnClose hook once.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	hook := c.onClose
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// OnClose registers a hook run the first time Close is called.
func (c *Conn) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

// SetFull makes subsequent sends fail, simulating a saturated send queue.
func (c *Conn) SetFull(full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.full = full
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Frames returns a copy of the recorded frames.
func (c *Conn) Frames() []realtime.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]realtime.Frame(nil), c.frames...)
}

// Events returns the recorded frames with the given name.
func (c *Conn) Events(name realtime.EventName) []realtime.Frame {
	var out []realtime.Frame
	for _, f := range c.Frames() {
		if f.Event == name {
			out = append(out, f)
		}
	}
	return out
}

// Last returns the newest frame with the given name.
func (c *Conn) Last(name realtime.EventName) (realtime.Frame, bool) {
	frames := c.Events(name)
	if len(frames) == 0 {
		return realtime.Frame{}, false
	}
	return frames[len(frames)-1], true
}
