package ws

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/spec-kit/netcafe-service/internal/realtime"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// socket is the part of *websocket.Conn the writer uses.
type socket interface {
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// conn adapts a websocket to realtime.Conn. Frames go through a bounded queue
// drained by a single writer; a full queue drops the frame.
type conn struct {
	id      string
	socket  socket
	send    chan realtime.Frame
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newConn(s socket, queueSize int) *conn {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &conn{
		id:      uuid.NewString(),
		socket:  s,
		send:    make(chan realtime.Frame, queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Send(frame realtime.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close asks the writer to flush, send a close frame and drop the socket.
func (c *conn) Close() {
	c.once.Do(func() { close(c.done) })
}

// wait blocks until the writer has exited.
func (c *conn) wait() {
	<-c.stopped
}

func (c *conn) writeLoop() {
	defer close(c.stopped)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				c.Close()
				_ = c.socket.Close()
				return
			}
		case <-ticker.C:
			if err := c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				_ = c.socket.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.socket.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = c.socket.Close()
			return
		}
	}
}

func (c *conn) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *conn) write(frame realtime.Frame) error {
	if err := c.socket.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.socket.WriteJSON(frame)
}
