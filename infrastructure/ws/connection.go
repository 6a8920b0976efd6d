// Package ws adapts a gorilla websocket to the connection handle the runtime drives.
package ws

import (
	"collab-realtime/domain"
	"collab-realtime/errors"
	"context"
	stderrors "errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BufferSize    int
	WriteTimeout  time.Duration
	MaxFrameBytes int64
}

// Connection is one websocket peer. Reads happen in Run, writes in a dedicated
// pump fed by a bounded buffer. The buffer is never closed: done is the only stop signal.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	cfg    Config
	send   chan []byte
	done   chan struct{}
	state  atomic.Int32
	once   sync.Once
	pingID atomic.Uint64

	mu      sync.Mutex
	reason  error
	pending map[string]chan struct{}

	log *slog.Logger
}

func NewConnection(log *slog.Logger, conn *websocket.Conn, cfg Config) *Connection {
	id := uuid.New()
	c := &Connection{
		id:      id,
		conn:    conn,
		cfg:     cfg,
		send:    make(chan []byte, cfg.BufferSize),
		done:    make(chan struct{}),
		pending: make(map[string]chan struct{}),
		log:     log.With("conn_id", id, "remote", conn.RemoteAddr().String()),
	}
	c.state.Store(int32(domain.ConnOpen))
	return c
}

func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) State() domain.ConnState {
	return domain.ConnState(c.state.Load())
}

func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Run reads until the peer goes away or Close is called, handing each
// data frame to onFrame before reading the next one.
func (c *Connection) Run(ctx context.Context, onFrame func(frame []byte)) error {
	if c.cfg.MaxFrameBytes > 0 {
		c.conn.SetReadLimit(c.cfg.MaxFrameBytes)
	}
	c.conn.SetPongHandler(c.ack)

	var pumps sync.WaitGroup
	pumps.Add(2)
	go func() {
		defer pumps.Done()
		c.writePump()
	}()
	go func() {
		defer pumps.Done()
		select {
		case <-ctx.Done():
			c.Close(errors.ErrShuttingDown)
		case <-c.done:
		}
	}()

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			c.Close(readError(err))
			break
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		onFrame(data)
	}

	pumps.Wait()
	return c.Reason()
}

func readError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return errors.ErrConnectionClosed
	}
	return fmt.Errorf("%w: %v", errors.ErrConnectionClosed, err)
}

func (c *Connection) writePump() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close(fmt.Errorf("%w: write: %v", errors.ErrConnectionClosed, err))
				return
			}
		}
	}
}

// Push enqueues a frame without waiting for the peer. Delivery is at most once:
// nil means the frame was queued, not written. A frame queued right before Close
// is dropped with the rest of the buffer, and nothing reports it.
func (c *Connection) Push(ctx context.Context, frame []byte) error {
	if c.State() != domain.ConnOpen {
		return errors.ErrConnectionClosed
	}
	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errors.ErrSendBufferFull
	}
}

// Ping sends a websocket ping carrying a token and waits for the matching pong.
// Pongs are read by Run, so a peer that stops reading never acknowledges.
func (c *Connection) Ping(ctx context.Context) error {
	if c.State() != domain.ConnOpen {
		return errors.ErrConnectionClosed
	}
	token := strconv.FormatUint(c.pingID.Add(1), 10)
	acked := make(chan struct{})

	c.mu.Lock()
	c.pending[token] = acked
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, token)
		c.mu.Unlock()
	}()

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.WriteControl(websocket.PingMessage, []byte(token), deadline); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	select {
	case <-acked:
		return nil
	case <-c.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) ack(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if acked, ok := c.pending[token]; ok {
		close(acked)
		delete(c.pending, token)
	}
	return nil
}

// Close is idempotent. The first reason wins and is what Run returns.
func (c *Connection) Close(reason error) {
	c.once.Do(func() {
		c.state.Store(int32(domain.ConnClosing))
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.done)

		code, text := closeFrame(reason)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, text),
			time.Now().Add(c.cfg.WriteTimeout))
		_ = c.conn.Close()
		c.state.Store(int32(domain.ConnClosed))
		c.log.Debug("connection closed", "reason", reason)
	})
}

func (c *Connection) Reason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func closeFrame(reason error) (int, string) {
	switch {
	case reason == nil, stderrors.Is(reason, errors.ErrConnectionClosed):
		return websocket.CloseNormalClosure, ""
	case stderrors.Is(reason, errors.ErrSuperseded):
		return websocket.ClosePolicyViolation, "superseded by a newer connection"
	case stderrors.Is(reason, errors.ErrKeepaliveTimeout):
		return websocket.CloseGoingAway, "keepalive timeout"
	case stderrors.Is(reason, errors.ErrShuttingDown):
		return websocket.CloseGoingAway, "server shutting down"
	default:
		return websocket.CloseInternalServerErr, ""
	}
}
