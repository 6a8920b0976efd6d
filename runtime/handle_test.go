package runtime

import (
	"collab-realtime/domain"
	"collab-realtime/errors"
	"context"
	"github.com/google/uuid"
	"sync"
)

// fakeConn is an in-memory connection: inbound frames are fed through in,
// pushed frames are kept in order.
type fakeConn struct {
	id      uuid.UUID
	in      chan []byte
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	pushed  [][]byte
	pushErr error
	pingErr error
	pings   int
	reason  error
	state   domain.ConnState
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		id:   uuid.New(),
		in:   make(chan []byte, 16),
		done: make(chan struct{}),
	}
}

func (c *fakeConn) ID() uuid.UUID { return c.id }

func (c *fakeConn) Push(_ context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.ConnOpen {
		return errors.ErrConnectionClosed
	}
	if c.pushErr != nil {
		return c.pushErr
	}
	c.pushed = append(c.pushed, frame)
	return nil
}

func (c *fakeConn) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *fakeConn) Close(reason error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.state = domain.ConnClosed
		c.reason = reason
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *fakeConn) State() domain.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Run(ctx context.Context, onFrame func([]byte)) error {
	for {
		select {
		case <-ctx.Done():
			c.Close(ctx.Err())
		case <-c.done:
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.reason
		case frame := <-c.in:
			onFrame(frame)
		}
	}
}

func (c *fakeConn) Pushed() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.pushed...)
}

func (c *fakeConn) CloseReason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *fakeConn) failPushes(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushErr = err
}

func (c *fakeConn) failPings(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingErr = err
}
