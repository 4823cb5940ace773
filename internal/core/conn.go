package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ConnState is the lifecycle state of a connection handle.
type ConnState int32

const (
	// StateUnregistered: not (or no longer) reachable by dispatch.
	StateUnregistered ConnState = iota
	// StateConnected: registered and accepting pushes.
	StateConnected
	// StateClosing: shutting down; pushes are refused.
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Transport is the socket underneath a Conn.
// Write and Ping must return once ctx is done; Close may be called concurrently with either.
type Transport interface {
	Write(ctx context.Context, payload []byte) error
	Ping(ctx context.Context) error
	Close(reason string) error
}

// ConnOptions tunes the outbound side of a connection.
type ConnOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	return o
}

// Conn is a Handle backed by a Transport. Pushes go through a bounded FIFO
// queue drained by a single writer goroutine, so writes to one socket keep the
// order in which Send was called.
type Conn struct {
	id        string
	userID    int64
	transport Transport
	opts      ConnOptions

	queue    chan []byte
	ctx      context.Context
	cancel   context.CancelFunc
	finished chan struct{}

	state     atomic.Int32
	closeOnce sync.Once
	reason    string
	onClose   func(*Conn)
}

func newConn(id string, userID int64, t Transport, opts ConnOptions, onClose func(*Conn)) *Conn {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		id:        id,
		userID:    userID,
		transport: t,
		opts:      opts,
		queue:     make(chan []byte, opts.SendBuffer),
		ctx:       ctx,
		cancel:    cancel,
		finished:  make(chan struct{}),
		onClose:   onClose,
	}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// UserID returns the user the connection is bound to.
func (c *Conn) UserID() int64 { return c.userID }

// State returns the current lifecycle state.
func (c *Conn) State() ConnState { return ConnState(c.state.Load()) }

// Done is closed when the connection leaves Connected.
func (c *Conn) Done() <-chan struct{} { return c.ctx.Done() }

// Finished is closed once the writer goroutine has released the transport.
func (c *Conn) Finished() <-chan struct{} { return c.finished }

// CloseReason reports why the connection closed. Valid after Done.
func (c *Conn) CloseReason() string {
	select {
	case <-c.ctx.Done():
		return c.reason
	default:
		return ""
	}
}

// Send queues payload without blocking.
func (c *Conn) Send(payload []byte) error {
	if c.ctx.Err() != nil {
		return ErrHandleClosed
	}
	select {
	case c.queue <- payload:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close transitions Connected -> Closing -> Unregistered. The transport itself
// is closed by the writer goroutine so callers never wait on a close handshake.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		c.reason = reason
		c.cancel()
		if c.onClose != nil {
			c.onClose(c)
		}
		c.state.Store(int32(StateUnregistered))
	})
}

// run drains the queue until the connection closes.
func (c *Conn) run() {
	defer close(c.finished)

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		if c.ctx.Err() != nil {
			_ = c.transport.Close(c.reason)
			return
		}

		select {
		case <-c.ctx.Done():
		case payload := <-c.queue:
			if c.ctx.Err() != nil {
				continue
			}
			if err := c.write(payload); err != nil {
				c.Close(ReasonWriteFailed)
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.Close(ReasonPingFailed)
			}
		}
	}
}

func (c *Conn) write(payload []byte) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.WriteTimeout)
	defer cancel()
	return c.transport.Write(ctx, payload)
}

func (c *Conn) ping() error {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.WriteTimeout)
	defer cancel()
	return c.transport.Ping(ctx)
}
