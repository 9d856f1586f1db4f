package db

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vidshare/backend/internal/logging"
)

// ErrClosed is returned by Acquire after the connector has been closed.
var ErrClosed = errors.New("db: connector closed")

// DialFunc establishes a new connection handle.
type DialFunc[T any] func(ctx context.Context) (T, error)

// CloseFunc releases a connection handle produced by a DialFunc.
type CloseFunc[T any] func(ctx context.Context, conn T) error

// Connector lazily dials a single connection handle and memoizes it for the
// lifetime of the process. Concurrent first callers share one dial attempt; a
// failed attempt is not cached, so the next call dials again.
type Connector[T any] struct {
	dial  DialFunc[T]
	close CloseFunc[T]

	group singleflight.Group

	mu     sync.RWMutex
	conn   T
	ready  bool
	closed bool
}

// NewConnector returns a Connector using dial to establish the handle. closeFn may be nil.
func NewConnector[T any](dial DialFunc[T], closeFn CloseFunc[T]) *Connector[T] {
	if dial == nil {
		panic("db: dial func must not be nil")
	}
	return &Connector[T]{dial: dial, close: closeFn}
}

// Acquire returns the cached handle, dialing it first if necessary.
func (c *Connector[T]) Acquire(ctx context.Context) (T, error) {
	if conn, ok, err := c.cached(); ok || err != nil {
		return conn, err
	}

	// The dial outlives any single caller so that one cancelled request does not
	// fail the others waiting on the same attempt.
	dialCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("connect", func() (any, error) {
		if conn, ok, err := c.cached(); ok || err != nil {
			return conn, err
		}

		spanCtx, span := logging.StartSpan(dialCtx, "db.connect")
		conn, err := c.dial(spanCtx)
		span.End(err)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			if c.close != nil {
				_ = c.close(dialCtx, conn)
			}
			return nil, ErrClosed
		}
		c.conn = conn
		c.ready = true
		return conn, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Ready reports whether a handle has been established.
func (c *Connector[T]) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Close releases the cached handle, if any. Subsequent Acquire calls fail with ErrClosed.
func (c *Connector[T]) Close(ctx context.Context) error {
	c.mu.Lock()
	conn, ready := c.conn, c.ready
	var zero T
	c.conn = zero
	c.ready = false
	c.closed = true
	c.mu.Unlock()

	if !ready || c.close == nil {
		return nil
	}
	return c.close(ctx, conn)
}

func (c *Connector[T]) cached() (T, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		var zero T
		return zero, false, ErrClosed
	}
	return c.conn, c.ready, nil
}
