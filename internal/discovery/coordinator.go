// Package discovery serializes BLE connection setup across adapters. Each
// adapter owns its own radio, but discovery is run one adapter at a time so
// that two radios never race through setup against the same robot.
package discovery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrStopped is returned for requests submitted after the coordinator stopped.
var ErrStopped = errors.New("discovery: coordinator stopped")

// Connector is an adapter's discovery entry point. Connect returns once the
// adapter holds a confirmed connection, or with the error that ended the
// attempt.
type Connector interface {
	Connect(ctx context.Context) error
}

type request struct {
	id     string
	conn   Connector
	result chan error
}

// Coordinator processes connection requests one at a time in submission
// order. mu guards queue, byID and stopped; Run is the only consumer.
type Coordinator struct {
	mu      sync.Mutex
	queue   []*request
	byID    map[string]*request
	stopped bool
	wake    chan struct{}
}

func New() *Coordinator {
	return &Coordinator{
		byID: make(map[string]*request),
		wake: make(chan struct{}, 1),
	}
}

// Submit queues a connection request for adapter id. The returned channel
// receives exactly one value: nil once c.Connect succeeded, or the error
// that ended it. Submitting an id that is already queued or running returns
// the existing channel.
func (c *Coordinator) Submit(id string, conn Connector) <-chan error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req, ok := c.byID[id]; ok {
		return req.result
	}
	req := &request{id: id, conn: conn, result: make(chan error, 1)}
	if c.stopped {
		req.result <- ErrStopped
		return req.result
	}
	c.byID[id] = req
	c.queue = append(c.queue, req)

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return req.result
}

// Pending returns the number of queued requests, not counting one in
// progress.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Run processes requests until ctx is cancelled. Requests still queued at
// that point resolve with ctx's error.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.stop(ctx.Err)

	for {
		req := c.next()
		if req == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.wake:
				continue
			}
		}

		if ctx.Err() != nil {
			c.finish(req, ctx.Err())
			return ctx.Err()
		}

		slog.Info("[DISCOVERY] start", "adapter", req.id, "pending", c.Pending())
		err := req.conn.Connect(ctx)
		if err != nil {
			slog.Warn("[DISCOVERY] connect failed", "adapter", req.id, "error", err)
		} else {
			slog.Info("[DISCOVERY] connected", "adapter", req.id)
		}
		c.finish(req, err)
	}
}

func (c *Coordinator) next() *request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	req := c.queue[0]
	c.queue = c.queue[1:]
	return req
}

func (c *Coordinator) finish(req *request, err error) {
	c.mu.Lock()
	delete(c.byID, req.id)
	c.mu.Unlock()
	req.result <- err
}

func (c *Coordinator) stop(cause func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	err := cause()
	if err == nil {
		err = ErrStopped
	}
	for _, req := range c.queue {
		delete(c.byID, req.id)
		req.result <- err
	}
	c.queue = nil
}
