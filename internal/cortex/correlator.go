package cortex

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// PendingCall is an in-flight request waiting for its reply. It is resolved
// at most once.
type PendingCall struct {
	ID      int
	Request Request
	started time.Time

	done   chan struct{}
	result json.RawMessage
	err    error
}

// Wait blocks until the reply is delivered or ctx ends. When ctx ends first
// the call is not removed from the correlator; callers go through
// Correlator.Await, which does that.
func (p *PendingCall) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the call has been resolved.
func (p *PendingCall) Done() <-chan struct{} { return p.done }

func (p *PendingCall) resolve(result json.RawMessage, err error) {
	p.result = result
	p.err = err
	close(p.done)
}

// Correlator matches replies to the calls waiting for them.
type Correlator struct {
	mu      sync.Mutex
	pending map[int]*PendingCall
	closed  error
}

// NewCorrelator constructs an empty Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{pending: map[int]*PendingCall{}}
}

// Register tracks req until its reply arrives. It fails with ErrDuplicateID
// when req.ID is already in flight and with the close error after FailAll.
func (c *Correlator) Register(req Request) (*PendingCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed != nil {
		return nil, c.closed
	}
	if _, ok := c.pending[req.ID]; ok {
		return nil, ErrDuplicateID
	}
	p := &PendingCall{ID: req.ID, Request: req, started: time.Now(), done: make(chan struct{})}
	c.pending[req.ID] = p
	return p, nil
}

// Deliver resolves the call waiting on resp.ID and stops tracking it. It
// reports false when nothing was waiting.
func (c *Correlator) Deliver(resp Response) bool {
	c.mu.Lock()
	p, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	if resp.Error != nil {
		p.resolve(nil, resp.Error)
	} else {
		p.resolve(resp.Result, nil)
	}
	return true
}

// Abandon stops tracking p if it is still pending. It reports whether p was
// removed; false means a reply won the race and p is already resolved.
func (c *Correlator) Abandon(p *PendingCall, err error) bool {
	c.mu.Lock()
	cur, ok := c.pending[p.ID]
	if ok && cur == p {
		delete(c.pending, p.ID)
	}
	c.mu.Unlock()
	if ok && cur == p {
		p.resolve(nil, err)
		return true
	}
	return false
}

// Await waits for p. When ctx ends first, p is abandoned; a reply that
// arrived in the meantime still wins.
func (c *Correlator) Await(ctx context.Context, p *PendingCall) (json.RawMessage, error) {
	res, err := p.Wait(ctx)
	if err == nil || ctx.Err() == nil {
		return res, err
	}
	cause := ctx.Err()
	if errors.Is(cause, context.DeadlineExceeded) {
		cause = &TimeoutError{Method: p.Request.Method, ID: p.ID, Elapsed: time.Since(p.started)}
	}
	if c.Abandon(p, cause) {
		return nil, cause
	}
	<-p.done
	return p.result, p.err
}

// FailAll resolves every pending call with err and rejects later
// registrations with it.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	c.closed = err
	pending := c.pending
	c.pending = map[int]*PendingCall{}
	c.mu.Unlock()
	for _, p := range pending {
		p.resolve(nil, err)
	}
}

// Len returns the number of calls in flight.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
