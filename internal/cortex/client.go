package cortex

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gaspardpetit/sfsb/internal/logx"
	"github.com/gaspardpetit/sfsb/internal/metrics"
)

// DefaultCallTimeout bounds a call when Options.CallTimeout is zero.
const DefaultCallTimeout = 30 * time.Second

// Credentials identify the application to the service.
type Credentials struct {
	ClientID     string
	ClientSecret string
	License      string
}

// Options configure a Client.
type Options struct {
	// CallTimeout bounds every call. Zero means DefaultCallTimeout; a
	// negative value leaves calls bounded only by their context.
	CallTimeout time.Duration
	// Credentials fill in clientId/clientSecret when a method is given none.
	Credentials Credentials
}

// Client multiplexes calls and pushed events over one Transport. Run must be
// active for calls to complete.
type Client struct {
	tr     Transport
	opts   Options
	corr   *Correlator
	router *Router

	kindMu sync.Mutex
	kinds  map[int]chan struct{}

	running   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// New wraps an established transport.
func New(tr Transport, opts Options) *Client {
	if opts.CallTimeout == 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &Client{
		tr:     tr,
		opts:   opts,
		corr:   NewCorrelator(),
		router: NewRouter(),
		kinds:  map[int]chan struct{}{},
		done:   make(chan struct{}),
	}
}

// Connect dials url and wraps the connection in a Client.
func Connect(ctx context.Context, url string, dial DialOptions, opts Options) (*Client, error) {
	tr, err := Dial(ctx, url, dial)
	if err != nil {
		return nil, err
	}
	logx.Log.Info().Str("url", url).Msg("connected to cortex")
	return New(tr, opts), nil
}

// Register adds a listener. Listeners registered while Run is active see
// frames that arrive after the call returns.
func (c *Client) Register(l Listener) {
	c.router.Register(l)
}

// Credentials returns the configured application credentials.
func (c *Client) Credentials() Credentials { return c.opts.Credentials }

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Pending returns the number of calls waiting for a reply.
func (c *Client) Pending() int { return c.corr.Len() }

// Run consumes inbound frames in arrival order until the connection closes,
// ctx ends or Close is called. Calls still pending when it returns fail with
// ErrClosed.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("cortex: dispatch loop already running")
	}
	metrics.SetConnected(true)
	c.router.Publish(TopicStart, Event{}, true)

	err := c.dispatch(ctx)

	_ = c.Close()
	c.router.Publish(TopicClose, Event{}, true)
	if err != nil {
		logx.Log.Error().Err(err).Msg("cortex dispatch loop stopped")
	}
	return err
}

func (c *Client) dispatch(ctx context.Context) error {
	for data, err := range ReceiveAll(ctx, c.tr) {
		if err != nil {
			if c.closed.Load() || ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.handleFrame(data)
	}
	return nil
}

func (c *Client) handleFrame(data []byte) {
	f, err := DecodeFrame(data)
	if err != nil {
		metrics.FrameReceived(FrameMalformed.String())
		logx.Log.Warn().Err(err).Msg("dropping inbound frame")
		return
	}
	metrics.FrameReceived(f.Kind.String())

	switch f.Kind {
	case FrameResult, FrameError:
		resp := f.Response
		if !c.corr.Deliver(resp) {
			metrics.UnmatchedReply()
			logx.Log.Debug().Int("id", resp.ID).Msg("reply without pending call")
		}
		metrics.SetPending(c.corr.Len())
		ev := Event{Data: resp.Result}
		ok := resp.Error == nil
		if !ok {
			ev.Data, _ = json.Marshal(resp.Error)
		}
		c.router.Publish(ReplyTopic(resp.ID), ev, ok)
	default:
		c.router.Route(f)
	}
}

// Call sends method under the fixed identifier id and waits for its reply.
// A concurrent call with the same identifier waits for this one to finish.
// Error replies surface as *RemoteError and an expired bound as
// *TimeoutError.
func (c *Client) Call(ctx context.Context, id int, method string, params map[string]any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()
	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}

	release, err := c.acquire(ctx, id)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = &TimeoutError{Method: method, ID: id, Elapsed: time.Since(start)}
		}
		return nil, err
	}
	defer release()

	req := NewRequest(id, method, params)
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	p, err := c.corr.Register(req)
	if err != nil {
		return nil, err
	}
	metrics.SetPending(c.corr.Len())
	if err := c.tr.Send(ctx, b); err != nil {
		c.corr.Abandon(p, err)
		metrics.SetPending(c.corr.Len())
		metrics.CallCompleted(method, "send_error", time.Since(start))
		return nil, err
	}

	res, err := c.corr.Await(ctx, p)
	metrics.SetPending(c.corr.Len())
	metrics.CallCompleted(method, callOutcome(err), time.Since(start))
	if err != nil {
		logx.Log.Debug().Err(err).Str("method", method).Int("id", id).Msg("call failed")
		return nil, err
	}
	logx.Log.Debug().Str("method", method).Int("id", id).RawJSON("result", res).Msg("call result")
	return res, nil
}

func callOutcome(err error) string {
	var re *RemoteError
	var te *TimeoutError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &re):
		return "remote_error"
	case errors.As(err, &te):
		return "timeout"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "error"
	}
}

func (c *Client) acquire(ctx context.Context, id int) (func(), error) {
	c.kindMu.Lock()
	sem, ok := c.kinds[id]
	if !ok {
		sem = make(chan struct{}, 1)
		c.kinds[id] = sem
	}
	c.kindMu.Unlock()
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the engine: the connection is released, the dispatch loop
// exits and pending calls fail with ErrClosed. Later calls are no-ops.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.tr.Close()
		c.corr.FailAll(ErrClosed)
		close(c.done)
		metrics.SetConnected(false)
		metrics.SetPending(0)
	})
	return c.closeErr
}
