package cortex

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gaspardpetit/sfsb/internal/logx"
	"github.com/gaspardpetit/sfsb/internal/metrics"
)

// State is a position in the session handshake.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateDeviceAcquired
	StateAccessRequested
	StateAuthorized
	StateSessionOpen
	StateSubscribed
	StateUnsubscribed
	StateClosed
)

var stateNames = [...]string{
	"disconnected", "connected", "device_acquired", "access_requested",
	"authorized", "session_open", "subscribed", "unsubscribed", "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Session identifies an open server-side session and the token scoping it.
type Session struct {
	ID      string
	Token   string
	Headset string
}

// Driver runs the handshake connect → device → access → authorize →
// session → subscribe over a Client. Each step is one call or a fixed
// sequence; a failing step leaves the state unchanged and nothing is rolled
// back.
type Driver struct {
	c *Client

	mu      sync.Mutex
	state   State
	session Session
	streams []string
}

// NewDriver starts a driver on a connected client.
func NewDriver(c *Client) *Driver {
	d := &Driver{c: c, state: StateConnected}
	metrics.SetSessionState(d.state.String())
	return d
}

// State returns the current state; a closed client reports StateClosed.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current()
}

func (d *Driver) current() State {
	select {
	case <-d.c.Done():
		return StateClosed
	default:
		return d.state
	}
}

// Session returns the identifiers gathered so far.
func (d *Driver) Session() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// Streams returns the currently subscribed streams.
func (d *Driver) Streams() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.streams)
}

// step runs fn when the current state is one of from and moves to to on
// success. The lock is held for the duration of fn.
func (d *Driver) step(to State, fn func() error, from ...State) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur := d.current()
	if !slices.Contains(from, cur) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, cur, to)
	}
	if err := fn(); err != nil {
		logx.Log.Error().Err(err).Str("from", cur.String()).Str("to", to.String()).Msg("session step failed")
		return err
	}
	d.state = to
	metrics.SetSessionState(to.String())
	logx.Log.Info().Str("state", to.String()).Msg("session state")
	return nil
}

// AcquireDevice picks the first headset matching headset (any when empty)
// and connects it.
func (d *Driver) AcquireDevice(ctx context.Context, headset string) (string, error) {
	var id string
	err := d.step(StateDeviceAcquired, func() error {
		var err error
		id, err = d.c.FirstHeadset(ctx, headset)
		if err != nil {
			return err
		}
		if _, err := d.c.ConnectHeadset(ctx, id); err != nil {
			return err
		}
		d.session.Headset = id
		return nil
	}, StateConnected)
	return id, err
}

// RequestAccess asks the user to approve the application.
func (d *Driver) RequestAccess(ctx context.Context, creds Credentials) error {
	return d.step(StateAccessRequested, func() error {
		res, err := d.c.RequestAccess(ctx, creds)
		if err != nil {
			return err
		}
		if !res.AccessGranted {
			logx.Log.Warn().Str("message", res.Message).Msg("access not yet granted")
		}
		return nil
	}, StateDeviceAcquired)
}

// Authorize obtains the token that scopes every later call.
func (d *Driver) Authorize(ctx context.Context, creds Credentials, debit int) error {
	return d.step(StateAuthorized, func() error {
		res, err := d.c.Authorize(ctx, creds, debit)
		if err != nil {
			return err
		}
		if res.CortexToken == "" {
			return errors.New("cortex: authorize returned no token")
		}
		d.session.Token = res.CortexToken
		return nil
	}, StateAccessRequested)
}

// OpenSession creates an active session on the acquired headset.
func (d *Driver) OpenSession(ctx context.Context) error {
	return d.step(StateSessionOpen, func() error {
		info, err := d.c.CreateSession(ctx, d.session.Token, "active", d.session.Headset)
		if err != nil {
			return err
		}
		d.session.ID = info.ID
		return nil
	}, StateAuthorized)
}

// Subscribe starts the given data streams. Refused streams are logged and
// reported in the result.
func (d *Driver) Subscribe(ctx context.Context, streams []string) (SubscribeResult, error) {
	var res SubscribeResult
	err := d.step(StateSubscribed, func() error {
		var err error
		res, err = d.c.Subscribe(ctx, d.session.Token, d.session.ID, streams)
		if err != nil {
			return err
		}
		for _, f := range res.Failure {
			logx.Log.Warn().Str("stream", f.StreamName).Int("code", f.Code).Str("message", f.Message).Msg("stream refused")
		}
		for _, s := range res.Success {
			if !slices.Contains(d.streams, s.StreamName) {
				d.streams = append(d.streams, s.StreamName)
			}
		}
		return nil
	}, StateSessionOpen, StateSubscribed, StateUnsubscribed)
	return res, err
}

// Unsubscribe stops the given streams.
func (d *Driver) Unsubscribe(ctx context.Context, streams []string) error {
	return d.step(StateUnsubscribed, func() error {
		if _, err := d.c.Unsubscribe(ctx, d.session.Token, d.session.ID, streams); err != nil {
			return err
		}
		d.streams = slices.DeleteFunc(d.streams, func(s string) bool { return slices.Contains(streams, s) })
		return nil
	}, StateSubscribed)
}

// Close closes the server-side session when one is open. The connection
// itself is left to the caller.
func (d *Driver) Close(ctx context.Context) error {
	return d.step(StateClosed, func() error {
		if d.session.ID == "" {
			return nil
		}
		_, err := d.c.UpdateSession(ctx, d.session.Token, d.session.ID, "close")
		return err
	}, StateConnected, StateDeviceAcquired, StateAccessRequested, StateAuthorized,
		StateSessionOpen, StateSubscribed, StateUnsubscribed)
}

// Prepare runs device acquisition through session creation.
func (d *Driver) Prepare(ctx context.Context, headset string, creds Credentials, debit int) (Session, error) {
	if _, err := d.AcquireDevice(ctx, headset); err != nil {
		return Session{}, err
	}
	if err := d.RequestAccess(ctx, creds); err != nil {
		return Session{}, err
	}
	if err := d.Authorize(ctx, creds, debit); err != nil {
		return Session{}, err
	}
	if err := d.OpenSession(ctx); err != nil {
		return Session{}, err
	}
	return d.Session(), nil
}
