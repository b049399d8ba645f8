package cortex

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"iter"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

// DefaultURL is the local Cortex service endpoint.
const DefaultURL = "wss://localhost:6868"

const defaultReadLimit = 1 << 20

// Transport moves whole frames over one long-lived duplex connection.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	// Receive returns the next frame, or io.EOF once the peer closed
	// normally.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// DialOptions tune the websocket handshake.
type DialOptions struct {
	// InsecureSkipVerify accepts the self-signed certificate the local
	// service presents.
	InsecureSkipVerify bool
	HTTPHeader         http.Header
	// ReadLimit caps the size of one inbound frame. Defaults to 1 MiB.
	ReadLimit int64
}

// WSTransport is a Transport over a websocket connection.
type WSTransport struct {
	url    string
	conn   *websocket.Conn
	once   sync.Once
	closed atomic.Bool
}

// Dial opens a websocket to url.
func Dial(ctx context.Context, url string, opts DialOptions) (*WSTransport, error) {
	wsOpts := &websocket.DialOptions{HTTPHeader: opts.HTTPHeader}
	if opts.InsecureSkipVerify {
		wsOpts.HTTPClient = &http.Client{Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}}
	}
	conn, _, err := websocket.Dial(ctx, url, wsOpts)
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: err}
	}
	limit := opts.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)
	return &WSTransport{url: url, conn: conn}, nil
}

// NewWSTransport wraps an already established connection.
func NewWSTransport(url string, conn *websocket.Conn) *WSTransport {
	return &WSTransport{url: url, conn: conn}
}

// Send writes one text frame.
func (t *WSTransport) Send(ctx context.Context, data []byte) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	if err := t.conn.Write(ctx, websocket.MessageText, data); err != nil {
		if t.closed.Load() {
			return ErrTransportClosed
		}
		return &SendError{Err: err}
	}
	return nil
}

// Receive reads the next frame.
func (t *WSTransport) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err == nil {
		return data, nil
	}
	if t.closed.Load() || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil, io.EOF
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, &ConnectionError{URL: t.url, Err: err}
}

// Frames returns the inbound frames as a lazy sequence. The sequence ends
// after the connection closes; a non-EOF failure is yielded once as the
// final element.
func (t *WSTransport) Frames(ctx context.Context) iter.Seq2[[]byte, error] {
	return ReceiveAll(ctx, t)
}

// ReceiveAll adapts any Transport into a frame sequence.
func ReceiveAll(ctx context.Context, t Transport) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			data, err := t.Receive(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, err)
				}
				return
			}
			if !yield(data, nil) {
				return
			}
		}
	}
}

// Close releases the connection. Calling it more than once is harmless.
func (t *WSTransport) Close() error {
	var err error
	t.once.Do(func() {
		t.closed.Store(true)
		err = t.conn.Close(websocket.StatusNormalClosure, "closing")
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			err = nil
		}
	})
	return err
}
