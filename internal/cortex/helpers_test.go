package cortex

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"
)

// pipeTransport is an in-memory Transport. Frames pushed on in are
// received by the client; frames the client sends appear on out.
type pipeTransport struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPipe() *pipeTransport {
	return &pipeTransport{in: make(chan []byte, 64), out: make(chan []byte, 64), closed: make(chan struct{})}
}

func (p *pipeTransport) Send(ctx context.Context, b []byte) error {
	select {
	case <-p.closed:
		return ErrTransportClosed
	default:
	}
	select {
	case p.out <- b:
		return nil
	case <-p.closed:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case b := <-p.in:
		return b, nil
	case <-p.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeTransport) push(frame string) { p.in <- []byte(frame) }

// serve answers every outbound request with reply(req). A nil reply sends
// nothing.
func (p *pipeTransport) serve(t *testing.T, reply func(Request) any) {
	t.Helper()
	go func() {
		for {
			select {
			case b := <-p.out:
				var req Request
				if err := json.Unmarshal(b, &req); err != nil {
					t.Errorf("server decode: %v", err)
					return
				}
				if r := reply(req); r != nil {
					out, _ := json.Marshal(r)
					p.in <- out
				}
			case <-p.closed:
				return
			}
		}
	}()
}

func result(id int, v any) map[string]any {
	return map[string]any{"id": id, "jsonrpc": "2.0", "result": v}
}

func remoteErr(id, code int, msg string) map[string]any {
	return map[string]any{"id": id, "jsonrpc": "2.0", "error": map[string]any{"code": code, "message": msg}}
}

// startClient runs a client over a fresh pipe until the test ends.
func startClient(t *testing.T, opts Options) (*Client, *pipeTransport) {
	t.Helper()
	tr := newPipe()
	c := New(tr, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		_ = c.Close()
		<-done
	})
	return c, tr
}

// recorder is a Listener that records every invocation.
type recorder struct {
	name string
	mu   sync.Mutex
	got  []string
	log  *[]string
	logM *sync.Mutex
}

func (r *recorder) Handle(topic Topic, ev Event, ok bool) {
	entry := string(topic)
	if !ok {
		entry += "!"
	}
	r.mu.Lock()
	r.got = append(r.got, entry)
	r.mu.Unlock()
	if r.log != nil {
		r.logM.Lock()
		*r.log = append(*r.log, r.name+":"+entry)
		r.logM.Unlock()
	}
}

func (r *recorder) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
