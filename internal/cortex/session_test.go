package cortex

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

// fakeCortex answers the handshake calls the way the local service does.
func fakeCortex(methods *[]string, mu *sync.Mutex) func(Request) any {
	return func(r Request) any {
		mu.Lock()
		*methods = append(*methods, r.Method)
		mu.Unlock()
		switch r.Method {
		case "queryHeadsets":
			return result(r.ID, []map[string]any{{"id": "EPOCX-1234", "status": "discovered"}})
		case "controlDevice":
			return result(r.ID, map[string]any{"command": "connect", "message": "Start connecting to device."})
		case "requestAccess":
			return result(r.ID, map[string]any{"accessGranted": true, "message": "granted"})
		case "authorize":
			return result(r.ID, map[string]any{"cortexToken": "tok-1"})
		case "createSession":
			return result(r.ID, map[string]any{"id": "sess-1", "status": "activated", "owner": "ada"})
		case "subscribe":
			return result(r.ID, map[string]any{
				"success": []map[string]any{{"streamName": "pow", "cols": []string{"AF3/theta"}, "sid": "sess-1"}},
				"failure": []map[string]any{{"streamName": "eeg", "code": -32016, "message": "no license"}},
			})
		case "unsubscribe":
			return result(r.ID, map[string]any{"success": []map[string]any{{"streamName": "pow"}}})
		case "updateSession":
			return result(r.ID, map[string]any{"id": "sess-1", "status": "closed"})
		}
		return remoteErr(r.ID, -32601, "method not found")
	}
}

func TestDriverHandshake(t *testing.T) {
	c, tr := startClient(t, Options{Credentials: Credentials{ClientID: "id", ClientSecret: "secret"}})
	var methods []string
	var mu sync.Mutex
	tr.serve(t, fakeCortex(&methods, &mu))
	ctx := context.Background()

	d := NewDriver(c)
	if d.State() != StateConnected {
		t.Fatalf("initial state %s", d.State())
	}
	sess, err := d.Prepare(ctx, "", Credentials{}, 0)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if sess != (Session{ID: "sess-1", Token: "tok-1", Headset: "EPOCX-1234"}) {
		t.Fatalf("session %+v", sess)
	}
	if d.State() != StateSessionOpen {
		t.Fatalf("state %s", d.State())
	}

	res, err := d.Subscribe(ctx, []string{"pow", "eeg"})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(res.Failure) != 1 || res.Failure[0].StreamName != "eeg" {
		t.Fatalf("failures %+v", res.Failure)
	}
	if !reflect.DeepEqual(d.Streams(), []string{"pow"}) {
		t.Fatalf("streams %v", d.Streams())
	}
	if err := d.Unsubscribe(ctx, []string{"pow"}); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if len(d.Streams()) != 0 || d.State() != StateUnsubscribed {
		t.Fatalf("after unsubscribe: %v %s", d.Streams(), d.State())
	}
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if d.State() != StateClosed {
		t.Fatalf("state %s", d.State())
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"queryHeadsets", "controlDevice", "requestAccess", "authorize", "createSession", "subscribe", "unsubscribe", "updateSession"}
	if !reflect.DeepEqual(methods, want) {
		t.Fatalf("calls %v want %v", methods, want)
	}
}

func TestDriverRejectsOutOfOrderTransition(t *testing.T) {
	c, _ := startClient(t, Options{})
	d := NewDriver(c)
	if err := d.OpenSession(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := d.Subscribe(context.Background(), []string{"pow"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if d.State() != StateConnected {
		t.Fatalf("state moved to %s", d.State())
	}
}

func TestDriverFailedStepKeepsState(t *testing.T) {
	c, tr := startClient(t, Options{})
	tr.serve(t, func(r Request) any {
		if r.Method == "queryHeadsets" {
			return result(r.ID, []any{})
		}
		return remoteErr(r.ID, -32601, "unexpected")
	})
	d := NewDriver(c)
	if _, err := d.AcquireDevice(context.Background(), "INSIGHT-1"); !errors.Is(err, ErrNoHeadset) {
		t.Fatalf("expected ErrNoHeadset, got %v", err)
	}
	if d.State() != StateConnected {
		t.Fatalf("state %s after failed step", d.State())
	}
}

func TestDriverReportsClosedClient(t *testing.T) {
	c, _ := startClient(t, Options{})
	d := NewDriver(c)
	_ = c.Close()
	if d.State() != StateClosed {
		t.Fatalf("state %s", d.State())
	}
	if err := d.RequestAccess(context.Background(), Credentials{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	if StateSessionOpen.String() != "session_open" || State(42).String() != "state(42)" {
		t.Fatalf("unexpected names %s %s", StateSessionOpen, State(42))
	}
}
