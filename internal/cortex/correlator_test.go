package cortex

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCorrelatorDeliverResolvesOnce(t *testing.T) {
	c := NewCorrelator()
	p, err := c.Register(NewRequest(IDQuerySessions, "querySessions", nil))
	if err != nil {
		t.Fatal(err)
	}
	if !c.Deliver(Response{ID: IDQuerySessions, Result: json.RawMessage(`[]`)}) {
		t.Fatal("first delivery not matched")
	}
	if c.Deliver(Response{ID: IDQuerySessions, Result: json.RawMessage(`[1]`)}) {
		t.Fatal("second delivery matched a resolved call")
	}
	res, err := p.Wait(context.Background())
	if err != nil || string(res) != `[]` {
		t.Fatalf("got %s %v", res, err)
	}
	if c.Len() != 0 {
		t.Fatalf("len %d", c.Len())
	}
}

func TestCorrelatorDeliverError(t *testing.T) {
	c := NewCorrelator()
	p, _ := c.Register(NewRequest(IDAuthorize, "authorize", nil))
	c.Deliver(Response{ID: IDAuthorize, Error: &RemoteError{Code: -32021, Message: "invalid client credentials"}})
	_, err := p.Wait(context.Background())
	var re *RemoteError
	if !errors.As(err, &re) || re.Code != -32021 {
		t.Fatalf("got %v", err)
	}
}

func TestCorrelatorRejectsDuplicateID(t *testing.T) {
	c := NewCorrelator()
	if _, err := c.Register(NewRequest(IDSubscribe, "subscribe", nil)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Register(NewRequest(IDSubscribe, "subscribe", nil)); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestCorrelatorUnknownIDIsNotMatched(t *testing.T) {
	c := NewCorrelator()
	if c.Deliver(Response{ID: 999, Result: json.RawMessage(`1`)}) {
		t.Fatal("unknown id matched")
	}
}

func TestCorrelatorAwaitTimeoutAbandons(t *testing.T) {
	c := NewCorrelator()
	p, _ := c.Register(NewRequest(IDTraining, "training", nil))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Await(ctx, p)
	var te *TimeoutError
	if !errors.As(err, &te) || te.Method != "training" {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("abandoned call still tracked")
	}
	if c.Deliver(Response{ID: IDTraining, Result: json.RawMessage(`{}`)}) {
		t.Fatal("late reply matched abandoned call")
	}
	// the identifier is free again
	if _, err := c.Register(NewRequest(IDTraining, "training", nil)); err != nil {
		t.Fatalf("re-register: %v", err)
	}
}

func TestCorrelatorAwaitCancel(t *testing.T) {
	c := NewCorrelator()
	p, _ := c.Register(NewRequest(IDTraining, "training", nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Await(ctx, p); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}
}

func TestCorrelatorDeliverAbandonRace(t *testing.T) {
	for i := 0; i < 200; i++ {
		c := NewCorrelator()
		p, _ := c.Register(NewRequest(1, "m", nil))
		var wg sync.WaitGroup
		var delivered, abandoned bool
		wg.Add(2)
		go func() {
			defer wg.Done()
			delivered = c.Deliver(Response{ID: 1, Result: json.RawMessage(`1`)})
		}()
		go func() {
			defer wg.Done()
			abandoned = c.Abandon(p, context.Canceled)
		}()
		wg.Wait()
		if delivered == abandoned {
			t.Fatalf("delivered=%v abandoned=%v", delivered, abandoned)
		}
		<-p.Done()
	}
}

func TestCorrelatorFailAll(t *testing.T) {
	c := NewCorrelator()
	a, _ := c.Register(NewRequest(1, "a", nil))
	b, _ := c.Register(NewRequest(2, "b", nil))
	c.FailAll(ErrClosed)
	for _, p := range []*PendingCall{a, b} {
		if _, err := p.Wait(context.Background()); !errors.Is(err, ErrClosed) {
			t.Fatalf("call %d: %v", p.ID, err)
		}
	}
	if _, err := c.Register(NewRequest(3, "c", nil)); !errors.Is(err, ErrClosed) {
		t.Fatalf("register after FailAll: %v", err)
	}
}
