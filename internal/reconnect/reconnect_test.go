package reconnect

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReconnectDelay(t *testing.T) {
	expected := []int{1, 1, 1, 5, 5, 5, 15, 15, 15, 30, 30}
	for i, exp := range expected {
		d := Delay(i)
		if int(d.Seconds()) != exp {
			t.Errorf("attempt %d: expected %d got %v", i, exp, d)
		}
	}
}

func fastDelay(t *testing.T) *[]int {
	t.Helper()
	var attempts []int
	prev := delay
	delay = func(a int) time.Duration {
		attempts = append(attempts, a)
		return time.Millisecond
	}
	t.Cleanup(func() { delay = prev })
	return &attempts
}

func TestRunRetriesUntilSuccess(t *testing.T) {
	attempts := fastDelay(t)
	calls := 0
	err := Run(context.Background(), true, func(context.Context) (bool, error) {
		calls++
		switch calls {
		case 1, 2:
			return false, errors.New("refused")
		case 3:
			return true, errors.New("dropped")
		}
		return true, nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 4 {
		t.Fatalf("calls %d", calls)
	}
	// a connection that was established resets the schedule
	want := []int{0, 1, 0}
	if len(*attempts) != len(want) {
		t.Fatalf("attempts %v", *attempts)
	}
	for i := range want {
		if (*attempts)[i] != want[i] {
			t.Fatalf("attempts %v want %v", *attempts, want)
		}
	}
}

func TestRunDisabledReturnsFirstError(t *testing.T) {
	fastDelay(t)
	boom := errors.New("boom")
	calls := 0
	err := Run(context.Background(), false, func(context.Context) (bool, error) {
		calls++
		return false, boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("err %v calls %d", err, calls)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	prev := delay
	delay = func(int) time.Duration { return time.Hour }
	t.Cleanup(func() { delay = prev })

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, true, func(context.Context) (bool, error) { return false, errors.New("down") })
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) && err.Error() != "down" {
			t.Fatalf("err %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
}
