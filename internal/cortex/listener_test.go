package cortex

import (
	"strings"
	"testing"
)

func TestHandlersDispatchByOutcome(t *testing.T) {
	var got []string
	table := NewHandlers().
		On("pow", func(Event) { got = append(got, "pow") }).
		On(ReplyTopic(IDCreateSession), func(Event) { got = append(got, "created") }).
		OnFailure(ReplyTopic(IDCreateSession), func(Event) { got = append(got, "refused") }).
		MustBuild()

	table.Handle("pow", Event{}, true)
	table.Handle("pow", Event{}, false)
	table.Handle(ReplyTopic(IDCreateSession), Event{}, true)
	table.Handle(ReplyTopic(IDCreateSession), Event{}, false)
	table.Handle("met", Event{}, true)

	want := "pow,created,refused"
	if strings.Join(got, ",") != want {
		t.Fatalf("got %v want %s", got, want)
	}
	if !table.Has("pow", true) || table.Has("pow", false) {
		t.Fatal("Has disagrees with registrations")
	}
}

func TestHandlersRejectDuplicates(t *testing.T) {
	var last string
	h := NewHandlers().
		On("pow", func(Event) { last = "first" }).
		On("pow", func(Event) { last = "second" }).
		OnFailure("pow", func(Event) {})
	if d := h.Duplicates(); len(d) != 1 || d[0] != "pow/success" {
		t.Fatalf("duplicates %v", d)
	}
	if _, err := h.Build(); err == nil {
		t.Fatal("Build accepted duplicate handlers")
	}

	h.success["pow"](Event{})
	if last != "second" {
		t.Fatalf("last registration should win, got %s", last)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("MustBuild did not panic")
		}
	}()
	h.MustBuild()
}

func TestRouterRecoversListenerPanic(t *testing.T) {
	r := NewRouter()
	r.Register(NewHandlers().On("pow", func(Event) { panic("boom") }).MustBuild())
	rec := &recorder{}
	r.Register(rec)

	r.Route(Frame{Kind: FrameEvent, Event: Event{Topic: "pow"}})
	r.Route(Frame{Kind: FrameWarning, Warning: "low battery"})

	if got := rec.topics(); len(got) != 1 || got[0] != "pow" {
		t.Fatalf("listener after panicking one saw %v", got)
	}
	if n := len(r.Listeners()); n != 2 {
		t.Fatalf("listeners %d", n)
	}
}
