package cortex

import (
	"fmt"
	"strings"
)

// Listener observes replies and pushed events. ok is false for error replies.
type Listener interface {
	Handle(topic Topic, ev Event, ok bool)
}

// HandlerFunc reacts to one event.
type HandlerFunc func(Event)

// Handlers collects the (topic, outcome) → handler table of a listener.
// Registering the same (topic, outcome) twice keeps the last handler, but
// Build rejects such tables.
type Handlers struct {
	success    map[Topic]HandlerFunc
	failure    map[Topic]HandlerFunc
	duplicates []string
}

// NewHandlers starts an empty table.
func NewHandlers() *Handlers {
	return &Handlers{success: map[Topic]HandlerFunc{}, failure: map[Topic]HandlerFunc{}}
}

// On registers fn for successful replies or pushed events on topic.
func (h *Handlers) On(topic Topic, fn HandlerFunc) *Handlers {
	if _, ok := h.success[topic]; ok {
		h.duplicates = append(h.duplicates, string(topic)+"/success")
	}
	h.success[topic] = fn
	return h
}

// OnFailure registers fn for error replies on topic.
func (h *Handlers) OnFailure(topic Topic, fn HandlerFunc) *Handlers {
	if _, ok := h.failure[topic]; ok {
		h.duplicates = append(h.duplicates, string(topic)+"/failure")
	}
	h.failure[topic] = fn
	return h
}

// Duplicates lists the (topic, outcome) pairs registered more than once.
func (h *Handlers) Duplicates() []string {
	return append([]string(nil), h.duplicates...)
}

// Build freezes the table.
func (h *Handlers) Build() (*HandlerTable, error) {
	if len(h.duplicates) > 0 {
		return nil, fmt.Errorf("cortex: duplicate handlers for %s", strings.Join(h.duplicates, ", "))
	}
	t := &HandlerTable{
		success: make(map[Topic]HandlerFunc, len(h.success)),
		failure: make(map[Topic]HandlerFunc, len(h.failure)),
	}
	for k, v := range h.success {
		t.success[k] = v
	}
	for k, v := range h.failure {
		t.failure[k] = v
	}
	return t, nil
}

// MustBuild is Build for tables declared in code; it panics on duplicates.
func (h *Handlers) MustBuild() *HandlerTable {
	t, err := h.Build()
	if err != nil {
		panic(err)
	}
	return t
}

// HandlerTable is an immutable Listener built from Handlers. It is safe to
// read from the dispatch loop without locking.
type HandlerTable struct {
	success map[Topic]HandlerFunc
	failure map[Topic]HandlerFunc
}

// Handle dispatches ev to the handler registered for (topic, ok). Unmatched
// topics are ignored.
func (t *HandlerTable) Handle(topic Topic, ev Event, ok bool) {
	m := t.success
	if !ok {
		m = t.failure
	}
	if fn := m[topic]; fn != nil {
		fn(ev)
	}
}

// Has reports whether a handler exists for (topic, ok).
func (t *HandlerTable) Has(topic Topic, ok bool) bool {
	if ok {
		return t.success[topic] != nil
	}
	return t.failure[topic] != nil
}
