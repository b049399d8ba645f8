package cortex

import (
	"sync"
	"sync/atomic"

	"github.com/gaspardpetit/sfsb/internal/logx"
	"github.com/gaspardpetit/sfsb/internal/metrics"
)

// Router fans replies and pushed events out to registered listeners.
//
// Handlers run synchronously on the dispatch goroutine, so a slow handler
// delays every frame behind it. Handlers should finish in well under the
// stream period (pow arrives at 8 Hz) and hand blocking work to a goroutine
// or channel.
type Router struct {
	mu        sync.Mutex
	listeners atomic.Pointer[[]Listener]
}

// NewRouter constructs a Router with no listeners.
func NewRouter() *Router {
	r := &Router{}
	r.listeners.Store(&[]Listener{})
	return r
}

// Register appends l. Listeners are invoked in registration order.
func (r *Router) Register(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.listeners.Load()
	next := make([]Listener, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, l)
	r.listeners.Store(&next)
}

// Listeners returns the current snapshot.
func (r *Router) Listeners() []Listener {
	return *r.listeners.Load()
}

// Route handles a frame that is not owned by the correlator. Warnings are
// logged and dropped; events go to every listener.
func (r *Router) Route(f Frame) {
	switch f.Kind {
	case FrameWarning:
		logx.Log.Warn().Str("warning", f.Warning).Msg("cortex warning")
	case FrameEvent:
		r.Publish(f.Event.Topic, f.Event, true)
	}
}

// Publish invokes the (topic, ok) handler of every listener.
func (r *Router) Publish(topic Topic, ev Event, ok bool) {
	ev.Topic = topic
	for _, l := range r.Listeners() {
		r.invoke(l, topic, ev, ok)
	}
}

func (r *Router) invoke(l Listener, topic Topic, ev Event, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			metrics.ListenerPanic(string(topic))
			logx.Log.Error().Interface("panic", p).Str("topic", string(topic)).Msg("listener panicked")
		}
	}()
	l.Handle(topic, ev, ok)
}
