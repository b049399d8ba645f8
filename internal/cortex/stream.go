package cortex

import (
	"encoding/json"
	"sync/atomic"

	"github.com/gaspardpetit/sfsb/internal/logx"
)

// Sample is one stream event keyed by column name.
type Sample map[string]any

// Float returns the numeric value of column key.
func (s Sample) Float(key string) (float64, bool) {
	v, ok := s[key].(float64)
	return v, ok
}

// StreamListener turns the positional arrays of one data stream into
// Samples. It learns the column names from the subscribe reply, so it must
// be registered before Subscribe is called.
type StreamListener struct {
	stream string
	fn     func(Sample)
	cols   atomic.Pointer[[]string]
	table  *HandlerTable
}

// NewStreamListener delivers every sample of stream to fn on the dispatch
// goroutine.
func NewStreamListener(stream string, fn func(Sample)) *StreamListener {
	l := &StreamListener{stream: stream, fn: fn}
	l.table = NewHandlers().
		On(ReplyTopic(IDSubscribe), l.onSubscribe).
		On(Topic(stream), l.onSample).
		MustBuild()
	return l
}

// Handle implements Listener.
func (l *StreamListener) Handle(topic Topic, ev Event, ok bool) {
	l.table.Handle(topic, ev, ok)
}

// Columns returns the learned column names, or nil before the subscribe
// reply has been seen.
func (l *StreamListener) Columns() []string {
	if p := l.cols.Load(); p != nil {
		return *p
	}
	return nil
}

func (l *StreamListener) onSubscribe(ev Event) {
	var res SubscribeResult
	if err := json.Unmarshal(ev.Data, &res); err != nil {
		logx.Log.Warn().Err(err).Str("stream", l.stream).Msg("decode subscribe reply")
		return
	}
	for _, s := range res.Success {
		if s.StreamName == l.stream {
			cols := s.ColumnNames()
			l.cols.Store(&cols)
			return
		}
	}
}

func (l *StreamListener) onSample(ev Event) {
	cols := l.Columns()
	if cols == nil {
		logx.Log.Debug().Str("stream", l.stream).Msg("sample before subscribe reply; dropped")
		return
	}
	var values []any
	if err := json.Unmarshal(ev.Data, &values); err != nil {
		logx.Log.Warn().Err(err).Str("stream", l.stream).Msg("decode sample")
		return
	}
	n := min(len(cols), len(values))
	s := make(Sample, n)
	for i := 0; i < n; i++ {
		s[cols[i]] = values[i]
	}
	l.fn(s)
}
