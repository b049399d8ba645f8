// Package monitor turns stream samples into alerts on the device and
// derived values in the state store.
package monitor

import (
	"context"

	"github.com/gaspardpetit/sfsb/internal/config"
	"github.com/gaspardpetit/sfsb/internal/cortex"
	"github.com/gaspardpetit/sfsb/internal/logx"
	"github.com/gaspardpetit/sfsb/internal/metrics"
	"github.com/gaspardpetit/sfsb/internal/state"
)

// Actuator is the part of the device the monitor drives.
type Actuator interface {
	LEDOn(ctx context.Context) error
	LEDOff(ctx context.Context) error
	SetMotorSpeed(ctx context.Context, speed int) error
}

type sample struct {
	stream string
	data   cortex.Sample
}

// Monitor consumes pow and met samples. OnPow and OnMet only enqueue, so
// they are safe to call from the dispatch goroutine; Run does the work.
type Monitor struct {
	act        Actuator
	store      state.Store
	window     FlickerWindow
	maxWarn    int
	motorSpeed int

	samples  chan sample
	alerting bool
}

// New builds a monitor. act and store may be nil.
func New(cfg config.MonitorConfig, act Actuator, store state.Store) *Monitor {
	return &Monitor{
		act:        act,
		store:      store,
		window:     FlickerWindow{Size: cfg.FlickerWindow, Threshold: cfg.FlickerThreshold},
		maxWarn:    cfg.MaxWarnings,
		motorSpeed: cfg.MotorSpeed,
		samples:    make(chan sample, 64),
	}
}

// OnPow enqueues a band-power sample.
func (m *Monitor) OnPow(s cortex.Sample) { m.enqueue("pow", s) }

// OnMet enqueues a performance-metric sample.
func (m *Monitor) OnMet(s cortex.Sample) { m.enqueue("met", s) }

func (m *Monitor) enqueue(stream string, s cortex.Sample) {
	select {
	case m.samples <- sample{stream: stream, data: s}:
	default:
		logx.Log.Warn().Str("topic", stream).Msg("monitor queue full; sample dropped")
	}
}

// Run processes samples until ctx ends. An active alert is cleared on exit.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.clear(context.WithoutCancel(ctx))
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-m.samples:
			m.handle(ctx, s)
		}
	}
}

func (m *Monitor) handle(ctx context.Context, s sample) {
	m.put(ctx, state.SampleField(s.stream), s.data)
	switch s.stream {
	case "pow":
		m.handlePow(ctx, s.data)
	case "met":
		m.handleMet(ctx, s.data)
	}
}

func (m *Monitor) handlePow(ctx context.Context, s cortex.Sample) {
	v, ok := Flicker(s)
	if !ok {
		logx.Log.Debug().Msg("pow sample without AF3/AF4 theta and gamma")
		return
	}
	r := m.window.Add(v)
	m.put(ctx, state.FieldFlicker, r)
	switch {
	case r.Warnings > m.maxWarn && !m.alerting:
		m.raise(ctx, r)
	case r.Warnings <= m.maxWarn && m.alerting:
		m.clear(ctx)
	}
}

func (m *Monitor) handleMet(ctx context.Context, s cortex.Sample) {
	v, ok := MetricRatio(s)
	if !ok {
		return
	}
	logx.Log.Debug().Float64("ratio", v).Msg("metric ratio")
	m.put(ctx, state.FieldMetricRatio, v)
}

func (m *Monitor) raise(ctx context.Context, r Reading) {
	m.alerting = true
	metrics.Alert("flicker")
	logx.Log.Warn().Int("warnings", r.Warnings).Float64("mean", r.Mean).Msg("eye flicker alert")
	m.put(ctx, state.FieldAlert, true)
	if m.act == nil {
		return
	}
	if err := m.act.LEDOn(ctx); err != nil {
		logx.Log.Error().Err(err).Msg("alert LED on")
	}
	if m.motorSpeed > 0 {
		if err := m.act.SetMotorSpeed(ctx, m.motorSpeed); err != nil {
			logx.Log.Error().Err(err).Msg("alert motor on")
		}
	}
}

func (m *Monitor) clear(ctx context.Context) {
	if !m.alerting {
		return
	}
	m.alerting = false
	logx.Log.Info().Msg("eye flicker alert cleared")
	m.put(ctx, state.FieldAlert, false)
	if m.act == nil {
		return
	}
	if err := m.act.LEDOff(ctx); err != nil {
		logx.Log.Error().Err(err).Msg("alert LED off")
	}
	if m.motorSpeed > 0 {
		if err := m.act.SetMotorSpeed(ctx, 0); err != nil {
			logx.Log.Error().Err(err).Msg("alert motor off")
		}
	}
}

func (m *Monitor) put(ctx context.Context, field string, v any) {
	if m.store == nil {
		return
	}
	if err := m.store.Put(ctx, field, v); err != nil {
		logx.Log.Warn().Err(err).Str("field", field).Msg("state write failed")
	}
}
