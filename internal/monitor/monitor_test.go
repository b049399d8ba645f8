package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaspardpetit/sfsb/internal/config"
	"github.com/gaspardpetit/sfsb/internal/cortex"
	"github.com/gaspardpetit/sfsb/internal/state"
)

func TestFlickerWindowEvictsOldest(t *testing.T) {
	w := FlickerWindow{Size: 11, Threshold: 20}
	var r Reading
	for i := 0; i < 11; i++ {
		r = w.Add(25)
	}
	assert.Equal(t, 11, r.Warnings)
	assert.InDelta(t, 25, r.Mean, 1e-9)
	assert.InDelta(t, 0, r.StdDev, 1e-9)

	r = w.Add(25)
	assert.Equal(t, 11, w.Len())
	assert.Equal(t, 11, r.Warnings)
}

func TestFlickerWindowThresholdIsStrict(t *testing.T) {
	w := FlickerWindow{Size: 4, Threshold: 20}
	r := w.Add(20)
	assert.False(t, r.Warning, "mean equal to the threshold is not a warning")
	r = w.Add(22)
	assert.True(t, r.Warning)
	assert.Equal(t, 1, r.Warnings)
	assert.InDelta(t, 1.0, r.StdDev, 1e-9)
}

func TestFlicker(t *testing.T) {
	v, ok := Flicker(cortex.Sample{"AF3/theta": 10.0, "AF3/gamma": 2.0, "AF4/theta": 9.0, "AF4/gamma": 3.0})
	require.True(t, ok)
	assert.InDelta(t, 4.0, v, 1e-9)

	_, ok = Flicker(cortex.Sample{"AF3/theta": 10.0, "AF3/gamma": 0.0, "AF4/theta": 9.0, "AF4/gamma": 3.0})
	assert.False(t, ok)
	_, ok = Flicker(cortex.Sample{"AF3/theta": 10.0})
	assert.False(t, ok)
}

func TestMetricRatio(t *testing.T) {
	v, ok := MetricRatio(cortex.Sample{"exc": 0.4, "str": 0.2, "foc": 0.1, "rel": 0.2, "eng": true})
	require.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-9)

	// the service sends null while a metric is inactive
	_, ok = MetricRatio(cortex.Sample{"exc": nil, "str": 0.2, "foc": 0.1, "rel": 0.2})
	assert.False(t, ok)
	_, ok = MetricRatio(cortex.Sample{"exc": 0.1, "str": 0.2, "foc": 0.0, "rel": 0.0})
	assert.False(t, ok)
}

type fakeActuator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeActuator) record(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	return nil
}

func (f *fakeActuator) LEDOn(context.Context) error  { return f.record("led:on") }
func (f *fakeActuator) LEDOff(context.Context) error { return f.record("led:off") }
func (f *fakeActuator) SetMotorSpeed(_ context.Context, s int) error {
	if s == 0 {
		return f.record("motor:off")
	}
	return f.record("motor:on")
}

func (f *fakeActuator) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func pow(flicker float64) cortex.Sample {
	return cortex.Sample{"AF3/theta": flicker, "AF3/gamma": 1.0, "AF4/theta": flicker, "AF4/gamma": 1.0}
}

func TestMonitorRaisesAndClearsAlert(t *testing.T) {
	act := &fakeActuator{}
	store := state.NewMemoryStore()
	m := New(config.MonitorConfig{FlickerWindow: 3, FlickerThreshold: 20, MaxWarnings: 1, MotorSpeed: 40}, act, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	m.OnPow(pow(30))
	m.OnPow(pow(30))
	require.Eventually(t, func() bool { return len(act.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"led:on", "motor:on"}, act.snapshot())

	m.OnPow(pow(0))
	m.OnPow(pow(0))
	require.Eventually(t, func() bool { return len(act.snapshot()) == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"led:on", "motor:on", "led:off", "motor:off"}, act.snapshot())

	m.OnMet(cortex.Sample{"exc": 0.3, "str": 0.3, "foc": 0.2, "rel": 0.1})
	require.Eventually(t, func() bool {
		var v float64
		ok, _ := store.Get(context.Background(), state.FieldMetricRatio, &v)
		return ok && v > 1.99 && v < 2.01
	}, 2*time.Second, 5*time.Millisecond)

	var alert bool
	ok, err := store.Get(context.Background(), state.FieldAlert, &alert)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, alert)

	cancel()
	<-done
}

func TestMonitorClearsAlertOnExit(t *testing.T) {
	act := &fakeActuator{}
	m := New(config.MonitorConfig{FlickerWindow: 2, FlickerThreshold: 1, MaxWarnings: 0}, act, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	m.OnPow(pow(5))
	require.Eventually(t, func() bool { return len(act.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, []string{"led:on", "led:off"}, act.snapshot())
}
