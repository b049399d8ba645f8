package device

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reply(w http.ResponseWriter, r Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(r)
}

func TestClientEndpoints(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		if r.URL.Path == PathGetMotor {
			v := 42
			reply(w, Response{Status: StatusSuccess, Value: &v})
			return
		}
		reply(w, Response{Status: StatusSuccess})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", Options{Rate: 1000})
	ctx := context.Background()
	require.NoError(t, c.LEDOn(ctx))
	require.NoError(t, c.LEDOff(ctx))
	require.NoError(t, c.SetMotorSpeed(ctx, 42))
	speed, err := c.MotorSpeed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, speed)
	assert.Equal(t, []string{"/led/on", "/led/off", "/motor/set_speed?speed=42", "/motor/get_speed"}, paths)
}

func TestClientFailStatusIsDeviceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply(w, Response{Status: StatusFail, Reason: "pwm not initialised"})
	}))
	defer srv.Close()

	c := New(srv.URL, Options{Rate: 1000, MaxFailures: 1})
	for i := 0; i < 3; i++ {
		err := c.LEDOn(context.Background())
		var de *DeviceError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, PathLEDOn, de.Endpoint)
		assert.Equal(t, "pwm not initialised", de.Reason)
	}
	// refusals are answers, not outages
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestClientRejectsInvalidSpeed(t *testing.T) {
	c := New("http://127.0.0.1:1", Options{})
	assert.ErrorIs(t, c.SetMotorSpeed(context.Background(), 101), ErrInvalidSpeed)
	assert.ErrorIs(t, c.SetMotorSpeed(context.Background(), -1), ErrInvalidSpeed)
}

func TestClientBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	c := New(srv.URL, Options{Rate: 1000, MaxFailures: 2, OpenTimeout: time.Minute})
	for i := 0; i < 2; i++ {
		require.Error(t, c.LEDOn(context.Background()))
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())

	err := c.LEDOff(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, int32(2), calls.Load(), "device should not be called while the circuit is open")
}

func TestClientRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply(w, Response{Status: StatusSuccess})
	}))
	defer srv.Close()

	c := New(srv.URL, Options{Rate: 0.001, Burst: 1})
	require.NoError(t, c.LEDOn(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, c.LEDOn(ctx))
}
