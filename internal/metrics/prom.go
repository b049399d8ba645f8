package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/sfsb/internal/logx"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "sfsb_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "agent"},
		},
		[]string{"date", "sha", "version"},
	)

	connectedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sfsb_cortex_connected",
		Help: "Whether the engine holds an open connection (1 or 0)",
	})

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfsb_cortex_frames_received_total",
			Help: "Inbound frames by classification",
		},
		[]string{"kind"},
	)

	unmatchedReplies = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sfsb_cortex_unmatched_replies_total",
		Help: "Replies whose identifier had no pending call",
	})

	calls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfsb_cortex_calls_total",
			Help: "Completed calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sfsb_cortex_call_duration_seconds",
			Help:    "Time from send to reply",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sfsb_cortex_pending_calls",
		Help: "Calls waiting for a reply",
	})

	listenerPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfsb_cortex_listener_panics_total",
			Help: "Recovered listener panics by topic",
		},
		[]string{"topic"},
	)

	sessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sfsb_session_state",
			Help: "Current session driver state (1 for the active state)",
		},
		[]string{"state"},
	)

	deviceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfsb_device_requests_total",
			Help: "Device service requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	weatherFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfsb_weather_fetches_total",
			Help: "Weather lookups by outcome",
		},
		[]string{"outcome"},
	)

	alerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfsb_monitor_alerts_total",
			Help: "Alerts raised by stream monitors",
		},
		[]string{"monitor"},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, connectedGauge, framesReceived, unmatchedReplies, calls, callDuration, pendingGauge, listenerPanics, sessionState, deviceRequests, weatherFetches, alerts)
}

// StartMetricsServer starts an HTTP server exposing Prometheus metrics on /metrics.
// It returns the address it is listening on.
func StartMetricsServer(ctx context.Context, addr string) (string, error) {
	reg := prometheus.NewRegistry()
	Register(reg)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	actual := ln.Addr().String()
	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(c)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Log.Error().Err(err).Str("addr", actual).Msg("metrics server error")
		}
	}()
	return actual, nil
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// SetConnected records whether the engine is connected.
func SetConnected(v bool) {
	if v {
		connectedGauge.Set(1)
	} else {
		connectedGauge.Set(0)
	}
}

// FrameReceived counts an inbound frame of the given kind.
func FrameReceived(kind string) {
	framesReceived.WithLabelValues(kind).Inc()
}

// UnmatchedReply counts a reply nobody was waiting for.
func UnmatchedReply() {
	unmatchedReplies.Inc()
}

// CallCompleted records the outcome and latency of one call.
func CallCompleted(method, outcome string, d time.Duration) {
	calls.WithLabelValues(method, outcome).Inc()
	callDuration.WithLabelValues(method).Observe(d.Seconds())
}

// SetPending records the number of calls in flight.
func SetPending(n int) {
	pendingGauge.Set(float64(n))
}

// ListenerPanic counts a recovered listener panic.
func ListenerPanic(topic string) {
	listenerPanics.WithLabelValues(topic).Inc()
}

// SetSessionState marks state as the active session state.
func SetSessionState(state string) {
	sessionState.Reset()
	sessionState.WithLabelValues(state).Set(1)
}

// DeviceRequest counts one device service request.
func DeviceRequest(endpoint string, success bool) {
	deviceRequests.WithLabelValues(endpoint, outcome(success)).Inc()
}

// WeatherFetch counts one weather lookup.
func WeatherFetch(success bool) {
	weatherFetches.WithLabelValues(outcome(success)).Inc()
}

// Alert counts an alert raised by a monitor.
func Alert(monitor string) {
	alerts.WithLabelValues(monitor).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
