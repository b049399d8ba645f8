// Package devicesrv serves the LED and motor endpoints the agent drives.
package devicesrv

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gaspardpetit/sfsb/internal/device"
	"github.com/gaspardpetit/sfsb/internal/logx"
)

// New constructs the HTTP handler for the device service. Every endpoint
// answers 200 with a device.Response; failures carry status "Fail" and a
// reason.
func New(pins Pins, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	h := &handlers{pins: pins}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/led", func(lr chi.Router) {
		lr.Get("/on", h.led(true))
		lr.Get("/off", h.led(false))
	})
	r.Route("/motor", func(mr chi.Router) {
		mr.Get("/set_speed", h.setSpeed)
		mr.Get("/get_speed", h.getSpeed)
	})
	return r
}

type handlers struct {
	pins Pins
}

func (h *handlers) led(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.pins.SetLED(on); err != nil {
			fail(w, err.Error())
			return
		}
		ok(w, nil)
	}
}

func (h *handlers) setSpeed(w http.ResponseWriter, r *http.Request) {
	speed := 0
	if v := r.URL.Query().Get("speed"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fail(w, "speed must be an integer")
			return
		}
		speed = n
	}
	if err := h.pins.SetDutyCycle(speed); err != nil {
		fail(w, err.Error())
		return
	}
	ok(w, nil)
}

func (h *handlers) getSpeed(w http.ResponseWriter, _ *http.Request) {
	v := h.pins.DutyCycle()
	ok(w, &v)
}

func ok(w http.ResponseWriter, value *int) {
	writeJSON(w, device.Response{Status: device.StatusSuccess, Value: value})
}

func fail(w http.ResponseWriter, reason string) {
	writeJSON(w, device.Response{Status: device.StatusFail, Reason: reason})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logx.Log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("device request")
	})
}
