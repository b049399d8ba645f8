package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gaspardpetit/sfsb/internal/logx"
	"github.com/gaspardpetit/sfsb/internal/state"
)

// VersionInfo is served on /version.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildSHA  string `json:"build_sha"`
	BuildDate string `json:"build_date"`
}

// StatusHandler serves /status (every field of the state store) and
// /version.
func StatusHandler(store state.Store, v VersionInfo) http.Handler {
	r := chi.NewRouter()
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		fields, err := store.Fields(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		sort.Strings(fields)
		out := make(map[string]json.RawMessage, len(fields))
		for _, f := range fields {
			var raw json.RawMessage
			if ok, err := store.Get(r.Context(), f, &raw); err == nil && ok {
				out[f] = raw
			}
		}
		writeJSON(w, out)
	})
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, v)
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// StartStatusServer starts the status endpoint and returns the address it
// is listening on. The server stops when ctx ends.
func StartStatusServer(ctx context.Context, addr string, h http.Handler) (string, error) {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	actual := ln.Addr().String()
	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Log.Error().Err(err).Str("addr", actual).Msg("status server error")
		}
	}()
	return actual, nil
}
