// Package agent runs one monitoring session end to end: it connects to
// Cortex, drives the session handshake, feeds stream samples to the monitor
// and keeps the weather report fresh.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gaspardpetit/sfsb/internal/config"
	"github.com/gaspardpetit/sfsb/internal/cortex"
	"github.com/gaspardpetit/sfsb/internal/device"
	"github.com/gaspardpetit/sfsb/internal/logx"
	"github.com/gaspardpetit/sfsb/internal/metrics"
	"github.com/gaspardpetit/sfsb/internal/monitor"
	"github.com/gaspardpetit/sfsb/internal/reconnect"
	"github.com/gaspardpetit/sfsb/internal/state"
	"github.com/gaspardpetit/sfsb/internal/weather"
)

// teardownTimeout bounds unsubscribe and session close after ctx ended.
const teardownTimeout = 5 * time.Second

// Agent holds the long-lived collaborators of a run.
type Agent struct {
	cfg     config.AgentConfig
	store   state.Store
	monitor *monitor.Monitor
	weather *weather.Client
}

// Build is reported on the status server's /version endpoint.
var Build = VersionInfo{Version: "dev", BuildSHA: "unknown", BuildDate: "unknown"}

// Run starts the agent and blocks until the session script completes, ctx
// ends or the connection fails without reconnect.
func Run(ctx context.Context, cfg config.AgentConfig) error {
	if cfg.MetricsAddr != "" {
		addr, err := metrics.StartMetricsServer(ctx, cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		logx.Log.Info().Str("addr", addr).Msg("metrics server listening")
	}

	store, err := state.Open(ctx, cfg.RedisURL, cfg.AgentName)
	if err != nil {
		return fmt.Errorf("state store: %w", err)
	}
	defer store.Close()

	if cfg.StatusAddr != "" {
		addr, err := StartStatusServer(ctx, cfg.StatusAddr, StatusHandler(store, Build))
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		logx.Log.Info().Str("addr", addr).Msg("status server listening")
	}

	dev := device.New(cfg.DeviceURL, device.Options{Rate: cfg.DeviceRate})
	a := New(cfg, store, dev)
	return a.Run(ctx)
}

// New assembles an agent. act may be nil to run without a device.
func New(cfg config.AgentConfig, store state.Store, act monitor.Actuator) *Agent {
	a := &Agent{
		cfg:     cfg,
		store:   store,
		monitor: monitor.New(cfg.Monitor, act, store),
	}
	if cfg.Weather.APIKey != "" {
		a.weather = weather.New(cfg.Weather.BaseURL, cfg.Weather.APIKey)
	}
	return a
}

// Run drives sessions, reconnecting when configured, until the script
// completes or ctx ends.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	monDone := make(chan struct{})
	go func() {
		_ = a.monitor.Run(ctx)
		close(monDone)
	}()
	defer func() { <-monDone }()
	defer cancel()

	if a.weather != nil {
		c, err := a.startWeather(ctx)
		if err != nil {
			return err
		}
		defer func() { <-c.Stop().Done() }()
	}

	err := reconnect.Run(ctx, a.cfg.Reconnect, a.session)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (a *Agent) startWeather(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(a.cfg.Weather.Schedule, func() { a.refreshWeather(ctx) })
	if err != nil {
		return nil, fmt.Errorf("weather schedule %q: %w", a.cfg.Weather.Schedule, err)
	}
	c.Start()
	logx.Log.Info().Str("city", a.cfg.Weather.City).Str("schedule", a.cfg.Weather.Schedule).Msg("weather polling scheduled")
	return c, nil
}

func (a *Agent) refreshWeather(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	r, err := a.weather.Current(ctx, a.cfg.Weather.City)
	if err != nil {
		logx.Log.Warn().Err(err).Str("city", a.cfg.Weather.City).Msg("weather fetch failed")
		return
	}
	logx.Log.Info().Str("city", r.City).Str("condition", r.Condition).Float64("celsius", r.Celsius()).Msg("weather updated")
	if err := a.store.Put(ctx, state.FieldWeather, r); err != nil {
		logx.Log.Warn().Err(err).Msg("store weather")
	}
}

// session runs one connection: handshake, subscribe, hold, teardown. It
// reports whether the connection was established.
func (a *Agent) session(ctx context.Context) (bool, error) {
	c, err := cortex.Connect(ctx, a.cfg.CortexURL,
		cortex.DialOptions{InsecureSkipVerify: a.cfg.InsecureTLS},
		cortex.Options{
			CallTimeout: a.cfg.CallTimeout,
			Credentials: cortex.Credentials{
				ClientID:     a.cfg.ClientID,
				ClientSecret: a.cfg.ClientSecret,
				License:      a.cfg.License,
			},
		})
	if err != nil {
		return false, err
	}
	a.registerListeners(c)

	// the dispatch loop outlives ctx so teardown calls can complete; Close
	// stops it
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(context.WithoutCancel(ctx)) }()

	err = a.script(ctx, c)
	_ = c.Close()
	if rerr := <-runErr; err == nil {
		err = rerr
	}
	return true, err
}

func (a *Agent) registerListeners(c *cortex.Client) {
	for _, stream := range a.cfg.Streams {
		switch stream {
		case "pow":
			c.Register(cortex.NewStreamListener(stream, a.monitor.OnPow))
		case "met":
			c.Register(cortex.NewStreamListener(stream, a.monitor.OnMet))
		default:
			c.Register(cortex.NewStreamListener(stream, func(s cortex.Sample) {
				logx.Log.Trace().Str("topic", stream).Int("cols", len(s)).Msg("sample")
			}))
		}
	}
	c.Register(cortex.NewHandlers().
		On(cortex.TopicClose, func(cortex.Event) { logx.Log.Info().Msg("cortex connection closed") }).
		OnFailure(cortex.ReplyTopic(cortex.IDSubscribe), func(ev cortex.Event) {
			logx.Log.Error().RawJSON("error", ev.Data).Msg("subscribe refused")
		}).
		MustBuild())
}

// script is prepare → subscribe → hold → unsubscribe → close.
func (a *Agent) script(ctx context.Context, c *cortex.Client) error {
	d := cortex.NewDriver(c)
	sess, err := d.Prepare(ctx, a.cfg.Headset, cortex.Credentials{}, a.cfg.Debit)
	if err != nil {
		return err
	}
	a.putSession(ctx, d)
	logx.Log.Info().Str("session", sess.ID).Str("headset", sess.Headset).Msg("session open")

	res, err := d.Subscribe(ctx, a.cfg.Streams)
	if err != nil {
		return err
	}
	if len(res.Success) == 0 {
		return errors.New("agent: no stream accepted")
	}
	a.putSession(ctx, d)

	hold := time.NewTimer(a.cfg.SessionDuration)
	defer hold.Stop()
	select {
	case <-hold.C:
	case <-ctx.Done():
	case <-c.Done():
		return cortex.ErrClosed
	}

	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	var errs []error
	if streams := d.Streams(); len(streams) > 0 {
		errs = append(errs, d.Unsubscribe(tctx, streams))
	}
	errs = append(errs, d.Close(tctx))
	a.putSession(tctx, d)
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logx.Log.Info().Dur("duration", a.cfg.SessionDuration).Msg("session complete")
	return nil
}

func (a *Agent) putSession(ctx context.Context, d *cortex.Driver) {
	st := struct {
		State   string   `json:"state"`
		Session string   `json:"session"`
		Streams []string `json:"streams"`
	}{d.State().String(), d.Session().ID, d.Streams()}
	if err := a.store.Put(ctx, state.FieldSessionState, st); err != nil {
		logx.Log.Warn().Err(err).Msg("store session state")
	}
}
