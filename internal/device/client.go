// Package device talks to the GPIO service that drives the alert LED and
// the motor.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/gaspardpetit/sfsb/internal/logx"
	"github.com/gaspardpetit/sfsb/internal/metrics"
)

// Reply statuses.
const (
	StatusSuccess = "Success"
	StatusFail    = "Fail"
)

// Endpoint paths.
const (
	PathLEDOn    = "/led/on"
	PathLEDOff   = "/led/off"
	PathSetMotor = "/motor/set_speed"
	PathGetMotor = "/motor/get_speed"
)

// MaxMotorSpeed is the full PWM duty cycle.
const MaxMotorSpeed = 100

const (
	defaultRate      = 5
	defaultBurst     = 5
	defaultFailures  = 3
	defaultOpenDelay = 30 * time.Second
)

// Response is the body every endpoint returns.
type Response struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Value  *int   `json:"value,omitempty"`
}

// DeviceError is a request the device understood but refused.
type DeviceError struct {
	Endpoint string
	Reason   string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device: %s failed: %s", e.Endpoint, e.Reason)
}

// ErrInvalidSpeed is returned for speeds outside 0..MaxMotorSpeed.
var ErrInvalidSpeed = errors.New("device: motor speed out of range")

// Options tune the client. Zero values select defaults.
type Options struct {
	HTTPClient *http.Client
	// Rate limits requests per second; Burst is the bucket size.
	Rate  float64
	Burst int
	// MaxFailures consecutive transport failures open the breaker for
	// OpenTimeout.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Client calls the device service through a rate limiter and a circuit
// breaker. Refusals reported by the device do not count as breaker failures.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[Response]
}

// New returns a client for the service at baseURL.
func New(baseURL string, opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	if opts.Rate <= 0 {
		opts.Rate = defaultRate
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = defaultFailures
	}
	if opts.OpenTimeout == 0 {
		opts.OpenTimeout = defaultOpenDelay
	}
	maxFailures := opts.MaxFailures
	cb := gobreaker.NewCircuitBreaker[Response](gobreaker.Settings{
		Name:        "device",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logx.Log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			var de *DeviceError
			return err == nil || errors.As(err, &de)
		},
	})
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    opts.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		breaker: cb,
	}
}

// LEDOn lights the alert LED.
func (c *Client) LEDOn(ctx context.Context) error {
	_, err := c.do(ctx, PathLEDOn, nil)
	return err
}

// LEDOff turns the alert LED off.
func (c *Client) LEDOff(ctx context.Context) error {
	_, err := c.do(ctx, PathLEDOff, nil)
	return err
}

// SetMotorSpeed sets the motor duty cycle in percent.
func (c *Client) SetMotorSpeed(ctx context.Context, speed int) error {
	if speed < 0 || speed > MaxMotorSpeed {
		return fmt.Errorf("%w: %d", ErrInvalidSpeed, speed)
	}
	_, err := c.do(ctx, PathSetMotor, url.Values{"speed": {strconv.Itoa(speed)}})
	return err
}

// MotorSpeed returns the current motor duty cycle.
func (c *Client) MotorSpeed(ctx context.Context) (int, error) {
	resp, err := c.do(ctx, PathGetMotor, nil)
	if err != nil {
		return 0, err
	}
	if resp.Value == nil {
		return 0, &DeviceError{Endpoint: PathGetMotor, Reason: "no value in reply"}
	}
	return *resp.Value, nil
}

// State returns the breaker state for monitoring.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) do(ctx context.Context, path string, q url.Values) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}
	resp, err := c.breaker.Execute(func() (Response, error) {
		return c.get(ctx, path, q)
	})
	metrics.DeviceRequest(path, err == nil)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Response{}, fmt.Errorf("device %s: circuit open: %w", path, err)
		}
		logx.Log.Warn().Err(err).Str("endpoint", path).Msg("device request failed")
		return Response{}, err
	}
	logx.Log.Debug().Str("endpoint", path).Msg("device request ok")
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (Response, error) {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Response{}, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer res.Body.Close()

	var out Response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("device %s: decode reply (HTTP %d): %w", path, res.StatusCode, err)
	}
	if out.Status != StatusSuccess {
		reason := out.Reason
		if reason == "" {
			reason = "status " + strconv.Quote(out.Status)
		}
		return out, &DeviceError{Endpoint: path, Reason: reason}
	}
	return out, nil
}
