// Package weather fetches current conditions from OpenWeatherMap.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gaspardpetit/sfsb/internal/metrics"
)

// DefaultBaseURL is the OpenWeatherMap 2.5 API root.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// Report is the subset of the current-weather reply the agent keeps.
type Report struct {
	City        string    `json:"city"`
	Condition   string    `json:"condition"`
	Description string    `json:"description"`
	TempKelvin  float64   `json:"temp_kelvin"`
	Humidity    int       `json:"humidity"`
	WindSpeed   float64   `json:"wind_speed"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Celsius converts the reported temperature.
func (r Report) Celsius() float64 { return r.TempKelvin - 273.15 }

// APIError is a non-200 reply from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("weather: HTTP %d: %s", e.StatusCode, e.Message)
}

// Client is a small OpenWeatherMap client.
type Client struct {
	BaseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

func New(base, apiKey string) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(base, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

type currentReply struct {
	Name    string `json:"name"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Message string `json:"message"`
}

// Current returns the current conditions for city ("Busan,KR").
func (c *Client) Current(ctx context.Context, city string) (Report, error) {
	r, err := c.current(ctx, city)
	metrics.WeatherFetch(err == nil)
	return r, err
}

func (c *Client) current(ctx context.Context, city string) (Report, error) {
	q := url.Values{"q": {city}, "appid": {c.apiKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/weather?"+q.Encode(), nil)
	if err != nil {
		return Report{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Report{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var v currentReply
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		if resp.StatusCode != http.StatusOK {
			return Report{}, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return Report{}, fmt.Errorf("weather: decode reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Report{}, &APIError{StatusCode: resp.StatusCode, Message: v.Message}
	}
	r := Report{
		City:       v.Name,
		TempKelvin: v.Main.Temp,
		Humidity:   v.Main.Humidity,
		WindSpeed:  v.Wind.Speed,
		FetchedAt:  c.now().UTC(),
	}
	if len(v.Weather) > 0 {
		r.Condition = v.Weather[0].Main
		r.Description = v.Weather[0].Description
	}
	return r, nil
}
