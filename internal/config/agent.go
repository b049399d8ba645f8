package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// WeatherConfig controls the periodic weather poll. An empty APIKey disables
// it.
type WeatherConfig struct {
	APIKey   string `yaml:"api_key"`
	City     string `yaml:"city"`
	Schedule string `yaml:"schedule"`
	BaseURL  string `yaml:"base_url"`
}

// MonitorConfig tunes the sample monitors.
type MonitorConfig struct {
	FlickerWindow    int     `yaml:"flicker_window"`
	FlickerThreshold float64 `yaml:"flicker_threshold"`
	MaxWarnings      int     `yaml:"max_warnings"`
	MotorSpeed       int     `yaml:"motor_speed"`
}

// AgentConfig holds configuration for the monitoring agent.
type AgentConfig struct {
	AgentName       string        `yaml:"agent_name"`
	CortexURL       string        `yaml:"cortex_url"`
	ClientID        string        `yaml:"client_id"`
	ClientSecret    string        `yaml:"client_secret"`
	License         string        `yaml:"license"`
	Debit           int           `yaml:"debit"`
	Headset         string        `yaml:"headset"`
	Streams         []string      `yaml:"streams"`
	SessionDuration time.Duration `yaml:"session_duration"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
	InsecureTLS     bool          `yaml:"insecure_tls"`
	DeviceURL       string        `yaml:"device_url"`
	DeviceRate      float64       `yaml:"device_rate"`
	Weather         WeatherConfig `yaml:"weather"`
	Monitor         MonitorConfig `yaml:"monitor"`
	RedisURL        string        `yaml:"redis_url"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	StatusAddr      string        `yaml:"status_addr"`
	Reconnect       bool          `yaml:"reconnect"`
	LogLevel        string        `yaml:"log_level"`
	ConfigFile      string        `yaml:"-"`
}

// BindFlags populates the struct with defaults from environment variables and
// binds command line flags so main can call flag.Parse().
func (c *AgentConfig) BindFlags() {
	c.bind(flag.CommandLine)
}

func (c *AgentConfig) bind(fs *flag.FlagSet) {
	c.ConfigFile = getEnv("CONFIG_FILE", DefaultConfigPath("agent.yaml"))
	c.LogLevel = getEnv("LOG_LEVEL", "info")

	c.AgentName = getEnv("AGENT_NAME", "sfsb-"+uuid.NewString()[:8])
	c.CortexURL = getEnv("CORTEX_URL", "wss://localhost:6868")
	c.ClientID = getEnv("CORTEX_CLIENT_ID", "")
	c.ClientSecret = getEnv("CORTEX_CLIENT_SECRET", "")
	c.License = getEnv("CORTEX_LICENSE", "")
	c.Debit = getEnvInt("CORTEX_DEBIT", 0)
	c.Headset = getEnv("HEADSET_ID", "")
	c.Streams = splitComma(getEnv("STREAMS", "pow,met"))
	c.SessionDuration = getEnvDuration("SESSION_DURATION", 5*time.Minute)
	c.CallTimeout = getEnvDuration("CALL_TIMEOUT", 30*time.Second)
	c.InsecureTLS = getEnvBool("CORTEX_INSECURE_TLS", true)
	c.DeviceURL = getEnv("DEVICE_URL", "http://127.0.0.1:5000")
	c.DeviceRate = getEnvFloat("DEVICE_RATE", 5)
	c.Weather = WeatherConfig{
		APIKey:   getEnv("WEATHER_API_KEY", ""),
		City:     getEnv("WEATHER_CITY", "Montreal"),
		Schedule: getEnv("WEATHER_SCHEDULE", "@every 5m"),
		BaseURL:  getEnv("WEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5"),
	}
	c.Monitor = MonitorConfig{
		FlickerWindow:    getEnvInt("FLICKER_WINDOW", 11),
		FlickerThreshold: getEnvFloat("FLICKER_THRESHOLD", 20),
		MaxWarnings:      getEnvInt("FLICKER_MAX_WARNINGS", 5),
		MotorSpeed:       getEnvInt("MOTOR_SPEED", 50),
	}
	c.RedisURL = getEnv("REDIS_URL", "")
	c.MetricsAddr = metricsAddr(getEnv("METRICS_PORT", ""))
	c.StatusAddr = getEnv("STATUS_ADDR", "")
	c.Reconnect = getEnvBool("RECONNECT", false)

	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "agent config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.StringVar(&c.AgentName, "agent-name", c.AgentName, "agent display name shown in logs")
	fs.StringVar(&c.CortexURL, "cortex-url", c.CortexURL, "Cortex websocket URL")
	fs.StringVar(&c.ClientID, "client-id", c.ClientID, "Cortex application client id")
	fs.StringVar(&c.ClientSecret, "client-secret", c.ClientSecret, "Cortex application client secret")
	fs.StringVar(&c.License, "license", c.License, "license id used by authorize")
	fs.IntVar(&c.Debit, "debit", c.Debit, "number of sessions to debit on authorize")
	fs.StringVar(&c.Headset, "headset", c.Headset, "headset id; first available when empty")
	fs.Func("streams", "comma separated data streams to subscribe", func(v string) error {
		c.Streams = splitComma(v)
		return nil
	})
	fs.DurationVar(&c.SessionDuration, "session-duration", c.SessionDuration, "how long to stay subscribed")
	fs.Func("call-timeout", "per-call timeout in seconds or as a duration (negative disables)", func(v string) error {
		d, err := parseDuration(v)
		if err != nil {
			return err
		}
		c.CallTimeout = d
		return nil
	})
	fs.BoolVar(&c.InsecureTLS, "insecure-tls", c.InsecureTLS, "accept the self-signed certificate of the local Cortex service")
	fs.StringVar(&c.DeviceURL, "device-url", c.DeviceURL, "device service base URL")
	fs.Float64Var(&c.DeviceRate, "device-rate", c.DeviceRate, "maximum device requests per second")
	fs.StringVar(&c.Weather.APIKey, "weather-api-key", c.Weather.APIKey, "OpenWeatherMap API key (weather polling disabled when empty)")
	fs.StringVar(&c.Weather.City, "weather-city", c.Weather.City, "city to poll weather for")
	fs.StringVar(&c.Weather.Schedule, "weather-schedule", c.Weather.Schedule, "cron schedule of the weather poll")
	fs.StringVar(&c.RedisURL, "redis-url", c.RedisURL, "redis URL for shared state (in-memory when empty)")
	fs.StringVar(&c.MetricsAddr, "metrics-port", c.MetricsAddr, "Prometheus metrics listen address or port (disabled when empty; e.g. 127.0.0.1:9090 or 9090)")
	fs.StringVar(&c.StatusAddr, "status-addr", c.StatusAddr, "listen address of the /status endpoint (disabled when empty)")
	fs.BoolVar(&c.Reconnect, "reconnect", c.Reconnect, "reconnect to Cortex on failure")
	fs.BoolVar(&c.Reconnect, "r", c.Reconnect, "short for --reconnect")
}

// LoadFile populates the config from a YAML file. Fields already set remain
// unless overwritten by corresponding entries in the file.
func (c *AgentConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return err
	}
	c.MetricsAddr = metricsAddr(c.MetricsAddr)
	return nil
}

// Validate reports settings the agent cannot run without.
func (c *AgentConfig) Validate() error {
	var errs []error
	if c.ClientID == "" || c.ClientSecret == "" {
		errs = append(errs, errors.New("client id and secret are required"))
	}
	if !strings.HasPrefix(c.CortexURL, "ws://") && !strings.HasPrefix(c.CortexURL, "wss://") {
		errs = append(errs, fmt.Errorf("cortex url must use ws:// or wss://: %q", c.CortexURL))
	}
	if len(c.Streams) == 0 {
		errs = append(errs, errors.New("at least one stream is required"))
	}
	if c.Monitor.FlickerWindow <= 0 {
		errs = append(errs, errors.New("flicker window must be positive"))
	}
	return errors.Join(errs...)
}
