package config

import (
	"flag"
	"os"

	"gopkg.in/yaml.v3"
)

// DeviceConfig holds configuration for the simulated device service.
type DeviceConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MetricsAddr    string   `yaml:"metrics_addr"`
	LogLevel       string   `yaml:"log_level"`
	ConfigFile     string   `yaml:"-"`
}

// BindFlags populates the struct with defaults from environment variables and
// binds command line flags so main can call flag.Parse().
func (c *DeviceConfig) BindFlags() {
	c.bind(flag.CommandLine)
}

func (c *DeviceConfig) bind(fs *flag.FlagSet) {
	c.ConfigFile = getEnv("CONFIG_FILE", DefaultConfigPath("device.yaml"))
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.Addr = getEnv("DEVICE_ADDR", ":5000")
	c.AllowedOrigins = splitComma(getEnv("ALLOWED_ORIGINS", "*"))
	c.MetricsAddr = metricsAddr(getEnv("METRICS_PORT", ""))

	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "device config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP listen address")
	fs.Func("allowed-origins", "comma separated CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	fs.StringVar(&c.MetricsAddr, "metrics-port", c.MetricsAddr, "Prometheus metrics listen address or port (disabled when empty)")
}

// LoadFile populates the config from a YAML file. Fields already set remain
// unless overwritten by corresponding entries in the file.
func (c *DeviceConfig) LoadFile(path string) error {
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
