package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var env = os.Getenv

func getEnv(k, d string) string {
	if v := env(k); v != "" {
		return v
	}
	return d
}

func getEnvBool(k string, d bool) bool {
	if b, err := strconv.ParseBool(getEnv(k, "")); err == nil {
		return b
	}
	return d
}

func getEnvInt(k string, d int) int {
	if v, err := strconv.Atoi(getEnv(k, "")); err == nil {
		return v
	}
	return d
}

func getEnvFloat(k string, d float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(k, ""), 64); err == nil {
		return v
	}
	return d
}

// getEnvDuration accepts Go durations ("90s") and bare seconds ("90").
func getEnvDuration(k string, d time.Duration) time.Duration {
	v := getEnv(k, "")
	if v == "" {
		return d
	}
	if dur, err := parseDuration(v); err == nil {
		return dur
	}
	return d
}

func parseDuration(v string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func splitComma(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// metricsAddr turns a bare port into a listen address.
func metricsAddr(v string) string {
	if v != "" && !strings.Contains(v, ":") {
		return ":" + v
	}
	return v
}

// DotEnvPath is the .env file read before flags are bound: $ENV_FILE or
// ".env" in the working directory.
func DotEnvPath() string { return getEnv("ENV_FILE", ".env") }

// LoadDotEnv loads KEY=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// DefaultConfigPath returns the default config file path for the given
// component file name (e.g. "agent.yaml").
func DefaultConfigPath(name string) string {
	home, _ := os.UserHomeDir()
	return ResolveConfigPath(runtime.GOOS, home, os.Getenv("ProgramData"), name)
}

// ResolveConfigPath constructs a config file path for the given OS and base
// directories.
func ResolveConfigPath(goos, home, programData, name string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "sfsb", name)
	case "windows":
		if programData == "" {
			programData = "C:/ProgramData"
		}
		programData = strings.TrimRight(programData, "\\/")
		return filepath.Join(programData, "sfsb", name)
	default:
		return filepath.Join("/etc", "sfsb", name)
	}
}
