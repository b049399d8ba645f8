package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gaspardpetit/sfsb/internal/agent"
	"github.com/gaspardpetit/sfsb/internal/config"
	"github.com/gaspardpetit/sfsb/internal/logx"
	"github.com/gaspardpetit/sfsb/internal/metrics"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := config.LoadDotEnv(config.DotEnvPath()); err != nil {
		logx.Log.Fatal().Err(err).Msg("load .env")
	}
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.AgentConfig
	cfg.BindFlags()
	flag.Parse()
	if *showVersion {
		fmt.Printf("sfsb version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	logx.Configure(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid config")
	}
	metrics.SetBuildInfo(version, buildSHA, buildDate)
	agent.Build = agent.VersionInfo{Version: version, BuildSHA: buildSHA, BuildDate: buildDate}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	logx.Log.Info().Str("agent", cfg.AgentName).Str("cortex", cfg.CortexURL).Strs("streams", cfg.Streams).
		Str("client_id", config.Mask(cfg.ClientID)).Str("license", config.Mask(cfg.License)).Msg("agent starting")
	if err := agent.Run(ctx, cfg); err != nil {
		logx.Log.Fatal().Err(err).Msg("agent stopped")
	}
}
