package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/glkvm/kvmapi/internal/cfgutil"
	"github.com/glkvm/kvmapi/kvmapid"
	"github.com/glkvm/kvmapi/kvmapid/config"
	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
)

var (
	configFile = ""
	listenAddr = ""
	verbose    = false
	jsonLog    = false
)

func main() {
	pflag.StringVarP(&configFile, "config", "c", configFile, "config file (.toml, .json or .yaml)")
	pflag.StringVarP(&listenAddr, "listen", "l", listenAddr, "listen address, overrides the config file")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose output")
	pflag.BoolVarP(&jsonLog, "json-log", "j", jsonLog, "log output as JSON to stdout")
	pflag.Parse()

	logger := setupLogging()
	slog.SetDefault(logger)

	cfg, err := config.Load(configFile)
	if err != nil {
		logger.Error(
			"failed to load config",
			"path", configFile,
			"err", err)
		os.Exit(1)
	}

	if listenAddr != "" {
		cfg.ListenAddr = cfgutil.EnvString(listenAddr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := kvmapid.Start(ctx, cfg, logger); err != nil {
		logger.Error("kvmapid exited", "err", err)
		os.Exit(1)
	}
}

func setupLogging() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if jsonLog {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:   level,
			NoColor: os.Getenv("NO_COLOR") != "",
		})
	}

	return slog.New(handler)
}
