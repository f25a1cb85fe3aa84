package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/althold/cmd/althold/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	var (
		configPath string
		target     float64
		probe      int
	)
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.Float64Var(&target, "target", 0, "Target altitude in meters, overrides mission.targetAltitude")
	flag.IntVar(&probe, "probe", 0, "Print this many rangefinder samples and exit without flying")
	flag.Parse()

	if configPath == "" {
		logger.Error("no configuration file provided")
		os.Exit(1)
	}

	config, err := app.LoadConfig(configPath)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
		os.Exit(1)
	}

	if target != 0 {
		config.Mission.TargetAltitude = target
		if err = config.Validate(); err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
	}

	logLevel.Set(config.Settings.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if probe > 0 {
		err = app.Probe(ctx, config, probe, os.Stdout, logger)
	} else {
		err = app.Run(ctx, config, logger)
	}

	if err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
