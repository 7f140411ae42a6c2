// Package main is a thin entrypoint that loads the service's calibration and tuning from a JSON
// config file, wires up the facade, and runs until its context is done.
package main

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/viam-modules/lidar-slam/config"
	"github.com/viam-modules/lidar-slam/facade"
)

// Versioning variables replaced by LD flags at build time.
var (
	Version     = "development"
	GitRevision = ""
)

func main() {
	goutils.ContextualMain(mainWithArgs, golog.NewLogger("lidar-slam"))
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	if Version != "" {
		logger.Infow("lidar-slam module", "version", Version, "git_rev", GitRevision)
	} else {
		logger.Info("lidar-slam module built from source; version unknown")
	}

	if len(args) < 2 {
		return errors.New("usage: lidar-slam <config.json>")
	}

	cfg, err := loadConfig(args[1])
	if err != nil {
		return errors.Wrap(err, "loading config")
	}

	f, err := facade.New(cfg)
	if err != nil {
		return errors.Wrap(err, "constructing facade")
	}

	var activeBackgroundWorkers sync.WaitGroup
	f.Start(ctx, &activeBackgroundWorkers)
	defer activeBackgroundWorkers.Wait()

	logger.Info("lidar-slam running; sensor ingestion is wired by the embedding caller via sensorprocess.Config")
	<-ctx.Done()
	return nil
}

// configFile is the on-disk shape a config.Config is loaded from.
type configFile struct {
	Calibration config.Calibration     `json:"calibration"`
	Tuning      map[string]interface{} `json:"tuning"`
}

func loadConfig(path string) (config.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return config.Config{}, err
	}
	var cf configFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return config.Config{}, errors.Wrap(err, "parsing config json")
	}
	tuning, err := config.FromMap(config.Default(), cf.Tuning)
	if err != nil {
		return config.Config{}, err
	}
	cfg := config.Config{Calibration: cf.Calibration, Tuning: tuning}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
