/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package bootstrap holds the startup plumbing shared by every worker
// binary: env files, flags, config, logging, and the store connection.
package bootstrap

import (
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/reeflab/reefcore/internal/config"
	"github.com/reeflab/reefcore/internal/store"
)

// Runtime holds the initialized process-wide dependencies
type Runtime struct {
	Config  *config.Config
	Store   store.Store
	Logger  logr.Logger
	Zerolog zerolog.Logger
}

// Setup parses flags, loads configuration, configures logging, and opens
// the store. The returned runtime is ready for the worker to use.
func Setup(name string, args []string) (*Runtime, error) {
	// A local .env is a convenience for development; absence is fine
	_ = godotenv.Load()

	flags := pflag.NewFlagSet(name, pflag.ExitOnError)
	config.BindFlags(flags)
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Str("component", name).
		Logger()
	logger := zerologr.New(&zl)

	if cfg.ConfigFileUsed() != "" {
		logger.Info("configuration loaded", "file", cfg.ConfigFileUsed(), "level", cfg.LogLevel)
	} else {
		logger.Info("no config file found, using defaults and flags", "level", cfg.LogLevel)
	}

	st, err := store.NewStore(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if err := st.Init(); err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	return &Runtime{
		Config:  cfg,
		Store:   st,
		Logger:  logger,
		Zerolog: zl,
	}, nil
}

// Close releases the runtime's resources
func (r *Runtime) Close() {
	if err := r.Store.Close(); err != nil {
		r.Logger.Error(err, "failed to close store")
	}
}
