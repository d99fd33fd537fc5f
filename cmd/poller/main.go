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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/reeflab/reefcore/internal/bootstrap"
	"github.com/reeflab/reefcore/internal/clock"
	"github.com/reeflab/reefcore/internal/drivers"
	"github.com/reeflab/reefcore/internal/poller"
)

func main() {
	rt, err := bootstrap.Setup("poller", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer rt.Close()

	registry := drivers.NewRegistry()
	registerDefaultDrivers(registry)

	cl := clock.Real{}
	worker := poller.NewWorker(
		rt.Store,
		registry,
		cl,
		rt.Logger.WithName("poller"),
		rt.Config.Poller.RefreshInterval,
	)
	sweeper := poller.NewSweeper(
		rt.Store,
		cl,
		rt.Logger.WithName("sweeper"),
		rt.Config.HistoryRetention.Days,
		rt.Config.Poller.SweepInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := sweeper.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			rt.Logger.Error(err, "sweeper exited")
		}
	}()

	if err := worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Logger.Error(err, "poller worker exited")
		os.Exit(1)
	}
	rt.Logger.Info("poller worker stopped")
}

// registerDefaultDrivers installs the software sensor for every known
// sensor device type. Hardware integrations replace these registrations
// in their own builds.
func registerDefaultDrivers(registry *drivers.Registry) {
	sim := drivers.NewSimulated()
	for _, deviceType := range []string{"temperature_sensor", "ph_sensor", "salinity_sensor", "flow_sensor", "simulated"} {
		registry.RegisterDriver(deviceType, sim)
	}
}
