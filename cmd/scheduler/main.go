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
	"github.com/reeflab/reefcore/internal/scheduler"
)

func main() {
	rt, err := bootstrap.Setup("scheduler", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer rt.Close()

	registry := drivers.NewRegistry()
	registerDefaultDrivers(registry)

	worker := scheduler.NewWorker(
		rt.Store,
		scheduler.NewDriverExecutor(registry),
		clock.Real{},
		rt.Logger.WithName("scheduler"),
		rt.Config.Scheduler.Interval,
		rt.Config.Scheduler.DispatchLimit,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Logger.Error(err, "scheduler worker exited")
		os.Exit(1)
	}
	rt.Logger.Info("scheduler worker stopped")
}

// registerDefaultDrivers installs the software actuator for every known
// actuator device type. Hardware integrations replace these registrations
// in their own builds.
func registerDefaultDrivers(registry *drivers.Registry) {
	sim := drivers.NewSimulated()
	for _, deviceType := range []string{"outlet", "pwm_channel", "dosing_pump", "simulated"} {
		registry.RegisterActuator(deviceType, sim)
	}
}
