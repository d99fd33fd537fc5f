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

	"github.com/reeflab/reefcore/internal/api"
	"github.com/reeflab/reefcore/internal/bootstrap"
	"github.com/reeflab/reefcore/internal/clock"
	"github.com/reeflab/reefcore/internal/drivers"
	"github.com/reeflab/reefcore/internal/scheduler"
)

func main() {
	rt, err := bootstrap.Setup("apiserver", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer rt.Close()

	// The API executes manual actions itself, so it carries the same
	// actuator registry as the scheduler worker
	registry := drivers.NewRegistry()
	sim := drivers.NewSimulated()
	for _, deviceType := range []string{"outlet", "pwm_channel", "dosing_pump", "simulated"} {
		registry.RegisterActuator(deviceType, sim)
	}

	api.SetLogger(&rt.Zerolog)

	server := api.NewServer(api.ServerOptions{
		Store:    rt.Store,
		Config:   rt.Config,
		Executor: scheduler.NewDriverExecutor(registry),
		Clock:    clock.Real{},
		Port:     rt.Config.API.Port,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Logger.Error(err, "API server exited")
		os.Exit(1)
	}
	rt.Logger.Info("API server stopped")
}
