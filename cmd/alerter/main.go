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

	"github.com/reeflab/reefcore/internal/alerting"
	"github.com/reeflab/reefcore/internal/bootstrap"
	"github.com/reeflab/reefcore/internal/clock"
	"github.com/reeflab/reefcore/internal/notify"
)

func main() {
	rt, err := bootstrap.Setup("alerter", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer rt.Close()

	dispatcher := notify.NewDispatcher(
		rt.Logger.WithName("notify"),
		rt.Config.RateLimits.MaxAlertsPerMinute,
	)
	if url := rt.Config.Notify.WebhookURL; url != "" {
		dispatcher.RegisterChannel(notify.NewWebhookChannel(url))
	}

	evaluator := alerting.NewEvaluator(
		rt.Store,
		clock.Real{},
		rt.Logger.WithName("alerter"),
		dispatcher,
		rt.Config.Alerting.Interval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := evaluator.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Logger.Error(err, "alert evaluator exited")
		os.Exit(1)
	}
	rt.Logger.Info("alert evaluator stopped")
}
