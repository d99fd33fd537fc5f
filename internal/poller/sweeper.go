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

package poller

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/reeflab/reefcore/internal/clock"
	"github.com/reeflab/reefcore/internal/store"
)

// Sweeper periodically removes readings past the retention window
type Sweeper struct {
	store         store.Store
	clock         clock.Clock
	logger        logr.Logger
	retentionDays int
	interval      time.Duration
	stopCh        chan struct{}
	running       bool
	mu            sync.Mutex
}

// NewSweeper creates a reading retention sweeper
func NewSweeper(st store.Store, cl clock.Clock, logger logr.Logger, retentionDays int, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:         st,
		clock:         cl,
		logger:        logger,
		retentionDays: retentionDays,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the sweeper loop
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting reading sweeper", "retentionDays", s.retentionDays, "interval", s.interval)

	// Run immediately on start
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop halts the sweeper
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stopCh)
		s.running = false
	}
}

// SetRetentionDays changes the retention period
func (s *Sweeper) SetRetentionDays(days int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retentionDays = days
}

func (s *Sweeper) sweep(ctx context.Context) {
	s.mu.Lock()
	retentionDays := s.retentionDays
	s.mu.Unlock()

	cutoff := s.clock.Now().AddDate(0, 0, -retentionDays)
	count, err := s.store.PruneReadings(ctx, cutoff)
	if err != nil {
		s.logger.Error(err, "failed to prune readings")
		return
	}

	if count > 0 {
		s.logger.Info("pruned readings", "recordsDeleted", count, "cutoff", cutoff)
	}
}
