/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"milestone-escrow-go/internal/clock"
	"milestone-escrow-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DueLister finds SUBMITTED milestones whose review window has closed.
type DueLister interface {
	ListDueAutoReleases(ctx context.Context, now time.Time, limit int) ([]models.Milestone, error)
}

// Approver force-approves one milestone, reporting whether it released.
type Approver interface {
	ForceApprove(ctx context.Context, milestoneId string) (bool, error)
}

// AutoReleaserConfig contains configuration for AutoReleaser
type AutoReleaserConfig struct {
	Store     DueLister
	Approver  Approver
	Clock     clock.Clock
	Interval  time.Duration
	BatchSize int
	Workers   int
}

// AutoReleaser periodically approves milestones the client never reviewed.
type AutoReleaser struct {
	store     DueLister
	approver  Approver
	clock     clock.Clock
	interval  time.Duration
	batchSize int
	workers   int

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewAutoReleaser(cfg AutoReleaserConfig) *AutoReleaser {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &AutoReleaser{
		store:     cfg.Store,
		approver:  cfg.Approver,
		clock:     cfg.Clock,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		workers:   workers,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start runs a sweep immediately and then once per interval.
func (a *AutoReleaser) Start(ctx context.Context) error {
	if a.interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %v", a.interval)
	}
	go a.pollLoop(ctx)

	zap.L().Info("Auto-release scheduler started",
		zap.Duration("interval", a.interval),
		zap.Int("batch_size", a.batchSize),
		zap.Int("workers", a.workers))
	return nil
}

// Stop waits for the in-flight sweep to finish.
func (a *AutoReleaser) Stop() {
	zap.L().Info("Stopping auto-release scheduler")
	close(a.stopChan)
	<-a.doneChan
	zap.L().Info("Auto-release scheduler stopped")
}

func (a *AutoReleaser) pollLoop(ctx context.Context) {
	defer close(a.doneChan)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.sweepAndLog(ctx)

	for {
		select {
		case <-ticker.C:
			a.sweepAndLog(ctx)
		case <-a.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (a *AutoReleaser) sweepAndLog(ctx context.Context) {
	result, err := a.Sweep(ctx)
	if err != nil {
		zap.L().Error("Auto-release sweep failed", zap.Error(err))
		return
	}
	if result.Scanned > 0 {
		zap.L().Info("Auto-release sweep finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("released", result.Released),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed))
	}
}

// Sweep force-approves every milestone due at the current instant. A
// failure on one milestone is logged and does not stop the others; a
// milestone that failed stays due and is retried next sweep.
func (a *AutoReleaser) Sweep(ctx context.Context) (models.SweepResult, error) {
	now := a.clock.Now()
	due, err := a.store.ListDueAutoReleases(ctx, now, a.batchSize)
	if err != nil {
		return models.SweepResult{}, fmt.Errorf("unable to list due milestones: %w", err)
	}

	var released, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for _, m := range due {
		g.Go(func() error {
			ok, err := a.approver.ForceApprove(gctx, m.Id)
			switch {
			case err != nil:
				failed.Add(1)
				zap.L().Error("Auto-release failed",
					zap.String("milestone_id", m.Id),
					zap.Timep("auto_release_at", m.AutoReleaseAt),
					zap.Error(fmt.Errorf("%w: %w", models.ErrSchedulerAnomaly, err)))
			case ok:
				released.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return models.SweepResult{
		Scanned:  len(due),
		Released: int(released.Load()),
		Skipped:  int(skipped.Load()),
		Failed:   int(failed.Load()),
	}, nil
}
