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

package escrow

import (
	"context"

	"milestone-escrow-go/internal/clock"
	"milestone-escrow-go/internal/locker"
	"milestone-escrow-go/internal/models"
	"milestone-escrow-go/internal/store"

	"go.uber.org/zap"
)

// Service owns the milestone state machine and the ledger transitions it
// drives. Every mutation holds the milestone lock and runs in one unit of
// work.
type Service struct {
	store  store.EscrowStore
	locker locker.Locker
	clock  clock.Clock
	cfg    models.EscrowConfig
	mirror store.LedgerMirror
}

type Option func(*Service)

// WithMirror posts committed money movements to an external ledger.
func WithMirror(m store.LedgerMirror) Option {
	return func(s *Service) { s.mirror = m }
}

func NewService(st store.EscrowStore, lk locker.Locker, clk clock.Clock, cfg models.EscrowConfig, opts ...Option) *Service {
	s := &Service{store: st, locker: lk, clock: clk, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mirrorPost runs after commit. Mirror failures are logged only; the local
// journal is authoritative.
func (s *Service) mirrorPost(ctx context.Context, event, reference string, fn func(store.LedgerMirror) error) {
	if s.mirror == nil {
		return
	}
	if err := fn(s.mirror); err != nil {
		zap.L().Error("Failed to mirror ledger event",
			zap.String("event", event),
			zap.String("reference", reference),
			zap.Error(err))
	}
}

func (s *Service) withMilestoneLock(ctx context.Context, milestoneId string, fn func() error) error {
	release, err := s.locker.Acquire(ctx, locker.MilestoneKey(milestoneId))
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
