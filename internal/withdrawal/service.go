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

package withdrawal

import (
	"context"
	"errors"
	"fmt"

	"milestone-escrow-go/internal/balance"
	"milestone-escrow-go/internal/clock"
	"milestone-escrow-go/internal/locker"
	"milestone-escrow-go/internal/models"
	"milestone-escrow-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const payoutsAccountId = "payouts"

// Service runs the analyst payout lifecycle. Requests for one analyst are
// serialized so the balance check and the insert see the same ledger.
type Service struct {
	store  store.EscrowStore
	locker locker.Locker
	clock  clock.Clock
	fees   *models.FeeSchedule
	cfg    models.WithdrawalConfig
	mirror store.LedgerMirror
}

type Option func(*Service)

func WithMirror(m store.LedgerMirror) Option {
	return func(s *Service) { s.mirror = m }
}

func NewService(st store.EscrowStore, lk locker.Locker, clk clock.Clock, fees *models.FeeSchedule, cfg models.WithdrawalConfig, opts ...Option) *Service {
	s := &Service{store: st, locker: lk, clock: clk, fees: fees, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request reserves amount from the analyst's available balance and records a
// PENDING withdrawal to their current bank destination.
func (s *Service) Request(ctx context.Context, actor models.Actor, amount decimal.Decimal) (*models.Withdrawal, error) {
	if actor.Role != models.RoleAnalyst {
		return nil, fmt.Errorf("%w: only analysts can withdraw", models.ErrForbidden)
	}
	profile, err := s.store.GetAnalystProfile(ctx, actor.UserId)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if profile == nil || !profile.BankInfoComplete() {
		return nil, fmt.Errorf("%w: complete bank details before withdrawing", models.ErrIncompleteBankInfo)
	}

	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}
	if amount.LessThan(s.cfg.Minimum) {
		return nil, fmt.Errorf("%w: minimum is %s", models.ErrBelowMinimum, s.cfg.Minimum)
	}
	fee := s.fees.FeeFor(amount)
	if fee.GreaterThanOrEqual(amount) {
		return nil, fmt.Errorf("%w: fee %s consumes the whole amount", models.ErrValidation, fee)
	}

	release, err := s.locker.Acquire(ctx, locker.AnalystKey(actor.UserId))
	if err != nil {
		return nil, err
	}
	defer release()

	var w *models.Withdrawal
	err = s.store.RunInTx(ctx, func(q store.Queries) error {
		now := s.clock.Now()
		summary, err := balance.ForAnalyst(ctx, q, actor.UserId, now)
		if err != nil {
			return err
		}
		if amount.GreaterThan(summary.Available) {
			zap.L().Info("Withdrawal exceeds available balance",
				zap.String("analyst_id", actor.UserId),
				zap.String("amount", amount.String()),
				zap.String("available", summary.Available.String()))
			return fmt.Errorf("%w: requested %s, available %s",
				models.ErrInsufficientBalance, amount, summary.Available)
		}

		w = &models.Withdrawal{
			Id:                uuid.New().String(),
			AnalystId:         actor.UserId,
			Amount:            amount,
			Fee:               fee,
			NetAmount:         amount.Sub(fee),
			Status:            models.WithdrawalPending,
			BankName:          profile.BankName,
			BankAccountNumber: profile.BankAccountNumber,
			BankAccountName:   profile.BankAccountName,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := q.InsertWithdrawal(ctx, w); err != nil {
			return err
		}
		return q.InsertJournalEntries(ctx, store.Posting(w.Id, store.EventWithdrawalRequested, now, store.Leg{
			SourceType: store.AccountAnalyst, SourceId: w.AnalystId,
			DestinationType: store.AccountPayoutsPending, DestinationId: payoutsAccountId,
			Amount: w.Amount,
		}))
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal requested",
		zap.String("withdrawal_id", w.Id),
		zap.String("analyst_id", w.AnalystId),
		zap.String("amount", w.Amount.String()),
		zap.String("fee", w.Fee.String()))
	s.mirrorPost(ctx, store.EventWithdrawalRequested, w, func(m store.LedgerMirror) error {
		return m.WithdrawalRequested(ctx, w)
	})
	return w, nil
}

// Transition advances a withdrawal along PENDING -> PROCESSING -> COMPLETED,
// or to FAILED from either open state. FAILED returns the amount to the
// analyst's balance.
func (s *Service) Transition(ctx context.Context, actor models.Actor, withdrawalId string, to models.WithdrawalStatus, reason string) (*models.Withdrawal, error) {
	if actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: only operators can process withdrawals", models.ErrForbidden)
	}

	current, err := s.store.GetWithdrawal(ctx, withdrawalId)
	if err != nil {
		return nil, err
	}
	release, err := s.locker.Acquire(ctx, locker.AnalystKey(current.AnalystId))
	if err != nil {
		return nil, err
	}
	defer release()

	var w *models.Withdrawal
	err = s.store.RunInTx(ctx, func(q store.Queries) error {
		w, err = q.GetWithdrawal(ctx, withdrawalId)
		if err != nil {
			return err
		}
		from := w.Status
		if !from.CanTransitionTo(to) {
			zap.L().Warn("Rejected withdrawal transition",
				zap.String("withdrawal_id", w.Id),
				zap.String("from", string(from)),
				zap.String("to", string(to)))
			return fmt.Errorf("%w: withdrawal %s is %s, cannot move to %s",
				models.ErrInvalidWithdrawalTransition, w.Id, from, to)
		}

		now := s.clock.Now()
		w.Status = to
		w.UpdatedAt = now
		if to == models.WithdrawalCompleted || to == models.WithdrawalFailed {
			w.ProcessedAt = &now
		}
		if to == models.WithdrawalFailed {
			w.FailureReason = reason
		}
		if err := q.UpdateWithdrawal(ctx, w, from); err != nil {
			return err
		}

		switch to {
		case models.WithdrawalCompleted:
			return q.InsertJournalEntries(ctx, store.Posting(w.Id, store.EventWithdrawalCompleted, now, store.Leg{
				SourceType: store.AccountPayoutsPending, SourceId: payoutsAccountId,
				DestinationType: store.AccountPayoutsSent, DestinationId: payoutsAccountId,
				Amount: w.Amount,
			}))
		case models.WithdrawalFailed:
			return q.InsertJournalEntries(ctx, store.Posting(w.Id, store.EventWithdrawalFailed, now, store.Leg{
				SourceType: store.AccountPayoutsPending, SourceId: payoutsAccountId,
				DestinationType: store.AccountAnalyst, DestinationId: w.AnalystId,
				Amount: w.Amount,
			}))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal transitioned",
		zap.String("withdrawal_id", w.Id),
		zap.String("status", string(w.Status)))
	switch to {
	case models.WithdrawalCompleted:
		s.mirrorPost(ctx, store.EventWithdrawalCompleted, w, func(m store.LedgerMirror) error {
			return m.WithdrawalCompleted(ctx, w)
		})
	case models.WithdrawalFailed:
		s.mirrorPost(ctx, store.EventWithdrawalFailed, w, func(m store.LedgerMirror) error {
			return m.WithdrawalFailed(ctx, w)
		})
	}
	return w, nil
}

// Overview is the analyst's withdrawal page: balance, bank destination and
// recent history.
func (s *Service) Overview(ctx context.Context, actor models.Actor) (*models.WithdrawalOverview, error) {
	if actor.Role != models.RoleAnalyst {
		return nil, fmt.Errorf("%w: only analysts have earnings", models.ErrForbidden)
	}

	summary, err := balance.ForAnalyst(ctx, s.store, actor.UserId, s.clock.Now())
	if err != nil {
		return nil, err
	}
	history, err := s.store.ListAnalystWithdrawals(ctx, actor.UserId, s.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []models.Withdrawal{}
	}

	out := &models.WithdrawalOverview{Balance: summary, Withdrawals: history}
	profile, err := s.store.GetAnalystProfile(ctx, actor.UserId)
	switch {
	case err == nil:
		out.BankInfo = &models.BankInfo{
			BankName:          profile.BankName,
			BankAccountNumber: profile.BankAccountNumber,
			BankAccountName:   profile.BankAccountName,
		}
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}
	return out, nil
}

// Fees exposes the schedule for quoting.
func (s *Service) Fees() *models.FeeSchedule { return s.fees }

func (s *Service) mirrorPost(ctx context.Context, event string, w *models.Withdrawal, fn func(store.LedgerMirror) error) {
	if s.mirror == nil {
		return
	}
	if err := fn(s.mirror); err != nil {
		zap.L().Error("Failed to mirror ledger event",
			zap.String("event", event),
			zap.String("withdrawal_id", w.Id),
			zap.Error(err))
	}
}
