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
	"errors"
	"fmt"

	"milestone-escrow-go/internal/models"
	"milestone-escrow-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentOutcome is the ledger effect of a verified gateway event.
type PaymentOutcome string

const (
	OutcomeCaptured PaymentOutcome = "CAPTURED"
	OutcomeFailed   PaymentOutcome = "FAILED"
	OutcomeRefunded PaymentOutcome = "REFUNDED"
)

// ErrUnknownOrder means no funding transaction carries the event's order id.
// It wraps models.ErrNotFound.
var ErrUnknownOrder = fmt.Errorf("%w: unknown order", models.ErrNotFound)

// PaymentEvent is a verified, already-classified gateway notification.
type PaymentEvent struct {
	OrderId       string
	Outcome       PaymentOutcome
	PaymentMethod string
	GrossAmount   decimal.Decimal
	Receipt       models.NotificationReceipt
}

// ApplyPaymentEvent records the receipt and applies the outcome in one unit
// of work. Replays and events that no longer apply return
// models.ErrDuplicateNotification, which callers acknowledge as success.
func (s *Service) ApplyPaymentEvent(ctx context.Context, ev PaymentEvent) error {
	// The milestone id is needed for the lock before the unit of work starts.
	tx, err := s.store.GetTransaction(ctx, ev.OrderId)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, ev.OrderId)
	}
	if err != nil {
		return err
	}

	var (
		applied  *models.Transaction
		clientId string
	)
	err = s.withMilestoneLock(ctx, tx.MilestoneId, func() error {
		return s.store.RunInTx(ctx, func(q store.Queries) error {
			if err := q.RecordNotification(ctx, ev.Receipt); err != nil {
				return err
			}

			current, err := q.GetTransaction(ctx, ev.OrderId)
			if err != nil {
				return err
			}
			if !ev.GrossAmount.IsZero() && !ev.GrossAmount.Equal(current.GrossAmount) {
				zap.L().Warn("Gateway gross amount mismatch",
					zap.String("order_id", ev.OrderId),
					zap.String("expected", current.GrossAmount.String()),
					zap.String("received", ev.GrossAmount.String()))
				return fmt.Errorf("%w: gross amount %s does not match order %s",
					models.ErrValidation, ev.GrossAmount, current.GrossAmount)
			}
			project, err := q.GetProject(ctx, current.ProjectId)
			if err != nil {
				return err
			}
			clientId = project.ClientId

			ledger := NewLedger(q, s.clock.Now())
			switch ev.Outcome {
			case OutcomeCaptured:
				if current.Status != models.TransactionPending || current.Captured() {
					return stale(current, ev)
				}
				if applied, err = ledger.ConfirmCapture(ctx, current.Id, ev.PaymentMethod); err != nil {
					return err
				}
				return s.markFunded(ctx, q, current.MilestoneId)

			case OutcomeFailed:
				if current.Status != models.TransactionPending || current.Captured() {
					return stale(current, ev)
				}
				_, err = ledger.Fail(ctx, current.Id)
				return err

			case OutcomeRefunded:
				switch current.Status {
				case models.TransactionRefunded, models.TransactionFailed:
					return stale(current, ev)
				case models.TransactionReleased:
					zap.L().Error("Refund received for released funds",
						zap.String("order_id", current.Id),
						zap.String("milestone_id", current.MilestoneId))
					return fmt.Errorf("%w: transaction %s already released", models.ErrInvalidLedgerTransition, current.Id)
				}
				wasCaptured := current.Captured()
				refunded, err := ledger.Refund(ctx, current.Id)
				if err != nil {
					return err
				}
				if wasCaptured {
					applied = refunded
				}
				return nil
			}
			return fmt.Errorf("%w: unknown payment outcome %q", models.ErrValidation, ev.Outcome)
		})
	})
	if err != nil {
		return err
	}

	if applied != nil {
		switch ev.Outcome {
		case OutcomeCaptured:
			s.mirrorPost(ctx, store.EventMilestoneFunded, applied.Id, func(m store.LedgerMirror) error {
				return m.MilestoneFunded(ctx, applied, clientId)
			})
		case OutcomeRefunded:
			s.mirrorPost(ctx, store.EventMilestoneRefunded, applied.Id, func(m store.LedgerMirror) error {
				return m.MilestoneRefunded(ctx, applied, clientId)
			})
		}
	}
	zap.L().Info("Payment event applied",
		zap.String("order_id", ev.OrderId),
		zap.String("outcome", string(ev.Outcome)))
	return nil
}

func (s *Service) markFunded(ctx context.Context, q store.Queries, milestoneId string) error {
	m, err := q.GetMilestone(ctx, milestoneId)
	if err != nil {
		return err
	}
	if m.Status != models.MilestonePending {
		zap.L().Warn("Captured funds for milestone that is no longer pending",
			zap.String("milestone_id", m.Id),
			zap.String("status", string(m.Status)))
		return nil
	}
	now := s.clock.Now()
	m.Status = models.MilestoneFunded
	m.FundedAt = &now
	m.UpdatedAt = now
	return q.UpdateMilestone(ctx, m, models.MilestonePending)
}

// stale reports an event the transaction has already moved past. The whole
// unit rolls back so the receipt is not kept either; a later replay lands
// here again.
func stale(tx *models.Transaction, ev PaymentEvent) error {
	zap.L().Info("Ignoring stale payment event",
		zap.String("order_id", tx.Id),
		zap.String("status", string(tx.Status)),
		zap.Bool("captured", tx.Captured()),
		zap.String("outcome", string(ev.Outcome)))
	return fmt.Errorf("%w: order %s is %s", models.ErrDuplicateNotification, tx.Id, tx.Status)
}

// IsUnknownOrder reports whether err means the order does not exist here.
func IsUnknownOrder(err error) bool {
	return errors.Is(err, ErrUnknownOrder)
}

// IsDuplicate reports whether err means the event was already handled.
func IsDuplicate(err error) bool {
	return errors.Is(err, models.ErrDuplicateNotification)
}
