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
	"fmt"
	"time"

	"milestone-escrow-go/internal/models"
	"milestone-escrow-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const platformAccountId = "platform"

// Ledger applies transaction state changes inside one unit of work. Every
// method re-reads the row it changes and writes the matching journal
// posting through the same q.
type Ledger struct {
	q   store.Queries
	now time.Time
}

func NewLedger(q store.Queries, now time.Time) *Ledger {
	return &Ledger{q: q, now: now}
}

// RecordFunding opens an uncaptured PENDING transaction for a milestone.
func (l *Ledger) RecordFunding(ctx context.Context, milestoneId string, gross, fee decimal.Decimal) (*models.Transaction, error) {
	if !gross.IsPositive() {
		return nil, fmt.Errorf("%w: gross amount must be positive, got %s", models.ErrValidation, gross)
	}
	if fee.IsNegative() || fee.GreaterThan(gross) {
		return nil, fmt.Errorf("%w: fee %s must be between 0 and gross %s", models.ErrValidation, fee, gross)
	}

	m, err := l.q.GetMilestone(ctx, milestoneId)
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		Id:          uuid.New().String(),
		ProjectId:   m.ProjectId,
		MilestoneId: m.Id,
		Status:      models.TransactionPending,
		GrossAmount: gross,
		Fee:         fee,
		NetAmount:   gross.Sub(fee),
		Hold:        models.NoHold(),
		CreatedAt:   l.now,
		UpdatedAt:   l.now,
	}
	if err := l.q.InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}

	zap.L().Info("Funding transaction recorded",
		zap.String("transaction_id", tx.Id),
		zap.String("milestone_id", m.Id),
		zap.String("gross", gross.String()),
		zap.String("fee", fee.String()))
	return tx, nil
}

// ConfirmCapture marks gateway-confirmed funds on a PENDING transaction.
func (l *Ledger) ConfirmCapture(ctx context.Context, transactionId, paymentMethod string) (*models.Transaction, error) {
	tx, err := l.q.GetTransaction(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	if tx.Status != models.TransactionPending || tx.Captured() {
		return nil, invalidLedgerTransition(tx, "capture")
	}
	project, err := l.q.GetProject(ctx, tx.ProjectId)
	if err != nil {
		return nil, err
	}

	captured := l.now
	tx.CapturedAt = &captured
	tx.PaymentMethod = paymentMethod
	tx.UpdatedAt = l.now
	if err := l.q.UpdateTransaction(ctx, tx, models.TransactionPending); err != nil {
		return nil, err
	}

	err = l.q.InsertJournalEntries(ctx, store.Posting(tx.Id, store.EventMilestoneFunded, l.now, store.Leg{
		SourceType: store.AccountClient, SourceId: project.ClientId,
		DestinationType: store.AccountEscrow, DestinationId: tx.MilestoneId,
		Amount: tx.GrossAmount,
	}))
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Release moves a captured PENDING transaction to RELEASED. A zero hold
// leaves the funds immediately withdrawable.
func (l *Ledger) Release(ctx context.Context, transactionId string, hold time.Duration) (*models.Transaction, error) {
	tx, err := l.q.GetTransaction(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	if !tx.Status.CanTransitionTo(models.TransactionReleased) || !tx.Captured() {
		return nil, invalidLedgerTransition(tx, string(models.TransactionReleased))
	}
	project, err := l.q.GetProject(ctx, tx.ProjectId)
	if err != nil {
		return nil, err
	}

	releasedAt := l.now
	tx.Status = models.TransactionReleased
	tx.ReleasedAt = &releasedAt
	tx.Hold = models.NoHold()
	if hold > 0 {
		tx.Hold = models.HoldUntil(l.now.Add(hold))
	}
	tx.UpdatedAt = l.now
	if err := l.q.UpdateTransaction(ctx, tx, models.TransactionPending); err != nil {
		return nil, err
	}

	err = l.q.InsertJournalEntries(ctx, store.Posting(tx.Id, store.EventMilestoneReleased, l.now,
		store.Leg{
			SourceType: store.AccountEscrow, SourceId: tx.MilestoneId,
			DestinationType: store.AccountAnalyst, DestinationId: project.HiredAnalystId,
			Amount: tx.NetAmount,
		},
		store.Leg{
			SourceType: store.AccountEscrow, SourceId: tx.MilestoneId,
			DestinationType: store.AccountPlatformFees, DestinationId: platformAccountId,
			Amount: tx.Fee,
		},
	))
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Refund returns a PENDING transaction to the client.
func (l *Ledger) Refund(ctx context.Context, transactionId string) (*models.Transaction, error) {
	tx, err := l.q.GetTransaction(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	if !tx.Status.CanTransitionTo(models.TransactionRefunded) {
		return nil, invalidLedgerTransition(tx, string(models.TransactionRefunded))
	}
	project, err := l.q.GetProject(ctx, tx.ProjectId)
	if err != nil {
		return nil, err
	}

	tx.Status = models.TransactionRefunded
	tx.UpdatedAt = l.now
	if err := l.q.UpdateTransaction(ctx, tx, models.TransactionPending); err != nil {
		return nil, err
	}

	// Uncaptured funds never reached escrow, so there is nothing to reverse.
	if tx.Captured() {
		err = l.q.InsertJournalEntries(ctx, store.Posting(tx.Id, store.EventMilestoneRefunded, l.now, store.Leg{
			SourceType: store.AccountEscrow, SourceId: tx.MilestoneId,
			DestinationType: store.AccountClient, DestinationId: project.ClientId,
			Amount: tx.GrossAmount,
		}))
		if err != nil {
			return nil, err
		}
	}
	return tx, nil
}

// Fail closes an uncaptured PENDING transaction after a gateway rejection.
func (l *Ledger) Fail(ctx context.Context, transactionId string) (*models.Transaction, error) {
	tx, err := l.q.GetTransaction(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	if !tx.Status.CanTransitionTo(models.TransactionFailed) || tx.Captured() {
		return nil, invalidLedgerTransition(tx, string(models.TransactionFailed))
	}

	tx.Status = models.TransactionFailed
	tx.UpdatedAt = l.now
	if err := l.q.UpdateTransaction(ctx, tx, models.TransactionPending); err != nil {
		return nil, err
	}
	return tx, nil
}

func invalidLedgerTransition(tx *models.Transaction, target string) error {
	zap.L().Warn("Rejected ledger transition",
		zap.String("transaction_id", tx.Id),
		zap.String("status", string(tx.Status)),
		zap.Bool("captured", tx.Captured()),
		zap.String("target", target))
	return fmt.Errorf("%w: transaction %s is %s (captured=%t), cannot %s",
		models.ErrInvalidLedgerTransition, tx.Id, tx.Status, tx.Captured(), target)
}
