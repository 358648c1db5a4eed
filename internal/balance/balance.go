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

package balance

import (
	"context"
	"fmt"
	"time"

	"milestone-escrow-go/internal/models"
	"milestone-escrow-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reader is the subset of store.Queries the aggregator needs. Pass the store
// for a plain read or the q of a RunInTx callback to read inside a unit of
// work.
type Reader interface {
	ListAnalystTransactions(ctx context.Context, analystId string) ([]models.Transaction, error)
	ListAnalystWithdrawals(ctx context.Context, analystId string, limit int) ([]models.Withdrawal, error)
}

var _ Reader = (store.Queries)(nil)

// Compute derives an analyst's balance from ledger and withdrawal rows at now.
// It never returns a negative Available; a negative raw value is logged as an
// anomaly and clamped to zero.
func Compute(analystId string, txs []models.Transaction, withdrawals []models.Withdrawal, now time.Time) models.BalanceSummary {
	var (
		total, matured, held decimal.Decimal
		withdrawn, pending   decimal.Decimal
		next                 *models.NextRelease
	)

	for _, tx := range txs {
		if tx.Status != models.TransactionReleased {
			continue
		}
		total = total.Add(tx.NetAmount)
		if tx.Hold.Matured(now) {
			matured = matured.Add(tx.NetAmount)
			continue
		}
		held = held.Add(tx.NetAmount)
		until, _ := tx.Hold.Until()
		if next == nil || until.Before(next.AvailableAt) {
			next = &models.NextRelease{Amount: tx.NetAmount, AvailableAt: until}
		}
	}

	// Withdrawals count at their requested amount: the fee comes out of the
	// analyst's earnings, as in the journal.
	for _, w := range withdrawals {
		switch {
		case w.Status == models.WithdrawalCompleted:
			withdrawn = withdrawn.Add(w.Amount)
		case w.Status.Reserved():
			pending = pending.Add(w.Amount)
		}
	}

	available := matured.Sub(withdrawn).Sub(pending)
	if available.IsNegative() {
		zap.L().Error("Negative available balance clamped to zero",
			zap.String("analyst_id", analystId),
			zap.String("raw_available", available.String()),
			zap.String("matured", matured.String()),
			zap.String("withdrawn", withdrawn.String()),
			zap.String("pending", pending.String()),
			zap.Error(models.ErrSchedulerAnomaly))
		available = decimal.Zero
	}

	return models.BalanceSummary{
		Total:        total,
		Withdrawn:    withdrawn,
		Pending:      pending,
		SecurityHold: held,
		Available:    available,
		NextRelease:  next,
	}
}

// ForAnalyst loads the analyst's rows through r and computes the balance.
func ForAnalyst(ctx context.Context, r Reader, analystId string, now time.Time) (models.BalanceSummary, error) {
	txs, err := r.ListAnalystTransactions(ctx, analystId)
	if err != nil {
		return models.BalanceSummary{}, fmt.Errorf("unable to load ledger for %s: %w", analystId, err)
	}
	withdrawals, err := r.ListAnalystWithdrawals(ctx, analystId, 0)
	if err != nil {
		return models.BalanceSummary{}, fmt.Errorf("unable to load withdrawals for %s: %w", analystId, err)
	}
	return Compute(analystId, txs, withdrawals, now), nil
}
