package formance

import (
	"context"
	"fmt"

	"milestone-escrow-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Numscript templates. Metadata is set inside each script so the Formance
// transaction is self-describing.
// ---------------------------------------------------------------------------

const numscriptMilestoneFunded = `vars {
  asset $asset
  number $amount
  account $client_id
  account $milestone_id
  string $order_id
  string $payment_method
}

send [$asset $amount] (
  source = @clients:$client_id allowing unbounded overdraft
  destination = @escrow:milestones:$milestone_id
)

set_tx_meta("event_type", "milestone_funded")
set_tx_meta("order_id", $order_id)
set_tx_meta("payment_method", $payment_method)
`

const numscriptMilestoneReleased = `vars {
  asset $asset
  number $net
  account $analyst_id
  account $milestone_id
  string $order_id
  string $available_at
}

send [$asset $net] (
  source = @escrow:milestones:$milestone_id
  destination = @analysts:$analyst_id:earnings
)

set_tx_meta("event_type", "milestone_released")
set_tx_meta("order_id", $order_id)
set_tx_meta("available_at", $available_at)
`

const numscriptMilestoneReleasedWithFee = `vars {
  asset $asset
  number $net
  number $fee
  account $analyst_id
  account $milestone_id
  string $order_id
  string $available_at
}

send [$asset $net] (
  source = @escrow:milestones:$milestone_id
  destination = @analysts:$analyst_id:earnings
)

send [$asset $fee] (
  source = @escrow:milestones:$milestone_id
  destination = @platform:fees
)

set_tx_meta("event_type", "milestone_released")
set_tx_meta("order_id", $order_id)
set_tx_meta("available_at", $available_at)
`

const numscriptMilestoneRefunded = `vars {
  asset $asset
  number $amount
  account $client_id
  account $milestone_id
  string $order_id
}

send [$asset $amount] (
  source = @escrow:milestones:$milestone_id
  destination = @clients:$client_id
)

set_tx_meta("event_type", "milestone_refunded")
set_tx_meta("order_id", $order_id)
`

const numscriptWithdrawalRequested = `vars {
  asset $asset
  number $amount
  account $analyst_id
  string $withdrawal_id
  string $bank_name
}

send [$asset $amount] (
  source = @analysts:$analyst_id:earnings
  destination = @analysts:$analyst_id:payouts:pending
)

set_tx_meta("event_type", "withdrawal_requested")
set_tx_meta("withdrawal_id", $withdrawal_id)
set_tx_meta("bank_name", $bank_name)
`

const numscriptWithdrawalCompleted = `vars {
  asset $asset
  number $amount
  account $analyst_id
  string $withdrawal_id
}

send [$asset $amount] (
  source = @analysts:$analyst_id:payouts:pending
  destination = @payouts:sent
)

set_tx_meta("event_type", "withdrawal_completed")
set_tx_meta("withdrawal_id", $withdrawal_id)
`

const numscriptWithdrawalFailed = `vars {
  asset $asset
  number $amount
  account $analyst_id
  string $withdrawal_id
  string $failure_reason
}

send [$asset $amount] (
  source = @analysts:$analyst_id:payouts:pending
  destination = @analysts:$analyst_id:earnings
)

set_tx_meta("event_type", "withdrawal_failed")
set_tx_meta("withdrawal_id", $withdrawal_id)
set_tx_meta("failure_reason", $failure_reason)
`

// MilestoneFunded moves captured funds from the client into milestone escrow.
func (s *Service) MilestoneFunded(ctx context.Context, tx *models.Transaction, clientId string) error {
	return s.post(ctx, tx.Id+"-funded", numscriptMilestoneFunded, map[string]string{
		"asset":          formanceAsset(ledgerAsset),
		"amount":         smallestUnits(tx.GrossAmount),
		"client_id":      clientId,
		"milestone_id":   tx.MilestoneId,
		"order_id":       tx.Id,
		"payment_method": tx.PaymentMethod,
	})
}

// MilestoneReleased pays the analyst's net share and the platform fee out of escrow.
func (s *Service) MilestoneReleased(ctx context.Context, tx *models.Transaction, analystId string) error {
	availableAt := "immediate"
	if until, held := tx.Hold.Until(); held {
		availableAt = until.Format("2006-01-02T15:04:05Z07:00")
	}
	vars := map[string]string{
		"asset":        formanceAsset(ledgerAsset),
		"net":          smallestUnits(tx.NetAmount),
		"analyst_id":   analystId,
		"milestone_id": tx.MilestoneId,
		"order_id":     tx.Id,
		"available_at": availableAt,
	}
	script := numscriptMilestoneReleased
	if tx.Fee.IsPositive() {
		script = numscriptMilestoneReleasedWithFee
		vars["fee"] = smallestUnits(tx.Fee)
	}
	return s.post(ctx, tx.Id+"-released", script, vars)
}

// MilestoneRefunded returns escrowed funds to the client.
func (s *Service) MilestoneRefunded(ctx context.Context, tx *models.Transaction, clientId string) error {
	return s.post(ctx, tx.Id+"-refunded", numscriptMilestoneRefunded, map[string]string{
		"asset":        formanceAsset(ledgerAsset),
		"amount":       smallestUnits(tx.GrossAmount),
		"client_id":    clientId,
		"milestone_id": tx.MilestoneId,
		"order_id":     tx.Id,
	})
}

// WithdrawalRequested reserves earnings for a payout.
func (s *Service) WithdrawalRequested(ctx context.Context, w *models.Withdrawal) error {
	return s.post(ctx, w.Id+"-requested", numscriptWithdrawalRequested, map[string]string{
		"asset":         formanceAsset(ledgerAsset),
		"amount":        smallestUnits(w.Amount),
		"analyst_id":    w.AnalystId,
		"withdrawal_id": w.Id,
		"bank_name":     w.BankName,
	})
}

// WithdrawalCompleted settles a reserved payout.
func (s *Service) WithdrawalCompleted(ctx context.Context, w *models.Withdrawal) error {
	return s.post(ctx, w.Id+"-completed", numscriptWithdrawalCompleted, map[string]string{
		"asset":         formanceAsset(ledgerAsset),
		"amount":        smallestUnits(w.Amount),
		"analyst_id":    w.AnalystId,
		"withdrawal_id": w.Id,
	})
}

// WithdrawalFailed returns a reserved payout to the analyst's earnings.
func (s *Service) WithdrawalFailed(ctx context.Context, w *models.Withdrawal) error {
	return s.post(ctx, w.Id+"-failed", numscriptWithdrawalFailed, map[string]string{
		"asset":          formanceAsset(ledgerAsset),
		"amount":         smallestUnits(w.Amount),
		"analyst_id":     w.AnalystId,
		"withdrawal_id":  w.Id,
		"failure_reason": w.FailureReason,
	})
}

// post submits one Numscript transaction. The reference makes retries
// idempotent: a CONFLICT means the posting already exists.
func (s *Service) post(ctx context.Context, reference, script string, vars map[string]string) error {
	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: s.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: strPtr(reference),
			Script: &shared.V2PostTransactionScript{
				Plain: script,
				Vars:  vars,
			},
		},
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Formance posting already exists", zap.String("reference", reference))
			return nil
		}
		return fmt.Errorf("error posting %s to formance: %w", reference, err)
	}

	zap.L().Info("Posted to Formance", zap.String("reference", reference))
	return nil
}

// smallestUnits renders amount in the ledger asset's minor units.
func smallestUnits(amount decimal.Decimal) string {
	return amount.Shift(int32(precisionFor(ledgerAsset))).BigInt().String()
}
