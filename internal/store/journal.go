package store

import (
	"time"

	"milestone-escrow-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Journal event types
const (
	EventMilestoneFunded     = "milestone_funded"
	EventMilestoneReleased   = "milestone_released"
	EventMilestoneRefunded   = "milestone_refunded"
	EventWithdrawalRequested = "withdrawal_requested"
	EventWithdrawalCompleted = "withdrawal_completed"
	EventWithdrawalFailed    = "withdrawal_failed"
)

// Journal account types
const (
	AccountClient         = "client"
	AccountEscrow         = "escrow"
	AccountAnalyst        = "analyst_earnings"
	AccountPayoutsPending = "analyst_payouts_pending"
	AccountPayoutsSent    = "payouts_sent"
	AccountPlatformFees   = "platform_fees"
)

// Leg moves Amount from the source account to the destination account.
type Leg struct {
	SourceType      string
	SourceId        string
	DestinationType string
	DestinationId   string
	Amount          decimal.Decimal
}

// Posting expands legs into balanced debit/credit journal rows. Zero legs are
// skipped so a zero fee leaves no rows behind.
func Posting(reference, eventType string, at time.Time, legs ...Leg) []models.JournalEntry {
	var entries []models.JournalEntry
	for _, leg := range legs {
		if leg.Amount.IsZero() {
			continue
		}
		entries = append(entries,
			models.JournalEntry{
				Id:           uuid.New().String(),
				Reference:    reference,
				EventType:    eventType,
				AccountType:  leg.SourceType,
				AccountId:    leg.SourceId,
				DebitAmount:  leg.Amount,
				CreditAmount: decimal.Zero,
				CreatedAt:    at,
			},
			models.JournalEntry{
				Id:           uuid.New().String(),
				Reference:    reference,
				EventType:    eventType,
				AccountType:  leg.DestinationType,
				AccountId:    leg.DestinationId,
				DebitAmount:  decimal.Zero,
				CreditAmount: leg.Amount,
				CreatedAt:    at,
			},
		)
	}
	return entries
}
