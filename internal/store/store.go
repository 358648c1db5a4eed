package store

import (
	"context"
	"errors"
	"time"

	"milestone-escrow-go/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// Queries is the set of reads and writes available both on the store and
// inside a unit of work started with RunInTx.
type Queries interface {
	// --- Projects & milestones ---
	InsertProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, projectId string) (*models.Project, error)
	UpdateProjectStatus(ctx context.Context, projectId string, status models.ProjectStatus, now time.Time) error
	InsertMilestone(ctx context.Context, m *models.Milestone) error
	GetMilestone(ctx context.Context, milestoneId string) (*models.Milestone, error)
	ListProjectMilestones(ctx context.Context, projectId string) ([]models.Milestone, error)
	// UpdateMilestone writes m only if the stored status is still expected.
	UpdateMilestone(ctx context.Context, m *models.Milestone, expected models.MilestoneStatus) error
	ListDueAutoReleases(ctx context.Context, now time.Time, limit int) ([]models.Milestone, error)

	// --- Ledger ---
	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, transactionId string) (*models.Transaction, error)
	// GetFundingTransaction returns the milestone's latest non-FAILED transaction.
	GetFundingTransaction(ctx context.Context, milestoneId string) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *models.Transaction, expected models.TransactionStatus) error
	ListAnalystTransactions(ctx context.Context, analystId string) ([]models.Transaction, error)

	// --- Withdrawals ---
	InsertWithdrawal(ctx context.Context, w *models.Withdrawal) error
	GetWithdrawal(ctx context.Context, withdrawalId string) (*models.Withdrawal, error)
	UpdateWithdrawal(ctx context.Context, w *models.Withdrawal, expected models.WithdrawalStatus) error
	// ListAnalystWithdrawals returns newest first; limit <= 0 returns all.
	ListAnalystWithdrawals(ctx context.Context, analystId string, limit int) ([]models.Withdrawal, error)

	// --- Analyst profiles ---
	GetAnalystProfile(ctx context.Context, userId string) (*models.AnalystProfile, error)
	UpsertAnalystProfile(ctx context.Context, p *models.AnalystProfile) error
	ListAnalystProfiles(ctx context.Context) ([]models.AnalystProfile, error)

	// --- Gateway receipts ---
	// RecordNotification fails with models.ErrDuplicateNotification when the key exists.
	RecordNotification(ctx context.Context, r models.NotificationReceipt) error

	// --- Journal ---
	InsertJournalEntries(ctx context.Context, entries []models.JournalEntry) error
	ListJournalEntries(ctx context.Context, reference string) ([]models.JournalEntry, error)
}

// EscrowStore defines the contract that every persistence backend must satisfy.
type EscrowStore interface {
	Queries

	// RunInTx runs fn in one serialized read-validate-write unit. Any error
	// returned by fn rolls back every write made through q.
	RunInTx(ctx context.Context, fn func(q Queries) error) error

	Close()
}

// LedgerMirror receives committed money movements for an external ledger.
type LedgerMirror interface {
	MilestoneFunded(ctx context.Context, tx *models.Transaction, clientId string) error
	MilestoneReleased(ctx context.Context, tx *models.Transaction, analystId string) error
	MilestoneRefunded(ctx context.Context, tx *models.Transaction, clientId string) error
	WithdrawalRequested(ctx context.Context, w *models.Withdrawal) error
	WithdrawalCompleted(ctx context.Context, w *models.Withdrawal) error
	WithdrawalFailed(ctx context.Context, w *models.Withdrawal) error
}
