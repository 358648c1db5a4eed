package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Project is a work engagement between a client and a hired analyst
type Project struct {
	Id             string        `db:"id" json:"id"`
	ClientId       string        `db:"client_id" json:"clientId"`
	HiredAnalystId string        `db:"hired_analyst_id" json:"hiredAnalystId"`
	Title          string        `db:"title" json:"title"`
	Status         ProjectStatus `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

// Milestone is a separately funded and approved unit of project work
type Milestone struct {
	Id            string          `db:"id" json:"id"`
	ProjectId     string          `db:"project_id" json:"projectId"`
	Title         string          `db:"title" json:"title"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Status        MilestoneStatus `db:"status" json:"status"`
	SortOrder     int             `db:"sort_order" json:"sortOrder"`
	RevisionCount int             `db:"revision_count" json:"revisionCount"`
	DueDate       *time.Time      `db:"due_date" json:"dueDate,omitempty"`
	FundedAt      *time.Time      `db:"funded_at" json:"fundedAt,omitempty"`
	SubmittedAt   *time.Time      `db:"submitted_at" json:"submittedAt,omitempty"`
	ApprovedAt    *time.Time      `db:"approved_at" json:"approvedAt,omitempty"`
	AutoReleaseAt *time.Time      `db:"auto_release_at" json:"autoReleaseAt,omitempty"`
	DisputedAt    *time.Time      `db:"disputed_at" json:"disputedAt,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// Transaction is the ledger record of one milestone's funding. Its Id doubles
// as the gateway order id.
type Transaction struct {
	Id            string            `db:"id" json:"id"`
	ProjectId     string            `db:"project_id" json:"projectId"`
	MilestoneId   string            `db:"milestone_id" json:"milestoneId"`
	Status        TransactionStatus `db:"status" json:"status"`
	GrossAmount   decimal.Decimal   `db:"gross_amount" json:"grossAmount"`
	Fee           decimal.Decimal   `db:"fee" json:"fee"`
	NetAmount     decimal.Decimal   `db:"net_amount" json:"netAmount"`
	Hold          Hold              `db:"available_at" json:"-"`
	PaymentMethod string            `db:"payment_method" json:"paymentMethod,omitempty"`
	CapturedAt    *time.Time        `db:"captured_at" json:"capturedAt,omitempty"`
	ReleasedAt    *time.Time        `db:"released_at" json:"releasedAt,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updatedAt"`
}

// Captured reports whether the gateway has confirmed the funds.
func (t *Transaction) Captured() bool { return t.CapturedAt != nil }

// Withdrawal is an analyst payout request with the bank destination frozen at
// creation.
type Withdrawal struct {
	Id                string           `db:"id" json:"id"`
	AnalystId         string           `db:"analyst_id" json:"analystId"`
	Amount            decimal.Decimal  `db:"amount" json:"amount"`
	Fee               decimal.Decimal  `db:"fee" json:"fee"`
	NetAmount         decimal.Decimal  `db:"net_amount" json:"netAmount"`
	Status            WithdrawalStatus `db:"status" json:"status"`
	BankName          string           `db:"bank_name" json:"bankName"`
	BankAccountNumber string           `db:"bank_account_number" json:"bankAccountNumber"`
	BankAccountName   string           `db:"bank_account_name" json:"bankAccountName"`
	FailureReason     string           `db:"failure_reason" json:"failureReason,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updatedAt"`
	ProcessedAt       *time.Time       `db:"processed_at" json:"processedAt,omitempty"`
}

// AnalystProfile holds the bank destination used for payouts
type AnalystProfile struct {
	UserId            string    `db:"user_id" json:"userId"`
	Name              string    `db:"name" json:"name"`
	BankName          string    `db:"bank_name" json:"bankName"`
	BankAccountNumber string    `db:"bank_account_number" json:"bankAccountNumber"`
	BankAccountName   string    `db:"bank_account_name" json:"bankAccountName"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

// BankInfoComplete reports whether every destination field is filled in.
func (p *AnalystProfile) BankInfoComplete() bool {
	return strings.TrimSpace(p.BankName) != "" &&
		strings.TrimSpace(p.BankAccountNumber) != "" &&
		strings.TrimSpace(p.BankAccountName) != ""
}

// NotificationReceipt is the dedup log entry for one gateway event
type NotificationReceipt struct {
	Key               string    `db:"key"`
	OrderId           string    `db:"order_id"`
	TransactionStatus string    `db:"transaction_status"`
	ReceivedAt        time.Time `db:"received_at"`
}

// JournalEntry is one leg of a double-entry posting
type JournalEntry struct {
	Id           string          `db:"id"`
	Reference    string          `db:"reference"`
	EventType    string          `db:"event_type"`
	AccountType  string          `db:"account_type"`
	AccountId    string          `db:"account_id"`
	DebitAmount  decimal.Decimal `db:"debit_amount"`
	CreditAmount decimal.Decimal `db:"credit_amount"`
	CreatedAt    time.Time       `db:"created_at"`
}
