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

package database

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// Project queries
	queryInsertProject = `
		INSERT INTO projects (id, client_id, hired_analyst_id, title, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetProject = `
		SELECT id, client_id, hired_analyst_id, title, status, created_at, updated_at
		FROM projects
		WHERE id = ?`

	queryUpdateProjectStatus = `
		UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`

	// Milestone queries
	milestoneColumns = `
		id, project_id, title, amount, status, sort_order, revision_count,
		due_date, funded_at, submitted_at, approved_at, auto_release_at, disputed_at,
		created_at, updated_at`

	queryInsertMilestone = `
		INSERT INTO milestones (` + milestoneColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetMilestone = `
		SELECT ` + milestoneColumns + `
		FROM milestones
		WHERE id = ?`

	queryListProjectMilestones = `
		SELECT ` + milestoneColumns + `
		FROM milestones
		WHERE project_id = ?
		ORDER BY sort_order, created_at`

	queryUpdateMilestone = `
		UPDATE milestones
		SET status = ?, revision_count = ?, funded_at = ?, submitted_at = ?, approved_at = ?,
		    auto_release_at = ?, disputed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	queryListDueAutoReleases = `
		SELECT ` + milestoneColumns + `
		FROM milestones
		WHERE status = 'SUBMITTED' AND auto_release_at IS NOT NULL AND auto_release_at <= ?
		ORDER BY auto_release_at
		LIMIT ?`

	// Ledger queries
	transactionColumns = `
		id, project_id, milestone_id, status, gross_amount, fee, net_amount,
		available_at, payment_method, captured_at, released_at, created_at, updated_at`

	queryInsertTransaction = `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransaction = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = ?`

	queryGetFundingTransaction = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE milestone_id = ? AND status != 'FAILED'
		ORDER BY created_at DESC
		LIMIT 1`

	queryUpdateTransaction = `
		UPDATE transactions
		SET status = ?, available_at = ?, payment_method = ?, captured_at = ?, released_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	queryListAnalystTransactions = `
		SELECT t.id, t.project_id, t.milestone_id, t.status, t.gross_amount, t.fee, t.net_amount,
		       t.available_at, t.payment_method, t.captured_at, t.released_at, t.created_at, t.updated_at
		FROM transactions t
		JOIN projects p ON p.id = t.project_id
		WHERE p.hired_analyst_id = ?
		ORDER BY t.created_at`

	// Withdrawal queries
	withdrawalColumns = `
		id, analyst_id, amount, fee, net_amount, status,
		bank_name, bank_account_number, bank_account_name, failure_reason,
		created_at, updated_at, processed_at`

	queryInsertWithdrawal = `
		INSERT INTO withdrawals (` + withdrawalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetWithdrawal = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE id = ?`

	queryUpdateWithdrawal = `
		UPDATE withdrawals
		SET status = ?, failure_reason = ?, updated_at = ?, processed_at = ?
		WHERE id = ? AND status = ?`

	queryListAnalystWithdrawals = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE analyst_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	// Analyst profile queries
	queryGetAnalystProfile = `
		SELECT user_id, name, bank_name, bank_account_number, bank_account_name, updated_at
		FROM analyst_profiles
		WHERE user_id = ?`

	queryListAnalystProfiles = `
		SELECT user_id, name, bank_name, bank_account_number, bank_account_name, updated_at
		FROM analyst_profiles
		ORDER BY name, user_id`

	queryUpsertAnalystProfile = `
		INSERT INTO analyst_profiles (user_id, name, bank_name, bank_account_number, bank_account_name, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			bank_name = excluded.bank_name,
			bank_account_number = excluded.bank_account_number,
			bank_account_name = excluded.bank_account_name,
			updated_at = excluded.updated_at`

	// Gateway receipt queries
	queryInsertNotification = `
		INSERT OR IGNORE INTO notification_receipts (key, order_id, transaction_status, received_at)
		VALUES (?, ?, ?, ?)`

	// Journal queries
	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, reference, event_type, account_type, account_id, debit_amount, credit_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryListJournalEntries = `
		SELECT id, reference, event_type, account_type, account_id, debit_amount, credit_amount, created_at
		FROM journal_entries
		WHERE reference = ?
		ORDER BY created_at, rowid`
)

// timeLayout is fixed width so stored instants compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}
