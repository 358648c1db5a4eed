package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"milestone-escrow-go/internal/models"
	"milestone-escrow-go/internal/store"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

func (q *queries) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	_, err := q.db.ExecContext(ctx, queryInsertTransaction,
		tx.Id, tx.ProjectId, tx.MilestoneId, string(tx.Status),
		tx.GrossAmount.String(), tx.Fee.String(), tx.NetAmount.String(),
		nullableTime(tx.Hold.Nullable()), tx.PaymentMethod,
		nullableTime(tx.CapturedAt), nullableTime(tx.ReleasedAt),
		formatTime(tx.CreatedAt), formatTime(tx.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: milestone %s already has an active funding transaction", store.ErrDuplicateTransaction, tx.MilestoneId)
		}
		zap.L().Error("Failed to insert transaction", zap.String("transaction_id", tx.Id), zap.Error(err))
		return fmt.Errorf("unable to insert transaction: %w", err)
	}
	return nil
}

func (q *queries) GetTransaction(ctx context.Context, transactionId string) (*models.Transaction, error) {
	tx, err := scanTransaction(q.db.QueryRowContext(ctx, queryGetTransaction, transactionId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", models.ErrNotFound, transactionId)
		}
		return nil, fmt.Errorf("unable to query transaction: %w", err)
	}
	return tx, nil
}

func (q *queries) GetFundingTransaction(ctx context.Context, milestoneId string) (*models.Transaction, error) {
	tx, err := scanTransaction(q.db.QueryRowContext(ctx, queryGetFundingTransaction, milestoneId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: funding transaction for milestone %s", models.ErrNotFound, milestoneId)
		}
		return nil, fmt.Errorf("unable to query funding transaction: %w", err)
	}
	return tx, nil
}

// UpdateTransaction is a compare-and-set on status. Amounts are immutable.
func (q *queries) UpdateTransaction(ctx context.Context, tx *models.Transaction, expected models.TransactionStatus) error {
	result, err := q.db.ExecContext(ctx, queryUpdateTransaction,
		string(tx.Status), nullableTime(tx.Hold.Nullable()), tx.PaymentMethod,
		nullableTime(tx.CapturedAt), nullableTime(tx.ReleasedAt), formatTime(tx.UpdatedAt),
		tx.Id, string(expected))
	if err != nil {
		zap.L().Error("Failed to update transaction", zap.String("transaction_id", tx.Id), zap.Error(err))
		return fmt.Errorf("unable to update transaction: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: transaction %s no longer %s", store.ErrConcurrentModification, tx.Id, expected)
	}
	return nil
}

func (q *queries) ListAnalystTransactions(ctx context.Context, analystId string) ([]models.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, queryListAnalystTransactions, analystId)
	if err != nil {
		zap.L().Error("Failed to query analyst transactions", zap.String("analyst_id", analystId), zap.Error(err))
		return nil, fmt.Errorf("unable to query analyst transactions: %w", err)
	}
	defer closeRows(rows)

	var txs []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan transaction row: %w", err)
		}
		txs = append(txs, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return txs, nil
}

func scanTransaction(row scanner) (*models.Transaction, error) {
	var (
		tx                                  models.Transaction
		status                              string
		availableAt, capturedAt, releasedAt sql.NullString
		createdAt, updatedAt                string
	)
	if err := row.Scan(&tx.Id, &tx.ProjectId, &tx.MilestoneId, &status,
		&tx.GrossAmount, &tx.Fee, &tx.NetAmount,
		&availableAt, &tx.PaymentMethod, &capturedAt, &releasedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if tx.Status, err = models.ParseTransactionStatus(status); err != nil {
		return nil, err
	}
	available, err := parseNullTime(availableAt)
	if err != nil {
		return nil, err
	}
	tx.Hold = models.HoldFromNullable(available)
	if tx.CapturedAt, err = parseNullTime(capturedAt); err != nil {
		return nil, err
	}
	if tx.ReleasedAt, err = parseNullTime(releasedAt); err != nil {
		return nil, err
	}
	if tx.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if tx.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &tx, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
