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
	"context"
	"database/sql"
	"errors"
	"fmt"

	"milestone-escrow-go/internal/models"
	"milestone-escrow-go/internal/store"

	"go.uber.org/zap"
)

func (q *queries) InsertWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	_, err := q.db.ExecContext(ctx, queryInsertWithdrawal,
		w.Id, w.AnalystId, w.Amount.String(), w.Fee.String(), w.NetAmount.String(), string(w.Status),
		w.BankName, w.BankAccountNumber, w.BankAccountName, w.FailureReason,
		formatTime(w.CreatedAt), formatTime(w.UpdatedAt), nullableTime(w.ProcessedAt))
	if err != nil {
		zap.L().Error("Failed to insert withdrawal", zap.String("withdrawal_id", w.Id), zap.Error(err))
		return fmt.Errorf("unable to insert withdrawal: %w", err)
	}
	return nil
}

func (q *queries) GetWithdrawal(ctx context.Context, withdrawalId string) (*models.Withdrawal, error) {
	w, err := scanWithdrawal(q.db.QueryRowContext(ctx, queryGetWithdrawal, withdrawalId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: withdrawal %s", models.ErrNotFound, withdrawalId)
		}
		return nil, fmt.Errorf("unable to query withdrawal: %w", err)
	}
	return w, nil
}

func (q *queries) UpdateWithdrawal(ctx context.Context, w *models.Withdrawal, expected models.WithdrawalStatus) error {
	result, err := q.db.ExecContext(ctx, queryUpdateWithdrawal,
		string(w.Status), w.FailureReason, formatTime(w.UpdatedAt), nullableTime(w.ProcessedAt),
		w.Id, string(expected))
	if err != nil {
		zap.L().Error("Failed to update withdrawal", zap.String("withdrawal_id", w.Id), zap.Error(err))
		return fmt.Errorf("unable to update withdrawal: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: withdrawal %s no longer %s", store.ErrConcurrentModification, w.Id, expected)
	}
	return nil
}

func (q *queries) ListAnalystWithdrawals(ctx context.Context, analystId string, limit int) ([]models.Withdrawal, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.db.QueryContext(ctx, queryListAnalystWithdrawals, analystId, limit)
	if err != nil {
		zap.L().Error("Failed to query withdrawals", zap.String("analyst_id", analystId), zap.Error(err))
		return nil, fmt.Errorf("unable to query withdrawals: %w", err)
	}
	defer closeRows(rows)

	var withdrawals []models.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan withdrawal row: %w", err)
		}
		withdrawals = append(withdrawals, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawal rows: %w", err)
	}
	return withdrawals, nil
}

func scanWithdrawal(row scanner) (*models.Withdrawal, error) {
	var (
		w                    models.Withdrawal
		status               string
		createdAt, updatedAt string
		processedAt          sql.NullString
	)
	if err := row.Scan(&w.Id, &w.AnalystId, &w.Amount, &w.Fee, &w.NetAmount, &status,
		&w.BankName, &w.BankAccountNumber, &w.BankAccountName, &w.FailureReason,
		&createdAt, &updatedAt, &processedAt); err != nil {
		return nil, err
	}

	var err error
	if w.Status, err = models.ParseWithdrawalStatus(status); err != nil {
		return nil, err
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if w.ProcessedAt, err = parseNullTime(processedAt); err != nil {
		return nil, err
	}
	return &w, nil
}
