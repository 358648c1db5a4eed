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

	"go.uber.org/zap"
)

func (q *queries) GetAnalystProfile(ctx context.Context, userId string) (*models.AnalystProfile, error) {
	zap.L().Debug("Querying analyst profile", zap.String("user_id", userId))

	p, err := scanProfile(q.db.QueryRowContext(ctx, queryGetAnalystProfile, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: analyst profile %s", models.ErrNotFound, userId)
		}
		zap.L().Error("Failed to query analyst profile", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("unable to query analyst profile: %w", err)
	}
	return p, nil
}

func (q *queries) ListAnalystProfiles(ctx context.Context) ([]models.AnalystProfile, error) {
	rows, err := q.db.QueryContext(ctx, queryListAnalystProfiles)
	if err != nil {
		zap.L().Error("Failed to query analyst profiles", zap.Error(err))
		return nil, fmt.Errorf("unable to query analyst profiles: %w", err)
	}
	defer closeRows(rows)

	var profiles []models.AnalystProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan analyst profile row: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analyst profile rows: %w", err)
	}

	zap.L().Debug("Retrieved analyst profiles", zap.Int("count", len(profiles)))
	return profiles, nil
}

func (q *queries) UpsertAnalystProfile(ctx context.Context, p *models.AnalystProfile) error {
	zap.L().Info("Saving analyst profile", zap.String("user_id", p.UserId), zap.String("name", p.Name))

	_, err := q.db.ExecContext(ctx, queryUpsertAnalystProfile,
		p.UserId, p.Name, p.BankName, p.BankAccountNumber, p.BankAccountName, formatTime(p.UpdatedAt))
	if err != nil {
		zap.L().Error("Failed to upsert analyst profile", zap.String("user_id", p.UserId), zap.Error(err))
		return fmt.Errorf("unable to upsert analyst profile: %w", err)
	}
	return nil
}

func scanProfile(row scanner) (*models.AnalystProfile, error) {
	var (
		p         models.AnalystProfile
		updatedAt string
	)
	if err := row.Scan(&p.UserId, &p.Name, &p.BankName, &p.BankAccountNumber, &p.BankAccountName, &updatedAt); err != nil {
		return nil, err
	}
	t, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	p.UpdatedAt = t
	return &p, nil
}
