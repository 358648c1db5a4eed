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
	"time"

	"milestone-escrow-go/internal/models"
	"milestone-escrow-go/internal/store"

	"go.uber.org/zap"
)

func (q *queries) InsertProject(ctx context.Context, p *models.Project) error {
	_, err := q.db.ExecContext(ctx, queryInsertProject,
		p.Id, p.ClientId, p.HiredAnalystId, p.Title, string(p.Status),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		zap.L().Error("Failed to insert project", zap.String("project_id", p.Id), zap.Error(err))
		return fmt.Errorf("unable to insert project: %w", err)
	}
	return nil
}

func (q *queries) GetProject(ctx context.Context, projectId string) (*models.Project, error) {
	var (
		p                    models.Project
		status               string
		createdAt, updatedAt string
	)
	err := q.db.QueryRowContext(ctx, queryGetProject, projectId).Scan(
		&p.Id, &p.ClientId, &p.HiredAnalystId, &p.Title, &status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: project %s", models.ErrNotFound, projectId)
		}
		return nil, fmt.Errorf("unable to query project: %w", err)
	}

	if p.Status, err = models.ParseProjectStatus(status); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *queries) UpdateProjectStatus(ctx context.Context, projectId string, status models.ProjectStatus, now time.Time) error {
	result, err := q.db.ExecContext(ctx, queryUpdateProjectStatus, string(status), formatTime(now), projectId)
	if err != nil {
		return fmt.Errorf("unable to update project status: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%w: project %s", models.ErrNotFound, projectId)
	}
	return nil
}

func (q *queries) InsertMilestone(ctx context.Context, m *models.Milestone) error {
	_, err := q.db.ExecContext(ctx, queryInsertMilestone,
		m.Id, m.ProjectId, m.Title, m.Amount.String(), string(m.Status), m.SortOrder, m.RevisionCount,
		nullableTime(m.DueDate), nullableTime(m.FundedAt), nullableTime(m.SubmittedAt),
		nullableTime(m.ApprovedAt), nullableTime(m.AutoReleaseAt), nullableTime(m.DisputedAt),
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if err != nil {
		zap.L().Error("Failed to insert milestone", zap.String("milestone_id", m.Id), zap.Error(err))
		return fmt.Errorf("unable to insert milestone: %w", err)
	}
	return nil
}

func (q *queries) GetMilestone(ctx context.Context, milestoneId string) (*models.Milestone, error) {
	m, err := scanMilestone(q.db.QueryRowContext(ctx, queryGetMilestone, milestoneId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: milestone %s", models.ErrNotFound, milestoneId)
		}
		return nil, fmt.Errorf("unable to query milestone: %w", err)
	}
	return m, nil
}

func (q *queries) ListProjectMilestones(ctx context.Context, projectId string) ([]models.Milestone, error) {
	return q.listMilestones(ctx, queryListProjectMilestones, projectId)
}

func (q *queries) ListDueAutoReleases(ctx context.Context, now time.Time, limit int) ([]models.Milestone, error) {
	if limit <= 0 {
		limit = -1
	}
	return q.listMilestones(ctx, queryListDueAutoReleases, formatTime(now), limit)
}

func (q *queries) listMilestones(ctx context.Context, query string, args ...any) ([]models.Milestone, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		zap.L().Error("Failed to query milestones", zap.Error(err))
		return nil, fmt.Errorf("unable to query milestones: %w", err)
	}
	defer closeRows(rows)

	var milestones []models.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan milestone row: %w", err)
		}
		milestones = append(milestones, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating milestone rows: %w", err)
	}
	return milestones, nil
}

// UpdateMilestone is a compare-and-set on status.
func (q *queries) UpdateMilestone(ctx context.Context, m *models.Milestone, expected models.MilestoneStatus) error {
	result, err := q.db.ExecContext(ctx, queryUpdateMilestone,
		string(m.Status), m.RevisionCount,
		nullableTime(m.FundedAt), nullableTime(m.SubmittedAt), nullableTime(m.ApprovedAt),
		nullableTime(m.AutoReleaseAt), nullableTime(m.DisputedAt), formatTime(m.UpdatedAt),
		m.Id, string(expected))
	if err != nil {
		zap.L().Error("Failed to update milestone", zap.String("milestone_id", m.Id), zap.Error(err))
		return fmt.Errorf("unable to update milestone: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: milestone %s no longer %s", store.ErrConcurrentModification, m.Id, expected)
	}
	return nil
}

func scanMilestone(row scanner) (*models.Milestone, error) {
	var (
		m                                          models.Milestone
		status                                     string
		dueDate, fundedAt, submittedAt, approvedAt sql.NullString
		autoReleaseAt, disputedAt                  sql.NullString
		createdAt, updatedAt                       string
	)
	if err := row.Scan(&m.Id, &m.ProjectId, &m.Title, &m.Amount, &status, &m.SortOrder, &m.RevisionCount,
		&dueDate, &fundedAt, &submittedAt, &approvedAt, &autoReleaseAt, &disputedAt,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if m.Status, err = models.ParseMilestoneStatus(status); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{dueDate, &m.DueDate},
		{fundedAt, &m.FundedAt},
		{submittedAt, &m.SubmittedAt},
		{approvedAt, &m.ApprovedAt},
		{autoReleaseAt, &m.AutoReleaseAt},
		{disputedAt, &m.DisputedAt},
	} {
		if *f.dst, err = parseNullTime(f.src); err != nil {
			return nil, err
		}
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
