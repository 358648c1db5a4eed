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

package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"milestone-escrow-go/internal/models"
	"milestone-escrow-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// AcceptProposal creates the project and its PENDING milestones.
func (s *Service) AcceptProposal(ctx context.Context, actor models.Actor, in models.ProposalAcceptance) (*models.Project, []models.Milestone, error) {
	if actor.Role != models.RoleClient {
		return nil, nil, fmt.Errorf("%w: only clients accept proposals", models.ErrForbidden)
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.AnalystId) == "" {
		return nil, nil, fmt.Errorf("%w: title and analyst are required", models.ErrValidation)
	}
	if in.AnalystId == actor.UserId {
		return nil, nil, fmt.Errorf("%w: client cannot hire themselves", models.ErrValidation)
	}
	if len(in.Milestones) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one milestone is required", models.ErrValidation)
	}
	for i, d := range in.Milestones {
		if !d.Amount.IsPositive() {
			return nil, nil, fmt.Errorf("%w: milestone %d amount must be positive", models.ErrValidation, i)
		}
		if strings.TrimSpace(d.Title) == "" {
			return nil, nil, fmt.Errorf("%w: milestone %d title is required", models.ErrValidation, i)
		}
	}

	now := s.clock.Now()
	project := &models.Project{
		Id:             uuid.New().String(),
		ClientId:       actor.UserId,
		HiredAnalystId: in.AnalystId,
		Title:          in.Title,
		Status:         models.ProjectInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	milestones := make([]models.Milestone, 0, len(in.Milestones))
	for _, d := range in.Milestones {
		milestones = append(milestones, models.Milestone{
			Id:        uuid.New().String(),
			ProjectId: project.Id,
			Title:     d.Title,
			Amount:    d.Amount,
			Status:    models.MilestonePending,
			SortOrder: d.SortOrder,
			DueDate:   d.DueDate,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	err := s.store.RunInTx(ctx, func(q store.Queries) error {
		if err := q.InsertProject(ctx, project); err != nil {
			return err
		}
		for i := range milestones {
			if err := q.InsertMilestone(ctx, &milestones[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("Proposal accepted",
		zap.String("project_id", project.Id),
		zap.String("client_id", project.ClientId),
		zap.String("analyst_id", project.HiredAnalystId),
		zap.Int("milestones", len(milestones)))
	return project, milestones, nil
}

// FundMilestone opens the funding order for a PENDING milestone. Calling it
// again while the order is still awaiting capture returns the same order.
func (s *Service) FundMilestone(ctx context.Context, actor models.Actor, milestoneId string) (*models.FundingResult, error) {
	var tx *models.Transaction
	err := s.withMilestoneLock(ctx, milestoneId, func() error {
		return s.store.RunInTx(ctx, func(q store.Queries) error {
			m, p, err := loadMilestone(ctx, q, milestoneId)
			if err != nil {
				return err
			}
			if err := requireClient(actor, p); err != nil {
				return err
			}
			if m.Status != models.MilestonePending {
				return illegalTransition(m, models.MilestoneFunded)
			}

			existing, err := q.GetFundingTransaction(ctx, m.Id)
			switch {
			case err == nil && existing.Status == models.TransactionPending && !existing.Captured():
				tx = existing
				return nil
			case err == nil:
				return invalidLedgerTransition(existing, "fund")
			case !errors.Is(err, models.ErrNotFound):
				return err
			}

			fee := m.Amount.Mul(s.cfg.PlatformFeePercent).Div(hundred).Round(0)
			tx, err = NewLedger(q, s.clock.Now()).RecordFunding(ctx, m.Id, m.Amount, fee)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	return &models.FundingResult{
		OrderId:     tx.Id,
		MilestoneId: tx.MilestoneId,
		GrossAmount: tx.GrossAmount,
		Fee:         tx.Fee,
		NetAmount:   tx.NetAmount,
	}, nil
}

// Start moves a FUNDED milestone to IN_PROGRESS.
func (s *Service) Start(ctx context.Context, actor models.Actor, milestoneId string) (*models.Milestone, error) {
	return s.transition(ctx, milestoneId, func(q store.Queries, m *models.Milestone, p *models.Project, now time.Time) error {
		if err := requireAnalyst(actor, p); err != nil {
			return err
		}
		if m.Status != models.MilestoneFunded {
			return illegalTransition(m, models.MilestoneInProgress)
		}
		m.Status = models.MilestoneInProgress
		return nil
	})
}

// Submit records a deliverable and arms the auto-release deadline. It also
// serves resubmission after a revision request.
func (s *Service) Submit(ctx context.Context, actor models.Actor, milestoneId string) (*models.Milestone, error) {
	return s.transition(ctx, milestoneId, func(q store.Queries, m *models.Milestone, p *models.Project, now time.Time) error {
		if err := requireAnalyst(actor, p); err != nil {
			return err
		}
		if m.Status != models.MilestoneInProgress && m.Status != models.MilestoneRevisionRequested {
			return illegalTransition(m, models.MilestoneSubmitted)
		}
		deadline := now.Add(s.cfg.ReviewWindow)
		submitted := now
		m.Status = models.MilestoneSubmitted
		m.SubmittedAt = &submitted
		m.AutoReleaseAt = &deadline
		return nil
	})
}

// Approve is the client's manual approval. It releases the funding
// transaction in the same unit of work.
func (s *Service) Approve(ctx context.Context, actor models.Actor, milestoneId string) (*models.Milestone, error) {
	var released *models.Transaction
	m, err := s.transition(ctx, milestoneId, func(q store.Queries, m *models.Milestone, p *models.Project, now time.Time) error {
		if err := requireClient(actor, p); err != nil {
			return err
		}
		var err error
		released, err = s.approve(ctx, q, m, p, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.postRelease(ctx, released, m)
	return m, nil
}

// ForceApprove is the scheduler's approval path. It reports false without
// error when the milestone is already APPROVED or no longer due.
func (s *Service) ForceApprove(ctx context.Context, milestoneId string) (bool, error) {
	var released *models.Transaction
	m, err := s.transition(ctx, milestoneId, func(q store.Queries, m *models.Milestone, p *models.Project, now time.Time) error {
		if m.Status != models.MilestoneSubmitted || m.AutoReleaseAt == nil || now.Before(*m.AutoReleaseAt) {
			return errSkip
		}
		var err error
		released, err = s.approve(ctx, q, m, p, now)
		return err
	})
	if errors.Is(err, errSkip) {
		zap.L().Debug("Auto-release skipped", zap.String("milestone_id", milestoneId))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	zap.L().Info("Milestone auto-released",
		zap.String("milestone_id", m.Id),
		zap.Timep("auto_release_at", m.AutoReleaseAt))
	s.postRelease(ctx, released, m)
	return true, nil
}

// RequestRevision sends a SUBMITTED milestone back to the analyst. Once the
// revision budget is spent the milestone is disputed instead.
func (s *Service) RequestRevision(ctx context.Context, actor models.Actor, milestoneId string) (*models.Milestone, error) {
	return s.transition(ctx, milestoneId, func(q store.Queries, m *models.Milestone, p *models.Project, now time.Time) error {
		if err := requireClient(actor, p); err != nil {
			return err
		}
		if m.Status != models.MilestoneSubmitted {
			return illegalTransition(m, models.MilestoneRevisionRequested)
		}
		m.AutoReleaseAt = nil
		if m.RevisionCount >= s.cfg.MaxRevisions {
			zap.L().Info("Revision limit reached, disputing milestone",
				zap.String("milestone_id", m.Id),
				zap.Int("revisions", m.RevisionCount))
			disputed := now
			m.Status = models.MilestoneDisputed
			m.DisputedAt = &disputed
			return nil
		}
		m.Status = models.MilestoneRevisionRequested
		m.RevisionCount++
		return nil
	})
}

// Dispute freezes a non-terminal milestone until it is resolved externally.
func (s *Service) Dispute(ctx context.Context, actor models.Actor, milestoneId string) (*models.Milestone, error) {
	return s.transition(ctx, milestoneId, func(q store.Queries, m *models.Milestone, p *models.Project, now time.Time) error {
		if err := requireParty(actor, p); err != nil {
			return err
		}
		if !m.Status.CanTransitionTo(models.MilestoneDisputed) {
			return illegalTransition(m, models.MilestoneDisputed)
		}
		disputed := now
		m.Status = models.MilestoneDisputed
		m.DisputedAt = &disputed
		m.AutoReleaseAt = nil
		return nil
	})
}

// GetMilestone returns a milestone to either party of its project.
func (s *Service) GetMilestone(ctx context.Context, actor models.Actor, milestoneId string) (*models.Milestone, error) {
	m, p, err := loadMilestone(ctx, s.store, milestoneId)
	if err != nil {
		return nil, err
	}
	if err := requireParty(actor, p); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMilestones returns a project's milestones in delivery order.
func (s *Service) ListMilestones(ctx context.Context, actor models.Actor, projectId string) ([]models.Milestone, error) {
	p, err := s.store.GetProject(ctx, projectId)
	if err != nil {
		return nil, err
	}
	if err := requireParty(actor, p); err != nil {
		return nil, err
	}
	return s.store.ListProjectMilestones(ctx, projectId)
}

var errSkip = errors.New("skip")

type transitionFunc func(q store.Queries, m *models.Milestone, p *models.Project, now time.Time) error

// transition runs fn against a fresh read of the milestone under its lock
// and persists the result only if the status still matches what was read.
func (s *Service) transition(ctx context.Context, milestoneId string, fn transitionFunc) (*models.Milestone, error) {
	var out *models.Milestone
	err := s.withMilestoneLock(ctx, milestoneId, func() error {
		return s.store.RunInTx(ctx, func(q store.Queries) error {
			m, p, err := loadMilestone(ctx, q, milestoneId)
			if err != nil {
				return err
			}
			from := m.Status
			now := s.clock.Now()
			if err := fn(q, m, p, now); err != nil {
				return err
			}
			m.UpdatedAt = now
			if err := q.UpdateMilestone(ctx, m, from); err != nil {
				return err
			}
			if m.Status == models.MilestoneApproved {
				if err := completeProjectIfDone(ctx, q, p, now); err != nil {
					return err
				}
			}
			zap.L().Info("Milestone transitioned",
				zap.String("milestone_id", m.Id),
				zap.String("from", string(from)),
				zap.String("to", string(m.Status)))
			out = m
			return nil
		})
	})
	return out, err
}

// approve is shared by manual and forced approval.
func (s *Service) approve(ctx context.Context, q store.Queries, m *models.Milestone, p *models.Project, now time.Time) (*models.Transaction, error) {
	if m.Status != models.MilestoneSubmitted {
		return nil, illegalTransition(m, models.MilestoneApproved)
	}
	funding, err := q.GetFundingTransaction(ctx, m.Id)
	if err != nil {
		zap.L().Error("Approved milestone has no funding transaction",
			zap.String("milestone_id", m.Id), zap.Error(err))
		return nil, err
	}
	released, err := NewLedger(q, now).Release(ctx, funding.Id, s.cfg.SecurityHold)
	if err != nil {
		return nil, err
	}
	approved := now
	m.Status = models.MilestoneApproved
	m.ApprovedAt = &approved
	return released, nil
}

func (s *Service) postRelease(ctx context.Context, tx *models.Transaction, m *models.Milestone) {
	if tx == nil {
		return
	}
	project, err := s.store.GetProject(ctx, m.ProjectId)
	if err != nil {
		zap.L().Warn("Unable to load project for mirror", zap.String("project_id", m.ProjectId), zap.Error(err))
		return
	}
	s.mirrorPost(ctx, store.EventMilestoneReleased, tx.Id, func(mr store.LedgerMirror) error {
		return mr.MilestoneReleased(ctx, tx, project.HiredAnalystId)
	})
}

func completeProjectIfDone(ctx context.Context, q store.Queries, p *models.Project, now time.Time) error {
	milestones, err := q.ListProjectMilestones(ctx, p.Id)
	if err != nil {
		return err
	}
	for _, other := range milestones {
		if other.Status != models.MilestoneApproved {
			return nil
		}
	}
	zap.L().Info("All milestones approved, completing project", zap.String("project_id", p.Id))
	return q.UpdateProjectStatus(ctx, p.Id, models.ProjectCompleted, now)
}

func loadMilestone(ctx context.Context, q store.Queries, milestoneId string) (*models.Milestone, *models.Project, error) {
	m, err := q.GetMilestone(ctx, milestoneId)
	if err != nil {
		return nil, nil, err
	}
	p, err := q.GetProject(ctx, m.ProjectId)
	if err != nil {
		return nil, nil, err
	}
	return m, p, nil
}

func illegalTransition(m *models.Milestone, to models.MilestoneStatus) error {
	zap.L().Warn("Rejected milestone transition",
		zap.String("milestone_id", m.Id),
		zap.String("from", string(m.Status)),
		zap.String("to", string(to)))
	return fmt.Errorf("%w: milestone %s is %s, cannot move to %s",
		models.ErrIllegalMilestoneTransition, m.Id, m.Status, to)
}

func requireClient(actor models.Actor, p *models.Project) error {
	if actor.Role != models.RoleClient || actor.UserId != p.ClientId {
		return fmt.Errorf("%w: only the project client may do this", models.ErrForbidden)
	}
	return nil
}

func requireAnalyst(actor models.Actor, p *models.Project) error {
	if actor.Role != models.RoleAnalyst || actor.UserId != p.HiredAnalystId {
		return fmt.Errorf("%w: only the hired analyst may do this", models.ErrForbidden)
	}
	return nil
}

func requireParty(actor models.Actor, p *models.Project) error {
	if requireClient(actor, p) == nil || requireAnalyst(actor, p) == nil {
		return nil
	}
	return fmt.Errorf("%w: not a party to project %s", models.ErrForbidden, p.Id)
}
