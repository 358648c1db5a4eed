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

package api

import (
	"context"
	"fmt"
	"net/http"

	"milestone-escrow-go/internal/gateway"
	"milestone-escrow-go/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type withdrawalRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type withdrawalStatusUpdate struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason" binding:"max=500"`
}

func (s *Server) getWithdrawals(c *gin.Context) {
	overview, err := s.withdrawals.Overview(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, overview)
}

func (s *Server) postWithdrawal(c *gin.Context) {
	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	w, err := s.withdrawals.Request(c.Request.Context(), actorFrom(c), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, w)
}

func (s *Server) patchWithdrawal(c *gin.Context) {
	var req withdrawalStatusUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	status, err := models.ParseWithdrawalStatus(req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	w, err := s.withdrawals.Transition(c.Request.Context(), actorFrom(c), c.Param("id"), status, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, w)
}

// paymentNotification is the gateway callback. Duplicates answer 200 so the
// gateway stops retrying.
func (s *Server) paymentNotification(c *gin.Context) {
	var n models.GatewayNotification
	if err := c.ShouldBindJSON(&n); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := s.notifications.Handle(c.Request.Context(), n)
	if err != nil {
		respondError(c, err)
		return
	}
	if result == gateway.ResultDuplicate {
		zap.L().Debug("Acknowledged duplicate notification", zap.String("order_id", n.OrderId))
	}
	respondOK(c, http.StatusOK, gin.H{"orderId": n.OrderId, "result": result})
}

func (s *Server) acceptProposal(c *gin.Context) {
	var req models.ProposalAcceptance
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	project, milestones, err := s.milestones.AcceptProposal(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{"project": project, "milestones": milestones})
}

func (s *Server) listMilestones(c *gin.Context) {
	milestones, err := s.milestones.ListMilestones(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, milestones)
}

func (s *Server) fundMilestone(c *gin.Context) {
	result, err := s.milestones.FundMilestone(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (s *Server) getMilestone(c *gin.Context) {
	s.milestoneTransition(c, s.milestones.GetMilestone)
}

func (s *Server) startMilestone(c *gin.Context) {
	s.milestoneTransition(c, s.milestones.Start)
}

func (s *Server) submitMilestone(c *gin.Context) {
	s.milestoneTransition(c, s.milestones.Submit)
}

func (s *Server) approveMilestone(c *gin.Context) {
	s.milestoneTransition(c, s.milestones.Approve)
}

func (s *Server) requestRevision(c *gin.Context) {
	s.milestoneTransition(c, s.milestones.RequestRevision)
}

func (s *Server) disputeMilestone(c *gin.Context) {
	s.milestoneTransition(c, s.milestones.Dispute)
}

// milestoneTransition runs a single-milestone call and renders the result.
func (s *Server) milestoneTransition(c *gin.Context, fn func(ctx context.Context, actor models.Actor, milestoneId string) (*models.Milestone, error)) {
	id := c.Param("id")
	if id == "" {
		respondError(c, fmt.Errorf("%w: milestone id is required", models.ErrValidation))
		return
	}
	m, err := fn(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, m)
}
