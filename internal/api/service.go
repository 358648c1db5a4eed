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
	"net/http"
	"time"

	"milestone-escrow-go/internal/gateway"
	"milestone-escrow-go/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// MilestoneService is the escrow surface exposed over HTTP.
type MilestoneService interface {
	AcceptProposal(ctx context.Context, actor models.Actor, in models.ProposalAcceptance) (*models.Project, []models.Milestone, error)
	ListMilestones(ctx context.Context, actor models.Actor, projectId string) ([]models.Milestone, error)
	GetMilestone(ctx context.Context, actor models.Actor, milestoneId string) (*models.Milestone, error)
	FundMilestone(ctx context.Context, actor models.Actor, milestoneId string) (*models.FundingResult, error)
	Start(ctx context.Context, actor models.Actor, milestoneId string) (*models.Milestone, error)
	Submit(ctx context.Context, actor models.Actor, milestoneId string) (*models.Milestone, error)
	Approve(ctx context.Context, actor models.Actor, milestoneId string) (*models.Milestone, error)
	RequestRevision(ctx context.Context, actor models.Actor, milestoneId string) (*models.Milestone, error)
	Dispute(ctx context.Context, actor models.Actor, milestoneId string) (*models.Milestone, error)
}

// WithdrawalService is the payout surface exposed over HTTP.
type WithdrawalService interface {
	Request(ctx context.Context, actor models.Actor, amount decimal.Decimal) (*models.Withdrawal, error)
	Transition(ctx context.Context, actor models.Actor, withdrawalId string, to models.WithdrawalStatus, reason string) (*models.Withdrawal, error)
	Overview(ctx context.Context, actor models.Actor) (*models.WithdrawalOverview, error)
}

// NotificationHandler applies gateway callbacks.
type NotificationHandler interface {
	Handle(ctx context.Context, n models.GatewayNotification) (gateway.Result, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server holds the HTTP handlers
type Server struct {
	milestones    MilestoneService
	withdrawals   WithdrawalService
	notifications NotificationHandler
	health        HealthChecker
	jwtSecret     []byte
}

func NewServer(milestones MilestoneService, withdrawals WithdrawalService, notifications NotificationHandler, health HealthChecker, cfg models.AuthConfig) *Server {
	return &Server{
		milestones:    milestones,
		withdrawals:   withdrawals,
		notifications: notifications,
		health:        health,
		jwtSecret:     []byte(cfg.JWTSecret),
	}
}

// Router builds the gin engine with every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1")
	v1.POST("/payments/notifications", s.paymentNotification)

	authed := v1.Group("")
	authed.Use(s.AuthMiddleware())
	{
		analyst := authed.Group("/analyst", RequireRole(models.RoleAnalyst))
		analyst.GET("/withdrawals", s.getWithdrawals)
		analyst.POST("/withdrawals", s.postWithdrawal)

		authed.POST("/projects", RequireRole(models.RoleClient), s.acceptProposal)
		authed.GET("/projects/:id/milestones", s.listMilestones)

		milestones := authed.Group("/milestones/:id")
		milestones.GET("", s.getMilestone)
		milestones.POST("/fund", RequireRole(models.RoleClient), s.fundMilestone)
		milestones.POST("/start", RequireRole(models.RoleAnalyst), s.startMilestone)
		milestones.POST("/submit", RequireRole(models.RoleAnalyst), s.submitMilestone)
		milestones.POST("/approve", RequireRole(models.RoleClient), s.approveMilestone)
		milestones.POST("/revisions", RequireRole(models.RoleClient), s.requestRevision)
		milestones.POST("/disputes", RequireRole(models.RoleClient, models.RoleAnalyst), s.disputeMilestone)

		internal := authed.Group("/internal", RequireRole(models.RoleAdmin))
		internal.PATCH("/withdrawals/:id", s.patchWithdrawal)
	}

	return r
}

// NewHTTPServer wraps handler in an http.Server, speaking cleartext HTTP/2
// as well when cfg.H2C is set.
func NewHTTPServer(cfg models.HTTPConfig, handler http.Handler) *http.Server {
	if cfg.H2C {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
}

func (s *Server) healthz(c *gin.Context) {
	if err := s.health.Ping(c.Request.Context()); err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
