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

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"milestone-escrow-go/internal/balance"
	"milestone-escrow-go/internal/common"
	"milestone-escrow-go/internal/config"
	"milestone-escrow-go/internal/database"
	"milestone-escrow-go/internal/formance"
	"milestone-escrow-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type balanceStats struct {
	totalAnalysts       int
	analystsWithFunds   int
	reconcileMismatches int
}

func printAnalystHeader(p models.AnalystProfile) {
	fmt.Printf("\n┌─ Analyst: %s\n", p.Name)
	fmt.Printf("│  ID:   %s\n", p.UserId)
	fmt.Printf("│  Bank: %s %s\n", p.BankName, p.BankAccountNumber)
	fmt.Println("├" + "──────────────────────────────────────────────────────────────────────────────")
}

func printSummary(s models.BalanceSummary) {
	rows := []struct {
		label  string
		amount decimal.Decimal
	}{
		{"Total earned", s.Total},
		{"Withdrawn", s.Withdrawn},
		{"Pending payout", s.Pending},
		{"Security hold", s.SecurityHold},
		{"Available", s.Available},
	}
	for _, r := range rows {
		fmt.Printf("%s %-15s: %20s\n", common.BoxPrefix(false), r.label, common.FormatAmount(r.amount))
	}
	next := "none"
	if s.NextRelease != nil {
		at := s.NextRelease.AvailableAt
		next = fmt.Sprintf("%s at %s", common.FormatAmount(s.NextRelease.Amount), common.FormatTime(&at))
	}
	fmt.Printf("%s %-15s: %s\n", common.BoxPrefix(true), "Next release", next)
}

// reconcile compares the mirrored analyst accounts with the local ledger.
// The earnings account holds released funds not yet reserved or paid out.
func reconcile(ctx context.Context, mirror *formance.Service, analystId string, s models.BalanceSummary) (bool, error) {
	earnings, err := mirror.AnalystEarnings(ctx, analystId)
	if err != nil {
		return false, err
	}
	pending, err := mirror.AnalystPendingPayouts(ctx, analystId)
	if err != nil {
		return false, err
	}

	checks := []struct {
		label    string
		mirrored decimal.Decimal
		local    decimal.Decimal
	}{
		{"Earnings", earnings, s.Total.Sub(s.Withdrawn).Sub(s.Pending)},
		{"Pending payout", pending, s.Pending},
	}

	fmt.Println("   Formance reconciliation:")
	match := true
	for i, c := range checks {
		status := "✓"
		if !c.mirrored.Equal(c.local) {
			status = "✗"
			match = false
		}
		fmt.Printf("   %s%s %-15s: mirror %s, local %s\n", common.BoxDetailPrefix(i == len(checks)-1), status,
			c.label, common.FormatAmount(c.mirrored), common.FormatAmount(c.local))
	}
	return match, nil
}

func processAnalysts(ctx context.Context, profiles []models.AnalystProfile, dbService *database.Service, mirror *formance.Service, logger *zap.Logger) balanceStats {
	stats := balanceStats{}
	now := time.Now().UTC()

	for _, p := range profiles {
		stats.totalAnalysts++

		summary, err := balance.ForAnalyst(ctx, dbService, p.UserId, now)
		if err != nil {
			logger.Error("Failed to compute balance",
				zap.String("analyst_id", p.UserId),
				zap.Error(err))
			continue
		}
		if summary.Total.IsZero() {
			continue
		}
		stats.analystsWithFunds++

		printAnalystHeader(p)
		printSummary(summary)

		if mirror != nil {
			match, err := reconcile(ctx, mirror, p.UserId, summary)
			if err != nil {
				logger.Warn("Failed to reconcile with Formance",
					zap.String("analyst_id", p.UserId),
					zap.Error(err))
				continue
			}
			if !match {
				stats.reconcileMismatches++
			}
		}
	}

	return stats
}

func main() {
	ctx := context.Background()

	analystFlag := flag.String("analyst", "", "Filter by analyst user id (optional)")
	reconcileFlag := flag.Bool("reconcile", false, "Compare each balance with the Formance mirror")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	logger.Info("Starting balance query")

	// Read-only: no locks or domain services needed
	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	var mirror *formance.Service
	if *reconcileFlag {
		mirror, err = formance.NewService(ctx, cfg.Formance)
		if err != nil {
			logger.Fatal("Failed to connect to Formance", zap.Error(err))
		}
	}

	var profiles []models.AnalystProfile
	if *analystFlag != "" {
		p, err := dbService.GetAnalystProfile(ctx, *analystFlag)
		if err != nil {
			logger.Fatal("Analyst not found", zap.String("analyst_id", *analystFlag), zap.Error(err))
		}
		profiles = append(profiles, *p)
	} else {
		profiles, err = dbService.ListAnalystProfiles(ctx)
		if err != nil {
			logger.Fatal("Failed to list analysts", zap.Error(err))
		}
	}

	common.PrintHeader("ANALYST BALANCE REPORT", common.WideWidth)

	stats := processAnalysts(ctx, profiles, dbService, mirror, logger)

	summary := fmt.Sprintf("SUMMARY: %d analysts with earnings (%d queried)",
		stats.analystsWithFunds, stats.totalAnalysts)
	if mirror != nil {
		summary += fmt.Sprintf(", %d reconciliation mismatches", stats.reconcileMismatches)
	}
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Balance query completed",
		zap.Int("analysts_queried", stats.totalAnalysts),
		zap.Int("analysts_with_funds", stats.analystsWithFunds),
		zap.Int("reconcile_mismatches", stats.reconcileMismatches))
}
