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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankInfo is the payout destination shown to the analyst
type BankInfo struct {
	BankName          string `json:"bankName"`
	BankAccountNumber string `json:"bankAccountNumber"`
	BankAccountName   string `json:"bankAccountName"`
}

// NextRelease is the earliest still-held release
type NextRelease struct {
	Amount      decimal.Decimal `json:"amount"`
	AvailableAt time.Time       `json:"availableAt"`
}

// BalanceSummary is the derived balance of one analyst at an instant
type BalanceSummary struct {
	Total        decimal.Decimal `json:"total"`
	Withdrawn    decimal.Decimal `json:"withdrawn"`
	Pending      decimal.Decimal `json:"pending"`
	SecurityHold decimal.Decimal `json:"securityHold"`
	Available    decimal.Decimal `json:"available"`
	NextRelease  *NextRelease    `json:"nextRelease"`
}

// WithdrawalOverview is the analyst's withdrawal page
type WithdrawalOverview struct {
	Balance     BalanceSummary `json:"balance"`
	BankInfo    *BankInfo      `json:"bankInfo"`
	Withdrawals []Withdrawal   `json:"withdrawals"`
}

// MilestoneDraft is one milestone of an accepted proposal
type MilestoneDraft struct {
	Title     string          `json:"title" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	DueDate   *time.Time      `json:"dueDate"`
	SortOrder int             `json:"sortOrder"`
}

// ProposalAcceptance creates a project from an accepted proposal
type ProposalAcceptance struct {
	AnalystId  string           `json:"analystId" binding:"required"`
	Title      string           `json:"title" binding:"required,max=200"`
	Milestones []MilestoneDraft `json:"milestones" binding:"required,min=1,dive"`
}

// FundingResult hands the order id to the payment collaborator
type FundingResult struct {
	OrderId     string          `json:"orderId"`
	MilestoneId string          `json:"milestoneId"`
	GrossAmount decimal.Decimal `json:"grossAmount"`
	Fee         decimal.Decimal `json:"fee"`
	NetAmount   decimal.Decimal `json:"netAmount"`
}

// SweepResult summarises one auto-release sweep
type SweepResult struct {
	Scanned  int `json:"scanned"`
	Released int `json:"released"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}
