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

import "fmt"

// MilestoneStatus is the lifecycle state of a milestone.
type MilestoneStatus string

const (
	MilestonePending           MilestoneStatus = "PENDING"
	MilestoneFunded            MilestoneStatus = "FUNDED"
	MilestoneInProgress        MilestoneStatus = "IN_PROGRESS"
	MilestoneSubmitted         MilestoneStatus = "SUBMITTED"
	MilestoneRevisionRequested MilestoneStatus = "REVISION_REQUESTED"
	MilestoneApproved          MilestoneStatus = "APPROVED"
	MilestoneDisputed          MilestoneStatus = "DISPUTED"
)

var milestoneTransitions = map[MilestoneStatus][]MilestoneStatus{
	MilestonePending:           {MilestoneFunded, MilestoneDisputed},
	MilestoneFunded:            {MilestoneInProgress, MilestoneDisputed},
	MilestoneInProgress:        {MilestoneSubmitted, MilestoneDisputed},
	MilestoneSubmitted:         {MilestoneApproved, MilestoneRevisionRequested, MilestoneDisputed},
	MilestoneRevisionRequested: {MilestoneSubmitted, MilestoneDisputed},
}

// ParseMilestoneStatus rejects anything outside the closed set.
func ParseMilestoneStatus(s string) (MilestoneStatus, error) {
	st := MilestoneStatus(s)
	switch st {
	case MilestonePending, MilestoneFunded, MilestoneInProgress, MilestoneSubmitted,
		MilestoneRevisionRequested, MilestoneApproved, MilestoneDisputed:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown milestone status %q", ErrValidation, s)
}

// IsTerminal reports whether no further transitions are possible.
func (s MilestoneStatus) IsTerminal() bool {
	return s == MilestoneApproved || s == MilestoneDisputed
}

func (s MilestoneStatus) CanTransitionTo(next MilestoneStatus) bool {
	for _, allowed := range milestoneTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransactionStatus is the state of a ledger transaction.
type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "PENDING"
	TransactionReleased TransactionStatus = "RELEASED"
	TransactionRefunded TransactionStatus = "REFUNDED"
	TransactionFailed   TransactionStatus = "FAILED"
)

// Ledger rows only ever leave PENDING, never return to it.
var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionPending: {TransactionReleased, TransactionRefunded, TransactionFailed},
}

func ParseTransactionStatus(s string) (TransactionStatus, error) {
	st := TransactionStatus(s)
	switch st {
	case TransactionPending, TransactionReleased, TransactionRefunded, TransactionFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown transaction status %q", ErrValidation, s)
}

func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transactionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// WithdrawalStatus is the payout state of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "PENDING"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalFailed     WithdrawalStatus = "FAILED"
)

var withdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalPending:    {WithdrawalProcessing, WithdrawalFailed},
	WithdrawalProcessing: {WithdrawalCompleted, WithdrawalFailed},
}

func ParseWithdrawalStatus(s string) (WithdrawalStatus, error) {
	st := WithdrawalStatus(s)
	switch st {
	case WithdrawalPending, WithdrawalProcessing, WithdrawalCompleted, WithdrawalFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown withdrawal status %q", ErrValidation, s)
}

func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	for _, allowed := range withdrawalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Reserved reports whether the withdrawal still counts against the balance.
func (s WithdrawalStatus) Reserved() bool {
	return s == WithdrawalPending || s == WithdrawalProcessing
}

// ProjectStatus is the overall state of an engagement.
type ProjectStatus string

const (
	ProjectInProgress ProjectStatus = "IN_PROGRESS"
	ProjectCompleted  ProjectStatus = "COMPLETED"
)

func ParseProjectStatus(s string) (ProjectStatus, error) {
	st := ProjectStatus(s)
	switch st {
	case ProjectInProgress, ProjectCompleted:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown project status %q", ErrValidation, s)
}

// Role is the marketplace role carried by a session.
type Role string

const (
	RoleClient  Role = "CLIENT"
	RoleAnalyst Role = "ANALYST"
	RoleAdmin   Role = "ADMIN"
)

func ParseRole(s string) (Role, error) {
	r := Role(s)
	switch r {
	case RoleClient, RoleAnalyst, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrForbidden, s)
}
