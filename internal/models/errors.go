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
	"errors"
	"fmt"
)

// Sentinel errors shared by every escrow component. Callers wrap them with
// context and match with errors.Is.
var (
	ErrUnauthorized                = errors.New("unauthorized")
	ErrForbidden                   = errors.New("forbidden")
	ErrValidation                  = errors.New("validation error")
	ErrNotFound                    = errors.New("not found")
	ErrIncompleteBankInfo          = errors.New("incomplete bank info")
	ErrInsufficientBalance         = errors.New("insufficient balance")
	ErrIllegalMilestoneTransition  = errors.New("illegal milestone transition")
	ErrInvalidLedgerTransition     = errors.New("invalid ledger transition")
	ErrInvalidWithdrawalTransition = errors.New("invalid withdrawal transition")
	ErrSignatureInvalid            = errors.New("signature invalid")
	ErrDuplicateNotification       = errors.New("duplicate notification")
	ErrSchedulerAnomaly            = errors.New("scheduler anomaly")
	ErrLockNotObtained             = errors.New("lock not obtained")
)

// ErrBelowMinimum is a validation error; errors.Is matches both.
var ErrBelowMinimum = fmt.Errorf("%w: amount below minimum withdrawal", ErrValidation)
