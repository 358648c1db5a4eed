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

package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"milestone-escrow-go/internal/clock"
	"milestone-escrow-go/internal/escrow"
	"milestone-escrow-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Result describes how a notification was handled. Every result is
// acknowledged to the gateway with 200.
type Result string

const (
	ResultApplied      Result = "APPLIED"
	ResultDuplicate    Result = "DUPLICATE"
	ResultAcknowledged Result = "ACKNOWLEDGED"
)

// PaymentApplier applies a classified payment event to the ledger.
type PaymentApplier interface {
	ApplyPaymentEvent(ctx context.Context, ev escrow.PaymentEvent) error
}

// Handler verifies and applies payment gateway notifications.
type Handler struct {
	applier   PaymentApplier
	clock     clock.Clock
	serverKey string
	timeout   time.Duration
}

func NewHandler(applier PaymentApplier, clk clock.Clock, cfg models.GatewayConfig) *Handler {
	return &Handler{
		applier:   applier,
		clock:     clk,
		serverKey: cfg.ServerKey,
		timeout:   cfg.HandlerTimeout,
	}
}

// Handle verifies the signature, classifies the status and applies it.
// A notification that fails verification changes nothing.
func (h *Handler) Handle(ctx context.Context, n models.GatewayNotification) (Result, error) {
	if err := h.Verify(n); err != nil {
		zap.L().Warn("Rejected gateway notification",
			zap.String("order_id", n.OrderId),
			zap.String("transaction_status", n.TransactionStatus),
			zap.Error(err))
		return "", err
	}
	if strings.TrimSpace(n.OrderId) == "" || strings.TrimSpace(n.TransactionStatus) == "" {
		return "", fmt.Errorf("%w: order_id and transaction_status are required", models.ErrValidation)
	}

	outcome, ok := Classify(n)
	if !ok {
		zap.L().Info("Acknowledged gateway notification without ledger effect",
			zap.String("order_id", n.OrderId),
			zap.String("transaction_status", n.TransactionStatus),
			zap.String("fraud_status", n.FraudStatus))
		return ResultAcknowledged, nil
	}

	gross, err := parseGross(n.GrossAmount)
	if err != nil {
		return "", err
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	err = h.applier.ApplyPaymentEvent(ctx, escrow.PaymentEvent{
		OrderId:       n.OrderId,
		Outcome:       outcome,
		PaymentMethod: n.PaymentType,
		GrossAmount:   gross,
		Receipt: models.NotificationReceipt{
			Key:               n.DedupKey(),
			OrderId:           n.OrderId,
			TransactionStatus: n.TransactionStatus,
			ReceivedAt:        h.clock.Now(),
		},
	})
	if escrow.IsDuplicate(err) {
		zap.L().Info("Duplicate gateway notification",
			zap.String("order_id", n.OrderId),
			zap.String("transaction_status", n.TransactionStatus))
		return ResultDuplicate, nil
	}
	if escrow.IsUnknownOrder(err) {
		// Retries would never succeed, so the gateway gets a 200.
		zap.L().Warn("Gateway notification for unknown order",
			zap.String("order_id", n.OrderId),
			zap.String("transaction_status", n.TransactionStatus))
		return ResultAcknowledged, nil
	}
	if err != nil {
		return "", err
	}
	return ResultApplied, nil
}

// Verify checks signature_key against SHA-512 of order_id, status_code,
// gross_amount and the server key. An unconfigured key rejects everything.
func (h *Handler) Verify(n models.GatewayNotification) error {
	if h.serverKey == "" {
		return fmt.Errorf("%w: gateway server key not configured", models.ErrSignatureInvalid)
	}
	expected := Sign(n.OrderId, n.StatusCode, n.GrossAmount, h.serverKey)
	got := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return fmt.Errorf("%w: signature mismatch for order %s", models.ErrSignatureInvalid, n.OrderId)
	}
	return nil
}

// Sign computes the gateway's notification signature.
func Sign(orderId, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderId + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// Classify maps a gateway status to its ledger outcome. ok is false for
// statuses that are acknowledged without any ledger effect.
func Classify(n models.GatewayNotification) (escrow.PaymentOutcome, bool) {
	switch n.TransactionStatus {
	case models.GatewayCapture:
		switch n.FraudStatus {
		case "", models.FraudAccept:
			return escrow.OutcomeCaptured, true
		case models.FraudDeny:
			return escrow.OutcomeFailed, true
		}
		return "", false
	case models.GatewaySettlement:
		return escrow.OutcomeCaptured, true
	case models.GatewayDeny, models.GatewayCancel, models.GatewayExpire, models.GatewayFailure:
		return escrow.OutcomeFailed, true
	case models.GatewayRefund:
		return escrow.OutcomeRefunded, true
	}
	return "", false
}

// parseGross accepts the gateway's "150000.00" style amounts.
func parseGross(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: gross_amount %q is not a number", models.ErrValidation, s)
	}
	return d, nil
}
