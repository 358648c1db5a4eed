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

// GatewayNotification is the signed payment status callback from the gateway
type GatewayNotification struct {
	OrderId           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionId     string `json:"transaction_id"`
}

// Gateway transaction_status values
const (
	GatewayCapture       = "capture"
	GatewaySettlement    = "settlement"
	GatewayPending       = "pending"
	GatewayDeny          = "deny"
	GatewayCancel        = "cancel"
	GatewayExpire        = "expire"
	GatewayFailure       = "failure"
	GatewayRefund        = "refund"
	GatewayPartialRefund = "partial_refund"
)

// Gateway fraud_status values
const (
	FraudAccept    = "accept"
	FraudChallenge = "challenge"
	FraudDeny      = "deny"
)

// DedupKey identifies one delivery of one event for one order.
func (n *GatewayNotification) DedupKey() string {
	return n.OrderId + ":" + n.TransactionStatus
}
