/**
 * @description
 * Event payloads exchanged with the message broker. Outbound events announce
 * ledger changes to downstream consumers (reporting, notifications); the
 * inbound event carries an insurer's decision for a claim in flight.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentRecordedEvent is published after a payment commits.
type PaymentRecordedEvent struct {
	BillID        uuid.UUID `json:"bill_id"`
	PaymentID     uuid.UUID `json:"payment_id"`
	Amount        int64     `json:"amount"`
	Method        string    `json:"method"`
	BillStatus    string    `json:"bill_status"`
	PendingAmount int64     `json:"pending_amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// ClaimResolvedEvent is published after a claim reaches a terminal status.
type ClaimResolvedEvent struct {
	ClaimID         uuid.UUID `json:"claim_id"`
	BillID          uuid.UUID `json:"bill_id"`
	Scheme          string    `json:"scheme"`
	Status          string    `json:"status"`
	ApprovedAmount  *int64    `json:"approved_amount,omitempty"`
	RejectionReason *string   `json:"rejection_reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// ClaimDecisionEvent is consumed from the insurer integration queue. Status
// follows the claim lifecycle; processing updates are informational and
// approved/rejected trigger the same settlement path as the resolve API.
type ClaimDecisionEvent struct {
	ClaimID         uuid.UUID `json:"claim_id"`
	Status          string    `json:"status"`
	ApprovedAmount  int64     `json:"approved_amount,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	DecidedAt       time.Time `json:"decided_at"`
}
