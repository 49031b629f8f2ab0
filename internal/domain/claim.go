/**
 * @description
 * This file defines the InsuranceClaim domain model and its lifecycle rules.
 * A claim moves submitted -> processing -> {approved, rejected}; approved and
 * rejected are terminal. The transition checks live here so the orchestration
 * layer and the event consumer share one source of truth.
 */

package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Claim lifecycle statuses.
const (
	ClaimStatusSubmitted  = "submitted"
	ClaimStatusProcessing = "processing"
	ClaimStatusApproved   = "approved"
	ClaimStatusRejected   = "rejected"
)

var (
	ErrClaimNotSubmitted       = errors.New("claim can only advance from submitted")
	ErrClaimNotProcessing      = errors.New("claim can only be resolved from processing")
	ErrClaimTerminal           = errors.New("claim is already resolved")
	ErrApprovedAmountTooHigh   = errors.New("approved amount exceeds claim amount")
	ErrRejectionReasonRequired = errors.New("rejection requires a reason")
	ErrApprovedAmountRequired  = errors.New("approval requires an approved amount")
	ErrUnknownClaimResolution  = errors.New("resolution must be approved or rejected")
)

// InsuranceClaim is a request to an institutional insurance scheme to cover
// part of a bill. A bill carries at most one non-terminal claim at a time.
type InsuranceClaim struct {
	ID              uuid.UUID  `json:"id"`
	BillID          uuid.UUID  `json:"bill_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	Scheme          string     `json:"scheme"`
	PolicyNumber    string     `json:"policy_number"`
	ClaimAmount     int64      `json:"claim_amount"` // in paise
	ApprovedAmount  *int64     `json:"approved_amount,omitempty"`
	Status          string     `json:"status"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	Version         int        `json:"version"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// NewClaim validates inputs and builds a submitted claim against a bill.
func NewClaim(billID, patientID uuid.UUID, scheme, policyNumber string, claimAmount int64, now time.Time) (*InsuranceClaim, error) {
	if claimAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	return &InsuranceClaim{
		ID:           uuid.New(),
		BillID:       billID,
		PatientID:    patientID,
		Scheme:       scheme,
		PolicyNumber: policyNumber,
		ClaimAmount:  claimAmount,
		Status:       ClaimStatusSubmitted,
		Version:      1,
		SubmittedAt:  now,
	}, nil
}

// Terminal reports whether the claim has reached approved or rejected.
func (c *InsuranceClaim) Terminal() bool {
	return c.Status == ClaimStatusApproved || c.Status == ClaimStatusRejected
}

// Advance returns a copy of the claim moved from submitted to processing.
func (c InsuranceClaim) Advance() (InsuranceClaim, error) {
	if c.Terminal() {
		return c, ErrClaimTerminal
	}
	if c.Status != ClaimStatusSubmitted {
		return c, ErrClaimNotSubmitted
	}
	updated := c
	updated.Status = ClaimStatusProcessing
	return updated, nil
}

// Approve returns a copy of the claim resolved as approved. The caller is
// responsible for settling the linked bill with an insurance-settlement
// payment in the same transaction.
func (c InsuranceClaim) Approve(approvedAmount int64, at time.Time) (InsuranceClaim, error) {
	if c.Terminal() {
		return c, ErrClaimTerminal
	}
	if c.Status != ClaimStatusProcessing {
		return c, ErrClaimNotProcessing
	}
	if approvedAmount <= 0 {
		return c, ErrApprovedAmountRequired
	}
	if approvedAmount > c.ClaimAmount {
		return c, ErrApprovedAmountTooHigh
	}
	updated := c
	updated.Status = ClaimStatusApproved
	updated.ApprovedAmount = &approvedAmount
	updated.ResolvedAt = &at
	return updated, nil
}

// Reject returns a copy of the claim resolved as rejected.
func (c InsuranceClaim) Reject(reason string, at time.Time) (InsuranceClaim, error) {
	if c.Terminal() {
		return c, ErrClaimTerminal
	}
	if c.Status != ClaimStatusProcessing {
		return c, ErrClaimNotProcessing
	}
	if reason == "" {
		return c, ErrRejectionReasonRequired
	}
	updated := c
	updated.Status = ClaimStatusRejected
	updated.RejectionReason = &reason
	updated.ResolvedAt = &at
	return updated, nil
}
