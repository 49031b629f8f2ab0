/**
 * @description
 * This file defines the `Repository` interface, the persistence gateway
 * contract the billing core requires from the durable store. The ledger logic
 * depends only on this interface, so the PostgreSQL implementation can be
 * swapped for a stub in tests without touching business rules.
 *
 * Mutating calls take the version the caller read; a write against a stale
 * version fails with ErrVersionConflict and is never partially applied. The
 * two composite operations (payment + bill, settlement + claim + bill +
 * payment) commit as single transactions.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lifecare/billing-service/internal/domain"
)

var (
	ErrBillNotFound     = errors.New("bill not found")
	ErrClaimNotFound    = errors.New("claim not found")
	ErrDuplicatePayment = errors.New("payment id already recorded")
	ErrDuplicateClaim   = errors.New("bill already has an unresolved claim")
	ErrVersionConflict  = errors.New("version conflict")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Bill methods
	CreateBill(ctx context.Context, bill *domain.Bill) error
	GetBill(ctx context.Context, billID uuid.UUID) (*domain.Bill, error)
	// UpdateBill writes the bill only if the stored version equals
	// expectedVersion, bumping the version on success.
	UpdateBill(ctx context.Context, bill *domain.Bill, expectedVersion int) error
	// ListOpenBills returns bills with pending amount > 0, oldest first.
	ListOpenBills(ctx context.Context) ([]domain.Bill, error)

	// Payment methods
	// RecordPayment persists the updated bill and the payment row as one
	// transaction: either both are visible to subsequent reads or neither is.
	RecordPayment(ctx context.Context, bill *domain.Bill, expectedVersion int, payment *domain.Payment) error
	ListPayments(ctx context.Context, billID uuid.UUID) ([]domain.Payment, error)

	// Claim methods
	// CreateClaim fails with ErrDuplicateClaim when the bill already carries a
	// non-terminal claim.
	CreateClaim(ctx context.Context, claim *domain.InsuranceClaim) error
	GetClaim(ctx context.Context, claimID uuid.UUID) (*domain.InsuranceClaim, error)
	UpdateClaim(ctx context.Context, claim *domain.InsuranceClaim, expectedVersion int) error
	FindOpenClaimByBillID(ctx context.Context, billID uuid.UUID) (*domain.InsuranceClaim, error)
	// ListLatestClaims returns the most recently submitted claim per bill,
	// keyed by bill id. Used by the reconciliation snapshot.
	ListLatestClaims(ctx context.Context, billIDs []uuid.UUID) (map[uuid.UUID]*domain.InsuranceClaim, error)

	// SettleApprovedClaim commits the approved claim, the settled bill, and
	// the insurance-settlement payment as one transaction, holding the bill
	// row lock so a concurrent desk payment cannot interleave.
	SettleApprovedClaim(ctx context.Context, claim *domain.InsuranceClaim, expectedClaimVersion int, bill *domain.Bill, expectedBillVersion int, payment *domain.Payment) error
}
