/**
 * @description
 * This file defines the Bill and Payment domain models for the billing-service,
 * together with the pure ledger arithmetic that governs them. Every balance
 * mutation goes through ApplyPayment/ApplyDiscount so the core invariant
 * (paid + pending == total) is enforced in exactly one place.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (paise), which
 *   avoids floating-point inaccuracies with financial data.
 * - Ledger functions are value-in/value-out: they never mutate the input Bill,
 *   so a failed operation leaves the caller's copy untouched.
 */

package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Bill lifecycle statuses. Transitions are monotonic: pending ->
// partially_paid -> paid. "cancelled" is an administrative terminal state
// reachable only from pending with no payments recorded.
const (
	BillStatusPending       = "pending"
	BillStatusPartiallyPaid = "partially_paid"
	BillStatusPaid          = "paid"
	BillStatusCancelled     = "cancelled"
)

// Payment methods accepted by the ledger.
const (
	PaymentMethodCash                = "cash"
	PaymentMethodTransfer            = "transfer"
	PaymentMethodInsuranceSettlement = "insurance-settlement"
)

var (
	ErrNoServices     = errors.New("bill must contain at least one service line")
	ErrInvalidAmount  = errors.New("amount must be greater than zero")
	ErrInvalidMethod  = errors.New("unknown payment method")
	ErrOverpayment    = errors.New("payment exceeds pending amount")
	ErrAlreadySettled = errors.New("bill is already settled")
	ErrBillNotPending = errors.New("operation requires a pending bill with no payments")
	ErrBillCancelled  = errors.New("bill is cancelled")
)

// ServiceLine is one billed service. Insertion order is billing order.
type ServiceLine struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount"` // in paise
}

// Bill is the authoritative record of charges owed by a patient.
// This struct maps directly to the `bills` table in the database.
type Bill struct {
	ID              uuid.UUID     `json:"id"`
	PatientID       uuid.UUID     `json:"patient_id"`
	PatientName     string        `json:"patient_name"`
	Department      string        `json:"department"`
	Services        []ServiceLine `json:"services"`
	TotalAmount     int64         `json:"total_amount"`     // in paise, fixed after creation (minus one-time discount)
	PaidAmount      int64         `json:"paid_amount"`      // in paise
	PendingAmount   int64         `json:"pending_amount"`   // in paise
	DiscountApplied int64         `json:"discount_applied"` // in paise
	Status          string        `json:"status"`
	ClaimID         *uuid.UUID    `json:"claim_id,omitempty"`
	Version         int           `json:"version"`
	CreatedAt       time.Time     `json:"created_at"`
	LastPaymentAt   *time.Time    `json:"last_payment_at,omitempty"`
}

// Payment is an immutable record reducing a Bill's outstanding balance.
// Rows are append-only; corrections would require an explicit reversal
// entry, which is deliberately not part of this service.
type Payment struct {
	ID            uuid.UUID  `json:"id"`
	BillID        uuid.UUID  `json:"bill_id"`
	Amount        int64      `json:"amount"` // in paise
	Method        string     `json:"method"`
	TransactionID string     `json:"transaction_id"`
	ProcessedBy   string     `json:"processed_by"`
	ClaimID       *uuid.UUID `json:"claim_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewBill validates the service lines and builds a pending Bill. An optional
// one-time discount is applied before any payment can exist, reducing both the
// total and the pending amount.
func NewBill(patientID uuid.UUID, patientName, department string, services []ServiceLine, discount int64, now time.Time) (*Bill, error) {
	if len(services) == 0 {
		return nil, ErrNoServices
	}
	var total int64
	for _, line := range services {
		if line.Amount <= 0 {
			return nil, fmt.Errorf("service %q: %w", line.Description, ErrInvalidAmount)
		}
		total += line.Amount
	}
	if discount < 0 {
		return nil, fmt.Errorf("discount: %w", ErrInvalidAmount)
	}
	if discount >= total {
		return nil, fmt.Errorf("discount %d must be below bill total %d: %w", discount, total, ErrInvalidAmount)
	}

	bill := &Bill{
		ID:              uuid.New(),
		PatientID:       patientID,
		PatientName:     patientName,
		Department:      department,
		Services:        services,
		TotalAmount:     total - discount,
		PaidAmount:      0,
		PendingAmount:   total - discount,
		DiscountApplied: discount,
		Status:          BillStatusPending,
		Version:         1,
		CreatedAt:       now,
	}
	bill.mustBalance()
	return bill, nil
}

// ValidPaymentMethod reports whether method is one the ledger accepts.
func ValidPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCash, PaymentMethodTransfer, PaymentMethodInsuranceSettlement:
		return true
	}
	return false
}

// ApplyPayment returns a copy of the bill with amount applied against its
// pending balance. Overpayment is rejected rather than clamped: a bill must
// never show a negative pending amount, and the caller is expected to use a
// smaller amount or a prior discount instead.
func (b Bill) ApplyPayment(amount int64, at time.Time) (Bill, error) {
	if amount <= 0 {
		return b, ErrInvalidAmount
	}
	switch b.Status {
	case BillStatusPaid:
		return b, ErrAlreadySettled
	case BillStatusCancelled:
		return b, ErrBillCancelled
	}
	if amount > b.PendingAmount {
		return b, ErrOverpayment
	}

	updated := b
	updated.PaidAmount += amount
	updated.PendingAmount -= amount
	updated.Status = statusFor(updated.PaidAmount, updated.PendingAmount)
	updated.LastPaymentAt = &at
	updated.mustBalance()
	return updated, nil
}

// ApplyDiscount returns a copy of the bill with a flat reduction applied to
// both the total and pending amounts. Legal only while the bill is pending
// with no payments recorded.
func (b Bill) ApplyDiscount(amount int64) (Bill, error) {
	if amount <= 0 {
		return b, ErrInvalidAmount
	}
	if b.Status != BillStatusPending || b.PaidAmount != 0 {
		return b, ErrBillNotPending
	}
	if amount >= b.TotalAmount {
		return b, fmt.Errorf("discount %d must be below bill total %d: %w", amount, b.TotalAmount, ErrInvalidAmount)
	}

	updated := b
	updated.TotalAmount -= amount
	updated.PendingAmount -= amount
	updated.DiscountApplied += amount
	updated.mustBalance()
	return updated, nil
}

// Cancel returns a copy of the bill marked cancelled. Legal only while the
// bill is pending with no payments recorded.
func (b Bill) Cancel() (Bill, error) {
	if b.Status != BillStatusPending || b.PaidAmount != 0 {
		return b, ErrBillNotPending
	}
	updated := b
	updated.Status = BillStatusCancelled
	return updated, nil
}

// Open reports whether the bill still carries an unresolved balance.
func (b *Bill) Open() bool {
	return b.Status == BillStatusPending || b.Status == BillStatusPartiallyPaid
}

func statusFor(paid, pending int64) string {
	switch {
	case pending == 0:
		return BillStatusPaid
	case paid == 0:
		return BillStatusPending
	default:
		return BillStatusPartiallyPaid
	}
}

// mustBalance panics if the ledger arithmetic ever breaks paid + pending ==
// total. Reaching this is a programming error in the ledger itself, not a
// recoverable condition.
func (b *Bill) mustBalance() {
	if b.PaidAmount+b.PendingAmount != b.TotalAmount {
		panic(fmt.Sprintf("bill %s ledger out of balance: paid=%d pending=%d total=%d",
			b.ID, b.PaidAmount, b.PendingAmount, b.TotalAmount))
	}
	if b.PaidAmount < 0 || b.PendingAmount < 0 {
		panic(fmt.Sprintf("bill %s ledger negative: paid=%d pending=%d", b.ID, b.PaidAmount, b.PendingAmount))
	}
}
