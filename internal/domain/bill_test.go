package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestBill(t *testing.T, amounts ...int64) *Bill {
	t.Helper()
	services := make([]ServiceLine, len(amounts))
	for i, amount := range amounts {
		services[i] = ServiceLine{Description: "service", Amount: amount}
	}
	bill, err := NewBill(uuid.New(), "Asha Verma", "Cardiology", services, 0, time.Now().UTC())
	if err != nil {
		t.Fatalf("expected bill, got %v", err)
	}
	return bill
}

func TestNewBill_SumsServiceLines(t *testing.T) {
	bill := newTestBill(t, 30000, 10000, 5000)

	if bill.TotalAmount != 45000 {
		t.Fatalf("expected total 45000, got %d", bill.TotalAmount)
	}
	if bill.PaidAmount != 0 || bill.PendingAmount != 45000 {
		t.Fatalf("expected untouched balance, got paid=%d pending=%d", bill.PaidAmount, bill.PendingAmount)
	}
	if bill.Status != BillStatusPending {
		t.Fatalf("expected pending status, got %q", bill.Status)
	}
	if bill.Version != 1 {
		t.Fatalf("expected initial version 1, got %d", bill.Version)
	}
}

func TestNewBill_RejectsEmptyAndNonPositiveLines(t *testing.T) {
	now := time.Now().UTC()

	if _, err := NewBill(uuid.New(), "Asha Verma", "Cardiology", nil, 0, now); !errors.Is(err, ErrNoServices) {
		t.Fatalf("expected ErrNoServices, got %v", err)
	}

	services := []ServiceLine{{Description: "free consult", Amount: 0}}
	if _, err := NewBill(uuid.New(), "Asha Verma", "Cardiology", services, 0, now); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestNewBill_DiscountReducesTotalButMustStayBelowIt(t *testing.T) {
	services := []ServiceLine{{Description: "surgery", Amount: 50000}}
	now := time.Now().UTC()

	bill, err := NewBill(uuid.New(), "Asha Verma", "Surgery", services, 5000, now)
	if err != nil {
		t.Fatalf("expected bill, got %v", err)
	}
	if bill.TotalAmount != 45000 || bill.PendingAmount != 45000 {
		t.Fatalf("expected discounted total 45000, got total=%d pending=%d", bill.TotalAmount, bill.PendingAmount)
	}
	if bill.DiscountApplied != 5000 {
		t.Fatalf("expected discount 5000 recorded, got %d", bill.DiscountApplied)
	}

	if _, err := NewBill(uuid.New(), "Asha Verma", "Surgery", services, 50000, now); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected discount >= total to be rejected, got %v", err)
	}
}

func TestApplyPayment_PartialThenFullSettlement(t *testing.T) {
	bill := newTestBill(t, 45000)
	at := time.Now().UTC()

	afterFirst, err := bill.ApplyPayment(40000, at)
	if err != nil {
		t.Fatalf("expected payment to apply, got %v", err)
	}
	if afterFirst.Status != BillStatusPartiallyPaid {
		t.Fatalf("expected partially_paid, got %q", afterFirst.Status)
	}
	if afterFirst.PaidAmount != 40000 || afterFirst.PendingAmount != 5000 {
		t.Fatalf("expected paid=40000 pending=5000, got paid=%d pending=%d", afterFirst.PaidAmount, afterFirst.PendingAmount)
	}

	afterSecond, err := afterFirst.ApplyPayment(5000, at)
	if err != nil {
		t.Fatalf("expected settling payment to apply, got %v", err)
	}
	if afterSecond.Status != BillStatusPaid {
		t.Fatalf("expected paid, got %q", afterSecond.Status)
	}
	if afterSecond.PendingAmount != 0 {
		t.Fatalf("expected zero pending, got %d", afterSecond.PendingAmount)
	}

	if _, err := afterSecond.ApplyPayment(1, at); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled on settled bill, got %v", err)
	}
}

func TestApplyPayment_OverpaymentLeavesBillUntouched(t *testing.T) {
	bill := newTestBill(t, 45000)

	result, err := bill.ApplyPayment(50000, time.Now().UTC())
	if !errors.Is(err, ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}
	if result.PaidAmount != 0 || result.PendingAmount != 45000 || result.Status != BillStatusPending {
		t.Fatalf("expected unchanged bill after overpayment, got paid=%d pending=%d status=%q",
			result.PaidAmount, result.PendingAmount, result.Status)
	}
}

func TestApplyPayment_RejectsNonPositiveAmount(t *testing.T) {
	bill := newTestBill(t, 10000)
	for _, amount := range []int64{0, -500} {
		if _, err := bill.ApplyPayment(amount, time.Now().UTC()); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount for %d, got %v", amount, err)
		}
	}
}

func TestApplyDiscount_OnlyBeforeAnyPayment(t *testing.T) {
	bill := newTestBill(t, 45000)

	discounted, err := bill.ApplyDiscount(5000)
	if err != nil {
		t.Fatalf("expected discount to apply, got %v", err)
	}
	if discounted.TotalAmount != 40000 || discounted.PendingAmount != 40000 {
		t.Fatalf("expected total 40000 after discount, got total=%d pending=%d", discounted.TotalAmount, discounted.PendingAmount)
	}

	paid, err := discounted.ApplyPayment(10000, time.Now().UTC())
	if err != nil {
		t.Fatalf("expected payment to apply, got %v", err)
	}
	if _, err := paid.ApplyDiscount(1000); !errors.Is(err, ErrBillNotPending) {
		t.Fatalf("expected ErrBillNotPending after payment, got %v", err)
	}
}

func TestCancel_OnlyForUntouchedPendingBill(t *testing.T) {
	bill := newTestBill(t, 20000)

	cancelled, err := bill.Cancel()
	if err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}
	if cancelled.Status != BillStatusCancelled {
		t.Fatalf("expected cancelled status, got %q", cancelled.Status)
	}
	if _, err := cancelled.ApplyPayment(1000, time.Now().UTC()); !errors.Is(err, ErrBillCancelled) {
		t.Fatalf("expected ErrBillCancelled, got %v", err)
	}

	paid, err := bill.ApplyPayment(5000, time.Now().UTC())
	if err != nil {
		t.Fatalf("expected payment to apply, got %v", err)
	}
	if _, err := paid.Cancel(); !errors.Is(err, ErrBillNotPending) {
		t.Fatalf("expected ErrBillNotPending for paid-against bill, got %v", err)
	}
}

func TestOpen_ReflectsUnresolvedBalance(t *testing.T) {
	bill := newTestBill(t, 10000)
	if !bill.Open() {
		t.Fatal("expected pending bill to be open")
	}

	partial, _ := bill.ApplyPayment(4000, time.Now().UTC())
	if !partial.Open() {
		t.Fatal("expected partially paid bill to be open")
	}

	settled, _ := partial.ApplyPayment(6000, time.Now().UTC())
	if settled.Open() {
		t.Fatal("expected settled bill to be closed")
	}

	cancelled, _ := bill.Cancel()
	if cancelled.Open() {
		t.Fatal("expected cancelled bill to be closed")
	}
}
