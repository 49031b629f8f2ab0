package domain

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

func rankTestOptions() RankOptions {
	return RankOptions{
		MandatoryDepartments: []string{"ICU", "CCU", "Emergency"},
		AgingThreshold:       30 * 24 * time.Hour,
		SmallAmountThreshold: 500000,
	}
}

func openBill(t *testing.T, department string, total int64, createdAt time.Time) Bill {
	t.Helper()
	bill, err := NewBill(uuid.New(), "Asha Verma", department, []ServiceLine{{Description: "care", Amount: total}}, 0, createdAt)
	if err != nil {
		t.Fatalf("expected bill, got %v", err)
	}
	return *bill
}

func TestRankBills_TierClassification(t *testing.T) {
	now := time.Now().UTC()
	opts := rankTestOptions()

	icuBill := openBill(t, "ICU", 800000, now.Add(-2*24*time.Hour))
	claimedBill := openBill(t, "Orthopedics", 600000, now.Add(-5*24*time.Hour))
	agedSmallBill := openBill(t, "Dermatology", 400000, now.Add(-45*24*time.Hour))
	plainBill := openBill(t, "Cardiology", 700000, now.Add(-10*24*time.Hour))

	processingClaim, _ := mustClaim(t, claimedBill, now.Add(-4*24*time.Hour)).Advance()
	claims := map[uuid.UUID]*InsuranceClaim{
		claimedBill.ID: &processingClaim,
	}

	records := RankBills([]Bill{plainBill, agedSmallBill, claimedBill, icuBill}, claims, opts, now)
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}

	tiers := map[uuid.UUID]string{
		icuBill.ID:       TierMandatory,
		claimedBill.ID:   TierHigh,
		plainBill.ID:     TierMedium,
		agedSmallBill.ID: TierLow,
	}
	for _, record := range records {
		if expected := tiers[record.BillID]; record.PriorityTier != expected {
			t.Fatalf("bill in %s: expected tier %s, got %s", record.Department, expected, record.PriorityTier)
		}
	}

	order := []string{TierMandatory, TierHigh, TierMedium, TierLow}
	for i, record := range records {
		if record.PriorityTier != order[i] {
			t.Fatalf("position %d: expected tier %s, got %s", i, order[i], record.PriorityTier)
		}
	}
}

func TestRankBills_MandatoryRequiresUnresolvedClaimState(t *testing.T) {
	now := time.Now().UTC()
	opts := rankTestOptions()

	icuBill := openBill(t, "ICU", 800000, now.Add(-2*24*time.Hour))
	rejected, _ := mustClaim(t, icuBill, now.Add(-1*24*time.Hour)).Advance()
	rejectedClaim, err := rejected.Reject("documents missing", now)
	if err != nil {
		t.Fatalf("expected rejection to succeed, got %v", err)
	}

	records := RankBills([]Bill{icuBill}, map[uuid.UUID]*InsuranceClaim{icuBill.ID: &rejectedClaim}, opts, now)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	// The claim is resolved; what is left is an ordinary patient balance.
	if records[0].PriorityTier != TierMedium {
		t.Fatalf("expected medium tier for resolved-claim ICU bill, got %s", records[0].PriorityTier)
	}
	if records[0].ClaimStatus != ClaimStatusRejected {
		t.Fatalf("expected rejected claim status on record, got %q", records[0].ClaimStatus)
	}
}

func TestRankBills_ExcludesSettledAndCancelledBills(t *testing.T) {
	now := time.Now().UTC()

	open := openBill(t, "Cardiology", 10000, now.Add(-time.Hour))
	settled, err := openBill(t, "Cardiology", 10000, now.Add(-time.Hour)).ApplyPayment(10000, now)
	if err != nil {
		t.Fatalf("expected settlement to apply, got %v", err)
	}
	cancelled, err := openBill(t, "Cardiology", 10000, now.Add(-time.Hour)).Cancel()
	if err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}

	records := RankBills([]Bill{open, settled, cancelled}, nil, rankTestOptions(), now)
	if len(records) != 1 {
		t.Fatalf("expected only the open bill, got %d records", len(records))
	}
	if records[0].BillID != open.ID {
		t.Fatalf("expected the open bill, got %s", records[0].BillID)
	}
}

func TestRankBills_DeterministicTieBreaks(t *testing.T) {
	now := time.Now().UTC()
	opts := rankTestOptions()

	older := openBill(t, "Cardiology", 700000, now.Add(-72*time.Hour))
	newer := openBill(t, "Cardiology", 700000, now.Add(-24*time.Hour))
	larger := openBill(t, "Cardiology", 900000, now.Add(-1*time.Hour))

	bills := []Bill{newer, larger, older}
	first := RankBills(bills, nil, opts, now)

	// Same tier: larger pending first, then older creation time.
	if first[0].BillID != larger.ID {
		t.Fatalf("expected largest pending first, got %s", first[0].BillID)
	}
	if first[1].BillID != older.ID || first[2].BillID != newer.ID {
		t.Fatalf("expected creation-time tie break, got %s then %s", first[1].BillID, first[2].BillID)
	}

	// Shuffled input, identical output.
	second := RankBills([]Bill{older, newer, larger}, nil, opts, now)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("expected identical ranking for identical inputs")
	}
}

func TestRankBills_AgedLargeBalanceStaysMedium(t *testing.T) {
	now := time.Now().UTC()
	opts := rankTestOptions()

	agedLarge := openBill(t, "Oncology", 2000000, now.Add(-90*24*time.Hour))
	records := RankBills([]Bill{agedLarge}, nil, opts, now)
	if records[0].PriorityTier != TierMedium {
		t.Fatalf("expected aged large balance to stay medium, got %s", records[0].PriorityTier)
	}
}

func mustClaim(t *testing.T, bill Bill, at time.Time) InsuranceClaim {
	t.Helper()
	claim, err := NewClaim(bill.ID, bill.PatientID, "CGHS", "CGHS-2001", bill.PendingAmount, at)
	if err != nil {
		t.Fatalf("expected claim, got %v", err)
	}
	return *claim
}
