/**
 * @description
 * This file implements the patient-wise reconciliation ranking: every bill
 * with an unresolved balance is classified into a priority tier and the
 * result is sorted into the operator work queue. The ranking is a pure
 * function of its inputs, which is what makes operator queues reproducible.
 */

package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority tiers, highest urgency first.
const (
	TierMandatory = "mandatory"
	TierHigh      = "high"
	TierMedium    = "medium"
	TierLow       = "low"
)

// tierRank orders tiers for sorting; lower is more urgent.
var tierRank = map[string]int{
	TierMandatory: 0,
	TierHigh:      1,
	TierMedium:    2,
	TierLow:       3,
}

// ValidTier reports whether tier is a known priority tier.
func ValidTier(tier string) bool {
	_, ok := tierRank[tier]
	return ok
}

// ReconciliationRecord is a derived view row, never persisted on its own.
type ReconciliationRecord struct {
	BillID        uuid.UUID `json:"bill_id"`
	PatientName   string    `json:"patient_name"`
	Department    string    `json:"department"`
	PriorityTier  string    `json:"priority_tier"`
	PendingAmount int64     `json:"pending_amount"` // in paise
	ClaimStatus   string    `json:"claim_status,omitempty"`
	LastUpdated   time.Time `json:"last_updated"`
}

// RankOptions carries the configurable knobs of the ranking.
type RankOptions struct {
	// MandatoryDepartments are the acute/critical departments whose unresolved
	// bills always surface first. Matching is case-insensitive.
	MandatoryDepartments []string
	// AgingThreshold is the age past which a small leftover balance is demoted
	// to the low tier (delay tracking rather than active collection).
	AgingThreshold time.Duration
	// SmallAmountThreshold is the pending amount (in paise) at or below which
	// an aged bill counts as small.
	SmallAmountThreshold int64
}

func (o RankOptions) mandatory(department string) bool {
	for _, d := range o.MandatoryDepartments {
		if strings.EqualFold(strings.TrimSpace(d), strings.TrimSpace(department)) {
			return true
		}
	}
	return false
}

// RankBills classifies every open bill (pending amount > 0) into a priority
// tier and returns the ordered work queue. claims maps a bill id to its most
// recent claim, if any. Deterministic given identical inputs: ties within a
// tier break by descending pending amount, then ascending creation time, then
// bill id.
func RankBills(bills []Bill, claims map[uuid.UUID]*InsuranceClaim, opts RankOptions, now time.Time) []ReconciliationRecord {
	records := make([]ReconciliationRecord, 0, len(bills))
	created := make(map[uuid.UUID]time.Time, len(bills))
	for i := range bills {
		bill := bills[i]
		if !bill.Open() || bill.PendingAmount <= 0 {
			continue
		}
		claim := claims[bill.ID]
		created[bill.ID] = bill.CreatedAt

		record := ReconciliationRecord{
			BillID:        bill.ID,
			PatientName:   bill.PatientName,
			Department:    bill.Department,
			PriorityTier:  classify(bill, claim, opts, now),
			PendingAmount: bill.PendingAmount,
			LastUpdated:   lastUpdated(bill, claim),
		}
		if claim != nil {
			record.ClaimStatus = claim.Status
		}
		records = append(records, record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := records[i], records[j]
		if tierRank[ri.PriorityTier] != tierRank[rj.PriorityTier] {
			return tierRank[ri.PriorityTier] < tierRank[rj.PriorityTier]
		}
		if ri.PendingAmount != rj.PendingAmount {
			return ri.PendingAmount > rj.PendingAmount
		}
		ci, cj := created[ri.BillID], created[rj.BillID]
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return ri.BillID.String() < rj.BillID.String()
	})
	return records
}

func classify(bill Bill, claim *InsuranceClaim, opts RankOptions, now time.Time) string {
	unresolvedClaim := claim == nil || !claim.Terminal()
	if unresolvedClaim && opts.mandatory(bill.Department) {
		return TierMandatory
	}
	if claim != nil && claim.Status == ClaimStatusProcessing {
		return TierHigh
	}
	aged := opts.AgingThreshold > 0 && now.Sub(bill.CreatedAt) > opts.AgingThreshold
	if aged && opts.SmallAmountThreshold > 0 && bill.PendingAmount <= opts.SmallAmountThreshold {
		return TierLow
	}
	return TierMedium
}

func lastUpdated(bill Bill, claim *InsuranceClaim) time.Time {
	latest := bill.CreatedAt
	if bill.LastPaymentAt != nil && bill.LastPaymentAt.After(latest) {
		latest = *bill.LastPaymentAt
	}
	if claim != nil {
		if claim.SubmittedAt.After(latest) {
			latest = claim.SubmittedAt
		}
		if claim.ResolvedAt != nil && claim.ResolvedAt.After(latest) {
			latest = *claim.ResolvedAt
		}
	}
	return latest
}
