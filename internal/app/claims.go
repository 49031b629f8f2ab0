/**
 * @description
 * Claim pipeline orchestration: submission, advancement, and resolution.
 * Approval is the one place where two aggregates move together: the claim
 * reaches its terminal status and the linked bill absorbs an
 * insurance-settlement payment. That composite runs as a single store
 * transaction keyed by the bill, never as two calls the caller must remember
 * to sequence.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/lifecare/billing-service/internal/domain"
	"github.com/lifecare/billing-service/internal/store"
	"github.com/lifecare/billing-service/pkg/rabbitmq"
)

// Claim resolution outcomes accepted by ResolveClaim.
const (
	ResolutionApproved = "approved"
	ResolutionRejected = "rejected"
)

// SubmitClaimInput carries the parameters for claim submission. A zero
// ClaimAmount defaults to the scheme's expected coverage of the bill total.
type SubmitClaimInput struct {
	BillID       uuid.UUID
	Scheme       string
	PolicyNumber string
	ClaimAmount  int64
}

// SubmitClaim opens a claim against a bill. A bill carries at most one
// non-terminal claim; a second submission is rejected with ErrDuplicateClaim.
func (s *Service) SubmitClaim(ctx context.Context, input SubmitClaimInput) (*domain.InsuranceClaim, error) {
	callCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	bill, err := s.repo.GetBill(callCtx, input.BillID)
	if err != nil {
		return nil, err
	}
	if !bill.Open() {
		return nil, domain.ErrAlreadySettled
	}

	claimAmount := input.ClaimAmount
	if claimAmount == 0 {
		claimAmount = s.schemes.Coverage(bill.TotalAmount, input.Scheme)
	}
	claim, err := domain.NewClaim(bill.ID, bill.PatientID, input.Scheme, input.PolicyNumber, claimAmount, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateClaim(callCtx, claim); err != nil {
		return nil, err
	}

	log.Printf("level=info component=claims msg=\"claim submitted\" claim_id=%s bill_id=%s scheme=%s amount=%d",
		claim.ID, claim.BillID, claim.Scheme, claim.ClaimAmount)
	return claim, nil
}

// AdvanceClaim moves a submitted claim into processing.
func (s *Service) AdvanceClaim(ctx context.Context, claimID uuid.UUID) (*domain.InsuranceClaim, error) {
	var claim *domain.InsuranceClaim
	err := s.withConflictRetry(ctx, "advance_claim", func(callCtx context.Context) error {
		current, err := s.repo.GetClaim(callCtx, claimID)
		if err != nil {
			return err
		}
		updated, err := current.Advance()
		if err != nil {
			return err
		}
		if err := s.repo.UpdateClaim(callCtx, &updated, current.Version); err != nil {
			return err
		}
		claim = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=claims msg=\"claim advanced to processing\" claim_id=%s bill_id=%s", claim.ID, claim.BillID)
	return claim, nil
}

// ResolveClaimInput carries the parameters for claim resolution.
type ResolveClaimInput struct {
	ClaimID         uuid.UUID
	Outcome         string
	ApprovedAmount  int64
	RejectionReason string
	ResolvedBy      string
}

// ResolveClaim resolves a processing claim. Approval settles the linked bill
// with exactly one insurance-settlement payment in the same transaction;
// rejection records the mandatory reason and leaves the bill untouched.
func (s *Service) ResolveClaim(ctx context.Context, input ResolveClaimInput) (*domain.InsuranceClaim, error) {
	switch input.Outcome {
	case ResolutionApproved:
		return s.approveClaim(ctx, input)
	case ResolutionRejected:
		return s.rejectClaim(ctx, input)
	default:
		return nil, domain.ErrUnknownClaimResolution
	}
}

func (s *Service) approveClaim(ctx context.Context, input ResolveClaimInput) (*domain.InsuranceClaim, error) {
	var claim *domain.InsuranceClaim
	var bill *domain.Bill
	err := s.withConflictRetry(ctx, "resolve_claim_approved", func(callCtx context.Context) error {
		currentClaim, err := s.repo.GetClaim(callCtx, input.ClaimID)
		if err != nil {
			return err
		}
		currentBill, err := s.repo.GetBill(callCtx, currentClaim.BillID)
		if err != nil {
			return err
		}

		at := s.now()
		updatedClaim, err := currentClaim.Approve(input.ApprovedAmount, at)
		if err != nil {
			return err
		}
		// The settlement payment must fit the bill's pending balance; an
		// approval above it surfaces as Overpayment and nothing is applied.
		updatedBill, err := currentBill.ApplyPayment(input.ApprovedAmount, at)
		if err != nil {
			return err
		}
		updatedBill.ClaimID = &updatedClaim.ID

		payment := &domain.Payment{
			ID:            uuid.New(),
			BillID:        updatedBill.ID,
			Amount:        input.ApprovedAmount,
			Method:        domain.PaymentMethodInsuranceSettlement,
			TransactionID: fmt.Sprintf("claim-settlement-%s", updatedClaim.ID),
			ProcessedBy:   input.ResolvedBy,
			ClaimID:       &updatedClaim.ID,
			CreatedAt:     at,
		}
		if err := s.repo.SettleApprovedClaim(callCtx, &updatedClaim, currentClaim.Version, &updatedBill, currentBill.Version, payment); err != nil {
			return err
		}
		claim, bill = &updatedClaim, &updatedBill
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishClaimResolved(ctx, claim)
	log.Printf("level=info component=claims msg=\"claim approved and settled\" claim_id=%s bill_id=%s approved=%d bill_status=%s",
		claim.ID, claim.BillID, input.ApprovedAmount, bill.Status)
	return claim, nil
}

func (s *Service) rejectClaim(ctx context.Context, input ResolveClaimInput) (*domain.InsuranceClaim, error) {
	var claim *domain.InsuranceClaim
	err := s.withConflictRetry(ctx, "resolve_claim_rejected", func(callCtx context.Context) error {
		current, err := s.repo.GetClaim(callCtx, input.ClaimID)
		if err != nil {
			return err
		}
		updated, err := current.Reject(input.RejectionReason, s.now())
		if err != nil {
			return err
		}
		if err := s.repo.UpdateClaim(callCtx, &updated, current.Version); err != nil {
			return err
		}
		claim = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishClaimResolved(ctx, claim)
	log.Printf("level=info component=claims msg=\"claim rejected\" claim_id=%s bill_id=%s reason=%q",
		claim.ID, claim.BillID, input.RejectionReason)
	return claim, nil
}

// ExpectedCoverage exposes the scheme table for callers that want the
// institutional share of a bill before submitting a claim.
func (s *Service) ExpectedCoverage(totalAmount int64, scheme string) (covered, patientShare int64) {
	return s.schemes.Coverage(totalAmount, scheme), s.schemes.PatientShare(totalAmount, scheme)
}

func (s *Service) publishClaimResolved(ctx context.Context, claim *domain.InsuranceClaim) {
	if s.events == nil {
		return
	}
	event := domain.ClaimResolvedEvent{
		ClaimID:         claim.ID,
		BillID:          claim.BillID,
		Scheme:          claim.Scheme,
		Status:          claim.Status,
		ApprovedAmount:  claim.ApprovedAmount,
		RejectionReason: claim.RejectionReason,
		Timestamp:       s.now(),
	}
	if err := s.events.Publish(ctx, rabbitmq.BillingExchange, rabbitmq.ClaimResolvedKey, event); err != nil {
		log.Printf("level=warn component=claims msg=\"claim event publish failed\" claim_id=%s err=%v", claim.ID, err)
	}
}

// claimLookupFailed reports whether err is a permanent lookup failure that an
// event consumer should acknowledge rather than requeue.
func claimLookupFailed(err error) bool {
	return errors.Is(err, store.ErrClaimNotFound) || errors.Is(err, store.ErrBillNotFound)
}
