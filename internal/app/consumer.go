package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lifecare/billing-service/internal/domain"
)

// ClaimDecisionConsumer applies insurer decision events from the integration
// queue. It drives the same claim transitions as the resolve API, with
// downgrade protection: a terminal claim ignores late replays of earlier
// statuses instead of failing or regressing.
type ClaimDecisionConsumer struct {
	service *Service
}

func NewClaimDecisionConsumer(service *Service) *ClaimDecisionConsumer {
	return &ClaimDecisionConsumer{service: service}
}

// HandleMessage is the broker callback. Returning true acknowledges the
// message; false requeues it for retry.
func (c *ClaimDecisionConsumer) HandleMessage(body []byte) bool {
	var event domain.ClaimDecisionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=claim_consumer msg=\"unmarshal failed; dropping\" err=%v", err)
		return true
	}
	if event.ClaimID == uuid.Nil {
		log.Printf("level=warn component=claim_consumer msg=\"missing claim id; dropping\" status=%s", event.Status)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.processEvent(ctx, event); err != nil {
		log.Printf("level=error component=claim_consumer msg=\"processing failed; requeueing\" claim_id=%s err=%v", event.ClaimID, err)
		return false
	}
	return true
}

func (c *ClaimDecisionConsumer) processEvent(ctx context.Context, event domain.ClaimDecisionEvent) error {
	claim, err := c.service.repo.GetClaim(ctx, event.ClaimID)
	if err != nil {
		if claimLookupFailed(err) {
			log.Printf("level=warn component=claim_consumer msg=\"unknown claim; acknowledging\" claim_id=%s", event.ClaimID)
			return nil
		}
		return fmt.Errorf("lookup claim: %w", err)
	}

	// Stale replays of non-terminal statuses for a resolved claim are noise,
	// not errors: acknowledge and move on.
	if claim.Terminal() {
		if event.Status == claim.Status {
			return nil
		}
		log.Printf("level=warn component=claim_consumer msg=\"ignoring stale replay for terminal claim\" claim_id=%s current=%s event=%s",
			claim.ID, claim.Status, event.Status)
		return nil
	}

	switch event.Status {
	case domain.ClaimStatusProcessing:
		_, err := c.service.AdvanceClaim(ctx, claim.ID)
		if errors.Is(err, domain.ErrClaimNotSubmitted) {
			// Already processing; replay is harmless.
			return nil
		}
		return err
	case domain.ClaimStatusApproved:
		_, err := c.service.ResolveClaim(ctx, ResolveClaimInput{
			ClaimID:        claim.ID,
			Outcome:        ResolutionApproved,
			ApprovedAmount: event.ApprovedAmount,
			ResolvedBy:     "insurer-integration",
		})
		return err
	case domain.ClaimStatusRejected:
		_, err := c.service.ResolveClaim(ctx, ResolveClaimInput{
			ClaimID:         claim.ID,
			Outcome:         ResolutionRejected,
			RejectionReason: event.RejectionReason,
			ResolvedBy:      "insurer-integration",
		})
		return err
	default:
		log.Printf("level=warn component=claim_consumer msg=\"unknown status; dropping\" claim_id=%s status=%s", claim.ID, event.Status)
		return nil
	}
}
