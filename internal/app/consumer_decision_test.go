package app

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lifecare/billing-service/internal/domain"
)

func decisionBody(t *testing.T, event domain.ClaimDecisionEvent) []byte {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("expected marshal, got %v", err)
	}
	return body
}

func TestHandleMessage_ApprovedDecisionSettlesClaim(t *testing.T) {
	repo := newClaimStub(t, 15000, domain.ClaimStatusProcessing)
	repo.claim.ClaimAmount = 15000
	service := NewService(repo, &stubPublisher{}, nil, domain.RankOptions{})
	consumer := NewClaimDecisionConsumer(service)

	ack := consumer.HandleMessage(decisionBody(t, domain.ClaimDecisionEvent{
		ClaimID:        repo.claim.ID,
		Status:         domain.ClaimStatusApproved,
		ApprovedAmount: 15000,
		DecidedAt:      time.Now().UTC(),
	}))
	if !ack {
		t.Fatal("expected decision to be acknowledged")
	}
	if repo.claim.Status != domain.ClaimStatusApproved {
		t.Fatalf("expected approved claim, got %q", repo.claim.Status)
	}
	if repo.bill.Status != domain.BillStatusPaid {
		t.Fatalf("expected settled bill, got %q", repo.bill.Status)
	}
	if repo.settledPayment == nil || repo.settledPayment.ProcessedBy != "insurer-integration" {
		t.Fatalf("expected settlement attributed to insurer integration, got %+v", repo.settledPayment)
	}
}

func TestHandleMessage_RejectedDecisionRecordsReason(t *testing.T) {
	repo := newClaimStub(t, 15000, domain.ClaimStatusProcessing)
	service := NewService(repo, &stubPublisher{}, nil, domain.RankOptions{})
	consumer := NewClaimDecisionConsumer(service)

	ack := consumer.HandleMessage(decisionBody(t, domain.ClaimDecisionEvent{
		ClaimID:         repo.claim.ID,
		Status:          domain.ClaimStatusRejected,
		RejectionReason: "treatment not covered",
		DecidedAt:       time.Now().UTC(),
	}))
	if !ack {
		t.Fatal("expected decision to be acknowledged")
	}
	if repo.claim.Status != domain.ClaimStatusRejected {
		t.Fatalf("expected rejected claim, got %q", repo.claim.Status)
	}
	if repo.claim.RejectionReason == nil || *repo.claim.RejectionReason != "treatment not covered" {
		t.Fatalf("expected recorded reason, got %v", repo.claim.RejectionReason)
	}
	if repo.bill.PaidAmount != 0 {
		t.Fatalf("expected bill untouched, got paid=%d", repo.bill.PaidAmount)
	}
}

func TestHandleMessage_StaleReplayForTerminalClaimIsAcked(t *testing.T) {
	repo := newClaimStub(t, 15000, domain.ClaimStatusApproved)
	service := NewService(repo, &stubPublisher{}, nil, domain.RankOptions{})
	consumer := NewClaimDecisionConsumer(service)

	ack := consumer.HandleMessage(decisionBody(t, domain.ClaimDecisionEvent{
		ClaimID:   repo.claim.ID,
		Status:    domain.ClaimStatusProcessing,
		DecidedAt: time.Now().UTC(),
	}))
	if !ack {
		t.Fatal("expected stale replay to be acknowledged, not requeued")
	}
	if repo.claim.Status != domain.ClaimStatusApproved {
		t.Fatalf("expected terminal claim untouched, got %q", repo.claim.Status)
	}
	if repo.settleCalls != 0 {
		t.Fatal("did not expect any settlement for a stale replay")
	}
}

func TestHandleMessage_ProcessingReplayForProcessingClaimIsHarmless(t *testing.T) {
	repo := newClaimStub(t, 15000, domain.ClaimStatusProcessing)
	service := NewService(repo, &stubPublisher{}, nil, domain.RankOptions{})
	consumer := NewClaimDecisionConsumer(service)

	ack := consumer.HandleMessage(decisionBody(t, domain.ClaimDecisionEvent{
		ClaimID:   repo.claim.ID,
		Status:    domain.ClaimStatusProcessing,
		DecidedAt: time.Now().UTC(),
	}))
	if !ack {
		t.Fatal("expected duplicate processing event to be acknowledged")
	}
	if repo.claim.Status != domain.ClaimStatusProcessing {
		t.Fatalf("expected claim left processing, got %q", repo.claim.Status)
	}
}

func TestHandleMessage_MalformedPayloadsAreDropped(t *testing.T) {
	repo := newClaimStub(t, 15000, domain.ClaimStatusProcessing)
	service := NewService(repo, &stubPublisher{}, nil, domain.RankOptions{})
	consumer := NewClaimDecisionConsumer(service)

	if !consumer.HandleMessage([]byte("not json")) {
		t.Fatal("expected malformed payload to be acked and dropped")
	}
	if !consumer.HandleMessage(decisionBody(t, domain.ClaimDecisionEvent{Status: domain.ClaimStatusApproved})) {
		t.Fatal("expected payload without claim id to be acked and dropped")
	}
}

func TestHandleMessage_UnknownClaimIsAcked(t *testing.T) {
	repo := newClaimStub(t, 15000, domain.ClaimStatusProcessing)
	service := NewService(repo, &stubPublisher{}, nil, domain.RankOptions{})
	consumer := NewClaimDecisionConsumer(service)

	ack := consumer.HandleMessage(decisionBody(t, domain.ClaimDecisionEvent{
		ClaimID: uuid.New(),
		Status:  domain.ClaimStatusApproved,
	}))
	if !ack {
		t.Fatal("expected unknown claim to be acked, not requeued forever")
	}
}
