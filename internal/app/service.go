/**
 * @description
 * This file contains the core business logic for the billing-service. The
 * `Service` struct orchestrates bill lifecycle operations, coordinating the
 * pure ledger arithmetic in the domain package with the persistence gateway
 * and the message broker.
 *
 * Key features:
 * - Implements the main use cases: bill creation, payment recording,
 *   pre-payment discounts, and cancellation of untouched bills.
 * - Wraps every mutating write in an optimistic-version check with a bounded
 *   retry-from-fresh-read loop, so concurrent billing desks cannot corrupt a
 *   bill and a livelock cannot hide behind silent retries.
 * - Publishes ledger events to RabbitMQ for asynchronous consumers.
 *
 * @dependencies
 * - internal/domain, internal/store: For ledger rules and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lifecare/billing-service/internal/domain"
	"github.com/lifecare/billing-service/internal/store"
	"github.com/lifecare/billing-service/pkg/rabbitmq"
)

const (
	defaultConflictRetries = 3
	defaultGatewayTimeout  = 10 * time.Second
)

// ErrConflictRetriesExhausted is returned when a mutation kept losing the
// optimistic version race for the configured number of attempts.
var ErrConflictRetriesExhausted = errors.New("write conflict persisted after retries")

// Service provides the core business logic for billing, payments, claims,
// and reconciliation.
type Service struct {
	repo            store.Repository
	events          rabbitmq.Publisher
	schemes         *domain.SchemeTable
	rankOpts        domain.RankOptions
	queueCache      QueueCache
	conflictRetries int
	gatewayTimeout  time.Duration
	now             func() time.Time
}

// NewService creates a new billing service instance.
func NewService(repo store.Repository, events rabbitmq.Publisher, schemes *domain.SchemeTable, rankOpts domain.RankOptions) *Service {
	if schemes == nil {
		schemes = domain.DefaultSchemeTable()
	}
	return &Service{
		repo:            repo,
		events:          events,
		schemes:         schemes,
		rankOpts:        rankOpts,
		conflictRetries: defaultConflictRetries,
		gatewayTimeout:  defaultGatewayTimeout,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// ConfigureLimits overrides the conflict retry bound and the per-call gateway
// timeout. Non-positive values keep the defaults.
func (s *Service) ConfigureLimits(conflictRetries int, gatewayTimeout time.Duration) {
	if conflictRetries > 0 {
		s.conflictRetries = conflictRetries
	}
	if gatewayTimeout > 0 {
		s.gatewayTimeout = gatewayTimeout
	}
}

// SetQueueCache attaches an optional reconciliation queue cache.
func (s *Service) SetQueueCache(cache QueueCache) {
	s.queueCache = cache
}

// storeCtx bounds a gateway call with the configured timeout. A timeout is
// treated as failed-unknown: callers never assume the write committed and
// always re-read before retrying.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.gatewayTimeout)
}

// CreateBillInput carries the parameters for bill creation.
type CreateBillInput struct {
	PatientID   uuid.UUID
	PatientName string
	Department  string
	Services    []domain.ServiceLine
	Discount    int64
}

// CreateBill validates the service lines and persists a new pending bill.
// Validation failures are rejected before any persistence call.
func (s *Service) CreateBill(ctx context.Context, input CreateBillInput) (*domain.Bill, error) {
	bill, err := domain.NewBill(input.PatientID, input.PatientName, input.Department, input.Services, input.Discount, s.now())
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.repo.CreateBill(callCtx, bill); err != nil {
		return nil, fmt.Errorf("persist bill: %w", err)
	}
	log.Printf("level=info component=billing msg=\"bill created\" bill_id=%s patient_id=%s department=%s total=%d",
		bill.ID, bill.PatientID, bill.Department, bill.TotalAmount)
	return bill, nil
}

// GetBill returns a bill together with its append-only payment history.
func (s *Service) GetBill(ctx context.Context, billID uuid.UUID) (*domain.Bill, []domain.Payment, error) {
	callCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	bill, err := s.repo.GetBill(callCtx, billID)
	if err != nil {
		return nil, nil, err
	}
	payments, err := s.repo.ListPayments(callCtx, billID)
	if err != nil {
		return nil, nil, err
	}
	return bill, payments, nil
}

// RecordPaymentInput carries the parameters for payment recording. PaymentID
// may be supplied by the caller for idempotent replay; a duplicate id is
// rejected by the gateway, never applied twice.
type RecordPaymentInput struct {
	BillID        uuid.UUID
	PaymentID     uuid.UUID
	Amount        int64
	Method        string
	TransactionID string
	ProcessedBy   string
}

// RecordPayment applies a payment against a bill's pending balance and
// persists bill and payment as one unit. Lost version races are retried from
// a fresh read up to the configured bound.
func (s *Service) RecordPayment(ctx context.Context, input RecordPaymentInput) (*domain.Bill, *domain.Payment, error) {
	if !domain.ValidPaymentMethod(input.Method) {
		return nil, nil, domain.ErrInvalidMethod
	}
	paymentID := input.PaymentID
	if paymentID == uuid.Nil {
		paymentID = uuid.New()
	}

	var bill *domain.Bill
	var payment *domain.Payment
	err := s.withConflictRetry(ctx, "record_payment", func(callCtx context.Context) error {
		current, err := s.repo.GetBill(callCtx, input.BillID)
		if err != nil {
			return err
		}
		at := s.now()
		updated, err := current.ApplyPayment(input.Amount, at)
		if err != nil {
			return err
		}
		p := &domain.Payment{
			ID:            paymentID,
			BillID:        current.ID,
			Amount:        input.Amount,
			Method:        input.Method,
			TransactionID: input.TransactionID,
			ProcessedBy:   input.ProcessedBy,
			CreatedAt:     at,
		}
		if err := s.repo.RecordPayment(callCtx, &updated, current.Version, p); err != nil {
			return err
		}
		bill, payment = &updated, p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.publishPaymentRecorded(ctx, bill, payment)
	log.Printf("level=info component=billing msg=\"payment recorded\" bill_id=%s payment_id=%s amount=%d method=%s status=%s pending=%d",
		bill.ID, payment.ID, payment.Amount, payment.Method, bill.Status, bill.PendingAmount)
	return bill, payment, nil
}

// ApplyDiscount applies a one-time flat reduction to a bill that has not yet
// received any payment.
func (s *Service) ApplyDiscount(ctx context.Context, billID uuid.UUID, amount int64) (*domain.Bill, error) {
	var bill *domain.Bill
	err := s.withConflictRetry(ctx, "apply_discount", func(callCtx context.Context) error {
		current, err := s.repo.GetBill(callCtx, billID)
		if err != nil {
			return err
		}
		updated, err := current.ApplyDiscount(amount)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateBill(callCtx, &updated, current.Version); err != nil {
			return err
		}
		bill = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=billing msg=\"discount applied\" bill_id=%s discount=%d total=%d", bill.ID, amount, bill.TotalAmount)
	return bill, nil
}

// CancelBill cancels a pending bill with no recorded payments and no
// unresolved claim.
func (s *Service) CancelBill(ctx context.Context, billID uuid.UUID) (*domain.Bill, error) {
	var bill *domain.Bill
	err := s.withConflictRetry(ctx, "cancel_bill", func(callCtx context.Context) error {
		current, err := s.repo.GetBill(callCtx, billID)
		if err != nil {
			return err
		}
		payments, err := s.repo.ListPayments(callCtx, billID)
		if err != nil {
			return err
		}
		if len(payments) > 0 {
			return domain.ErrBillNotPending
		}
		if _, err := s.repo.FindOpenClaimByBillID(callCtx, billID); err == nil {
			return store.ErrDuplicateClaim
		} else if !errors.Is(err, store.ErrClaimNotFound) {
			return err
		}
		updated, err := current.Cancel()
		if err != nil {
			return err
		}
		if err := s.repo.UpdateBill(callCtx, &updated, current.Version); err != nil {
			return err
		}
		bill = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=billing msg=\"bill cancelled\" bill_id=%s", bill.ID)
	return bill, nil
}

// withConflictRetry runs op, re-running it from scratch (including its fresh
// read) when the gateway reports an optimistic version conflict. Any other
// error surfaces immediately.
func (s *Service) withConflictRetry(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	for attempt := 1; attempt <= s.conflictRetries; attempt++ {
		callCtx, cancel := s.storeCtx(ctx)
		err := op(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		log.Printf("level=warn component=billing msg=\"version conflict; retrying from fresh read\" op=%s attempt=%d", operation, attempt)
	}
	return fmt.Errorf("%s: %w", operation, ErrConflictRetriesExhausted)
}

func (s *Service) publishPaymentRecorded(ctx context.Context, bill *domain.Bill, payment *domain.Payment) {
	if s.events == nil {
		return
	}
	event := domain.PaymentRecordedEvent{
		BillID:        bill.ID,
		PaymentID:     payment.ID,
		Amount:        payment.Amount,
		Method:        payment.Method,
		BillStatus:    bill.Status,
		PendingAmount: bill.PendingAmount,
		Timestamp:     payment.CreatedAt,
	}
	if err := s.events.Publish(ctx, rabbitmq.BillingExchange, rabbitmq.PaymentRecordedKey, event); err != nil {
		log.Printf("level=warn component=billing msg=\"payment event publish failed\" bill_id=%s err=%v", bill.ID, err)
	}
}
