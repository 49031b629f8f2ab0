/**
 * @description
 * Reconciliation work queue assembly. The queue is a pure, deterministic
 * ranking over a snapshot of open bills and their latest claims; writers are
 * never blocked by it and a slightly stale snapshot is acceptable, so the
 * computed queue can be cached for a short TTL.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/lifecare/billing-service/internal/domain"
)

// ErrUnknownTier rejects a reconciliation filter outside the known tiers.
var ErrUnknownTier = errors.New("unknown priority tier")

// ReconciliationQueue returns the ranked queue of unresolved bills, optionally
// filtered to one priority tier. The full snapshot is cached when a cache is
// attached; the tier filter always applies after the cache.
func (s *Service) ReconciliationQueue(ctx context.Context, tier string) ([]domain.ReconciliationRecord, error) {
	if tier != "" && !domain.ValidTier(tier) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	records, err := s.loadQueue(ctx)
	if err != nil {
		return nil, err
	}
	if tier == "" {
		return records, nil
	}

	filtered := make([]domain.ReconciliationRecord, 0, len(records))
	for _, record := range records {
		if record.PriorityTier == tier {
			filtered = append(filtered, record)
		}
	}
	return filtered, nil
}

func (s *Service) loadQueue(ctx context.Context) ([]domain.ReconciliationRecord, error) {
	if s.queueCache != nil {
		if records, ok := s.queueCache.Get(ctx); ok {
			return records, nil
		}
	}

	callCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	bills, err := s.repo.ListOpenBills(callCtx)
	if err != nil {
		return nil, fmt.Errorf("list open bills: %w", err)
	}
	billIDs := make([]uuid.UUID, len(bills))
	for i := range bills {
		billIDs[i] = bills[i].ID
	}
	claims, err := s.repo.ListLatestClaims(callCtx, billIDs)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}

	records := domain.RankBills(bills, claims, s.rankOpts, s.now())
	if s.queueCache != nil {
		if err := s.queueCache.Set(ctx, records); err != nil {
			log.Printf("level=warn component=reconcile msg=\"queue cache write failed\" err=%v", err)
		}
	}
	return records, nil
}
