/**
 * @description
 * This file sets up the HTTP router for the billing-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies middleware for logging, panic recovery, timeouts, and staff
 * authentication.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// BillingRoutes creates and returns a new router for the billing service.
func BillingRoutes(h *BillingHandlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require staff authentication.
	r.Group(func(r chi.Router) {
		r.Use(StaffAuthMiddleware(jwksURL))

		r.Post("/bills", h.CreateBillHandler)
		r.Get("/bills/{billID}", h.GetBillHandler)
		r.Post("/bills/{billID}/payments", h.RecordPaymentHandler)
		r.Post("/bills/{billID}/discount", h.ApplyDiscountHandler)
		r.Post("/bills/{billID}/cancel", h.CancelBillHandler)

		r.Post("/claims", h.SubmitClaimHandler)
		r.Post("/claims/{claimID}/advance", h.AdvanceClaimHandler)
		r.Post("/claims/{claimID}/resolve", h.ResolveClaimHandler)

		r.Get("/reconciliation", h.ReconciliationQueueHandler)
	})

	return r
}
