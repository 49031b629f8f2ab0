/**
 * @description
 * This file contains the HTTP handlers for the billing-service's API
 * endpoints. Handlers parse incoming requests, call the application service,
 * and map the ledger's error taxonomy onto HTTP statuses. They are the bridge
 * between the web layer and the business logic layer; no billing rule lives
 * here.
 *
 * @dependencies
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lifecare/billing-service/internal/app"
	"github.com/lifecare/billing-service/internal/domain"
	"github.com/lifecare/billing-service/internal/store"
)

// BillingHandlers holds the application service that handlers will use.
type BillingHandlers struct {
	service *app.Service
}

// NewBillingHandlers creates a new instance of BillingHandlers.
func NewBillingHandlers(service *app.Service) *BillingHandlers {
	return &BillingHandlers{service: service}
}

type serviceLineRequest struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount"` // in paise
}

type createBillRequest struct {
	PatientID   uuid.UUID            `json:"patient_id"`
	PatientName string               `json:"patient_name"`
	Department  string               `json:"department"`
	Services    []serviceLineRequest `json:"services"`
	Discount    int64                `json:"discount,omitempty"`
}

type recordPaymentRequest struct {
	PaymentID     *uuid.UUID `json:"payment_id,omitempty"` // optional client-supplied id for idempotent replay
	Amount        int64      `json:"amount"`               // in paise
	Method        string     `json:"method"`
	TransactionID string     `json:"transaction_id"`
}

type discountRequest struct {
	Amount int64 `json:"amount"` // in paise
}

type submitClaimRequest struct {
	BillID       uuid.UUID `json:"bill_id"`
	Scheme       string    `json:"scheme"`
	PolicyNumber string    `json:"policy_number"`
	ClaimAmount  int64     `json:"claim_amount,omitempty"` // zero = expected scheme coverage of the bill total
}

type resolveClaimRequest struct {
	Outcome         string `json:"outcome"`
	ApprovedAmount  int64  `json:"approved_amount,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

type billResponse struct {
	Bill     *domain.Bill     `json:"bill"`
	Payments []domain.Payment `json:"payments,omitempty"`
}

// CreateBillHandler handles bill creation by billing staff.
func (h *BillingHandlers) CreateBillHandler(w http.ResponseWriter, r *http.Request) {
	var req createBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	services := make([]domain.ServiceLine, len(req.Services))
	for i, line := range req.Services {
		services[i] = domain.ServiceLine{Description: line.Description, Amount: line.Amount}
	}

	bill, err := h.service.CreateBill(r.Context(), app.CreateBillInput{
		PatientID:   req.PatientID,
		PatientName: req.PatientName,
		Department:  req.Department,
		Services:    services,
		Discount:    req.Discount,
	})
	if err != nil {
		h.handleServiceError(w, "create_bill", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, billResponse{Bill: bill})
}

// GetBillHandler returns a bill and its payment history.
func (h *BillingHandlers) GetBillHandler(w http.ResponseWriter, r *http.Request) {
	billID, ok := h.pathID(w, r, "billID")
	if !ok {
		return
	}
	bill, payments, err := h.service.GetBill(r.Context(), billID)
	if err != nil {
		h.handleServiceError(w, "get_bill", err)
		return
	}
	h.writeJSON(w, http.StatusOK, billResponse{Bill: bill, Payments: payments})
}

// RecordPaymentHandler applies a payment against a bill.
func (h *BillingHandlers) RecordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	billID, ok := h.pathID(w, r, "billID")
	if !ok {
		return
	}
	staffID, ok := GetStaffID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get staff ID from context")
		return
	}

	var req recordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	input := app.RecordPaymentInput{
		BillID:        billID,
		Amount:        req.Amount,
		Method:        req.Method,
		TransactionID: req.TransactionID,
		ProcessedBy:   staffID,
	}
	if req.PaymentID != nil {
		input.PaymentID = *req.PaymentID
	}

	bill, payment, err := h.service.RecordPayment(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, "record_payment", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"bill":    bill,
		"payment": payment,
	})
}

// ApplyDiscountHandler applies a one-time pre-payment discount.
func (h *BillingHandlers) ApplyDiscountHandler(w http.ResponseWriter, r *http.Request) {
	billID, ok := h.pathID(w, r, "billID")
	if !ok {
		return
	}
	var req discountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	bill, err := h.service.ApplyDiscount(r.Context(), billID, req.Amount)
	if err != nil {
		h.handleServiceError(w, "apply_discount", err)
		return
	}
	h.writeJSON(w, http.StatusOK, billResponse{Bill: bill})
}

// CancelBillHandler cancels a pending, payment-free bill.
func (h *BillingHandlers) CancelBillHandler(w http.ResponseWriter, r *http.Request) {
	billID, ok := h.pathID(w, r, "billID")
	if !ok {
		return
	}
	bill, err := h.service.CancelBill(r.Context(), billID)
	if err != nil {
		h.handleServiceError(w, "cancel_bill", err)
		return
	}
	h.writeJSON(w, http.StatusOK, billResponse{Bill: bill})
}

// SubmitClaimHandler opens an insurance claim against a bill.
func (h *BillingHandlers) SubmitClaimHandler(w http.ResponseWriter, r *http.Request) {
	var req submitClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	claim, err := h.service.SubmitClaim(r.Context(), app.SubmitClaimInput{
		BillID:       req.BillID,
		Scheme:       req.Scheme,
		PolicyNumber: req.PolicyNumber,
		ClaimAmount:  req.ClaimAmount,
	})
	if err != nil {
		h.handleServiceError(w, "submit_claim", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, claim)
}

// AdvanceClaimHandler moves a submitted claim into processing.
func (h *BillingHandlers) AdvanceClaimHandler(w http.ResponseWriter, r *http.Request) {
	claimID, ok := h.pathID(w, r, "claimID")
	if !ok {
		return
	}
	claim, err := h.service.AdvanceClaim(r.Context(), claimID)
	if err != nil {
		h.handleServiceError(w, "advance_claim", err)
		return
	}
	h.writeJSON(w, http.StatusOK, claim)
}

// ResolveClaimHandler resolves a processing claim as approved or rejected.
func (h *BillingHandlers) ResolveClaimHandler(w http.ResponseWriter, r *http.Request) {
	claimID, ok := h.pathID(w, r, "claimID")
	if !ok {
		return
	}
	staffID, ok := GetStaffID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get staff ID from context")
		return
	}

	var req resolveClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	claim, err := h.service.ResolveClaim(r.Context(), app.ResolveClaimInput{
		ClaimID:         claimID,
		Outcome:         req.Outcome,
		ApprovedAmount:  req.ApprovedAmount,
		RejectionReason: req.RejectionReason,
		ResolvedBy:      staffID,
	})
	if err != nil {
		h.handleServiceError(w, "resolve_claim", err)
		return
	}
	h.writeJSON(w, http.StatusOK, claim)
}

// ReconciliationQueueHandler returns the ranked reconciliation work queue,
// optionally filtered by ?tier=.
func (h *BillingHandlers) ReconciliationQueueHandler(w http.ResponseWriter, r *http.Request) {
	tier := r.URL.Query().Get("tier")
	records, err := h.service.ReconciliationQueue(r.Context(), tier)
	if err != nil {
		h.handleServiceError(w, "reconciliation_queue", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(records),
		"records": records,
	})
}

// pathID parses a UUID path parameter, writing a 400 on failure.
func (h *BillingHandlers) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

// handleServiceError maps the ledger error taxonomy onto HTTP statuses.
func (h *BillingHandlers) handleServiceError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, domain.ErrNoServices),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidMethod),
		errors.Is(err, domain.ErrApprovedAmountRequired),
		errors.Is(err, domain.ErrUnknownClaimResolution),
		errors.Is(err, app.ErrUnknownTier):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrBillNotFound),
		errors.Is(err, store.ErrClaimNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrOverpayment):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrAlreadySettled),
		errors.Is(err, domain.ErrBillNotPending),
		errors.Is(err, domain.ErrBillCancelled),
		errors.Is(err, domain.ErrClaimNotSubmitted),
		errors.Is(err, domain.ErrClaimNotProcessing),
		errors.Is(err, domain.ErrClaimTerminal),
		errors.Is(err, domain.ErrApprovedAmountTooHigh),
		errors.Is(err, domain.ErrRejectionReasonRequired),
		errors.Is(err, store.ErrDuplicatePayment),
		errors.Is(err, store.ErrDuplicateClaim),
		errors.Is(err, app.ErrConflictRetriesExhausted):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, http.StatusServiceUnavailable, "Persistence gateway timed out; the operation may not have committed")
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"unhandled service error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON writes data as a JSON response with the given status code.
func (h *BillingHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *BillingHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
