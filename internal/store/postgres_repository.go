/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL needed for the bills, payments, and
 * claims tables, including the optimistic version checks and the composite
 * transactions that keep the ledger consistent under concurrent writers.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lifecare/billing-service/internal/domain"
)

const uniqueViolationCode = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const billColumns = `id, patient_id, patient_name, department, services, total_amount,
	paid_amount, pending_amount, discount_applied, status, claim_id, version, created_at, last_payment_at`

func scanBill(row pgx.Row) (*domain.Bill, error) {
	var bill domain.Bill
	var services []byte
	err := row.Scan(
		&bill.ID, &bill.PatientID, &bill.PatientName, &bill.Department, &services,
		&bill.TotalAmount, &bill.PaidAmount, &bill.PendingAmount, &bill.DiscountApplied,
		&bill.Status, &bill.ClaimID, &bill.Version, &bill.CreatedAt, &bill.LastPaymentAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(services, &bill.Services); err != nil {
		return nil, fmt.Errorf("decode service lines for bill %s: %w", bill.ID, err)
	}
	return &bill, nil
}

// CreateBill inserts a freshly created bill. Service lines are stored as a
// JSONB document; they are immutable after creation.
func (r *PostgresRepository) CreateBill(ctx context.Context, bill *domain.Bill) error {
	services, err := json.Marshal(bill.Services)
	if err != nil {
		return fmt.Errorf("encode service lines: %w", err)
	}
	query := `
		INSERT INTO bills (` + billColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.db.Exec(ctx, query,
		bill.ID, bill.PatientID, bill.PatientName, bill.Department, services,
		bill.TotalAmount, bill.PaidAmount, bill.PendingAmount, bill.DiscountApplied,
		bill.Status, bill.ClaimID, bill.Version, bill.CreatedAt, bill.LastPaymentAt,
	)
	return err
}

// GetBill retrieves a bill by id.
func (r *PostgresRepository) GetBill(ctx context.Context, billID uuid.UUID) (*domain.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE id = $1`
	bill, err := scanBill(r.db.QueryRow(ctx, query, billID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillNotFound
		}
		return nil, err
	}
	return bill, nil
}

// UpdateBill writes the mutable bill fields guarded by the version the caller
// read. On success the in-memory bill carries the bumped version.
func (r *PostgresRepository) UpdateBill(ctx context.Context, bill *domain.Bill, expectedVersion int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bills
		SET total_amount = $1, paid_amount = $2, pending_amount = $3, discount_applied = $4,
		    status = $5, claim_id = $6, last_payment_at = $7, version = version + 1
		WHERE id = $8 AND version = $9
	`, bill.TotalAmount, bill.PaidAmount, bill.PendingAmount, bill.DiscountApplied,
		bill.Status, bill.ClaimID, bill.LastPaymentAt, bill.ID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.billWriteFailure(ctx, bill.ID)
	}
	bill.Version = expectedVersion + 1
	return nil
}

// ListOpenBills returns bills with an unresolved balance, oldest first.
func (r *PostgresRepository) ListOpenBills(ctx context.Context) ([]domain.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE pending_amount > 0 AND status IN ($1, $2) ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, domain.BillStatusPending, domain.BillStatusPartiallyPaid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bills []domain.Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, *bill)
	}
	return bills, rows.Err()
}

// RecordPayment persists the updated bill and the payment row as one
// transaction. The bill row is locked first so a concurrent writer observes
// either both changes or neither.
func (r *PostgresRepository) RecordPayment(ctx context.Context, bill *domain.Bill, expectedVersion int, payment *domain.Payment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockBillVersion(ctx, tx, bill.ID, expectedVersion); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE bills
		SET paid_amount = $1, pending_amount = $2, status = $3, last_payment_at = $4, version = version + 1
		WHERE id = $5
	`, bill.PaidAmount, bill.PendingAmount, bill.Status, bill.LastPaymentAt, bill.ID); err != nil {
		return err
	}
	if err := insertPayment(ctx, tx, payment); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	bill.Version = expectedVersion + 1
	return nil
}

// ListPayments returns a bill's append-only payment history in billing order.
func (r *PostgresRepository) ListPayments(ctx context.Context, billID uuid.UUID) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, bill_id, amount, method, transaction_id, processed_by, claim_id, created_at
		FROM payments WHERE bill_id = $1 ORDER BY created_at ASC, id ASC
	`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.BillID, &p.Amount, &p.Method, &p.TransactionID, &p.ProcessedBy, &p.ClaimID, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

const claimColumns = `id, bill_id, patient_id, scheme, policy_number, claim_amount,
	approved_amount, status, rejection_reason, version, submitted_at, resolved_at`

func scanClaim(row pgx.Row) (*domain.InsuranceClaim, error) {
	var claim domain.InsuranceClaim
	err := row.Scan(
		&claim.ID, &claim.BillID, &claim.PatientID, &claim.Scheme, &claim.PolicyNumber,
		&claim.ClaimAmount, &claim.ApprovedAmount, &claim.Status, &claim.RejectionReason,
		&claim.Version, &claim.SubmittedAt, &claim.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// CreateClaim inserts a submitted claim, rejecting the insert when the bill
// already carries a non-terminal claim. The existence check and the insert
// run in one transaction; a partial unique index on open claims backs the
// check against racing submitters.
func (r *PostgresRepository) CreateClaim(ctx context.Context, claim *domain.InsuranceClaim) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var existing uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM claims WHERE bill_id = $1 AND status IN ($2, $3) FOR UPDATE
	`, claim.BillID, domain.ClaimStatusSubmitted, domain.ClaimStatusProcessing).Scan(&existing)
	if err == nil {
		return ErrDuplicateClaim
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO claims (`+claimColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, claim.ID, claim.BillID, claim.PatientID, claim.Scheme, claim.PolicyNumber,
		claim.ClaimAmount, claim.ApprovedAmount, claim.Status, claim.RejectionReason,
		claim.Version, claim.SubmittedAt, claim.ResolvedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateClaim
		}
		return err
	}
	return tx.Commit(ctx)
}

// GetClaim retrieves a claim by id.
func (r *PostgresRepository) GetClaim(ctx context.Context, claimID uuid.UUID) (*domain.InsuranceClaim, error) {
	claim, err := scanClaim(r.db.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, claimID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClaimNotFound
		}
		return nil, err
	}
	return claim, nil
}

// UpdateClaim writes the mutable claim fields guarded by the version the
// caller read.
func (r *PostgresRepository) UpdateClaim(ctx context.Context, claim *domain.InsuranceClaim, expectedVersion int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE claims
		SET status = $1, approved_amount = $2, rejection_reason = $3, resolved_at = $4, version = version + 1
		WHERE id = $5 AND version = $6
	`, claim.Status, claim.ApprovedAmount, claim.RejectionReason, claim.ResolvedAt, claim.ID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.claimWriteFailure(ctx, claim.ID)
	}
	claim.Version = expectedVersion + 1
	return nil
}

// FindOpenClaimByBillID returns the bill's non-terminal claim, if any.
func (r *PostgresRepository) FindOpenClaimByBillID(ctx context.Context, billID uuid.UUID) (*domain.InsuranceClaim, error) {
	claim, err := scanClaim(r.db.QueryRow(ctx, `
		SELECT `+claimColumns+` FROM claims WHERE bill_id = $1 AND status IN ($2, $3)
	`, billID, domain.ClaimStatusSubmitted, domain.ClaimStatusProcessing))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClaimNotFound
		}
		return nil, err
	}
	return claim, nil
}

// ListLatestClaims returns the most recently submitted claim per bill.
func (r *PostgresRepository) ListLatestClaims(ctx context.Context, billIDs []uuid.UUID) (map[uuid.UUID]*domain.InsuranceClaim, error) {
	if len(billIDs) == 0 {
		return map[uuid.UUID]*domain.InsuranceClaim{}, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT ON (bill_id) `+claimColumns+`
		FROM claims WHERE bill_id = ANY($1)
		ORDER BY bill_id, submitted_at DESC
	`, billIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claims := make(map[uuid.UUID]*domain.InsuranceClaim, len(billIDs))
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims[claim.BillID] = claim
	}
	return claims, rows.Err()
}

// SettleApprovedClaim commits the claim approval, the settled bill, and the
// insurance-settlement payment as one transaction. The bill row is locked for
// the duration, so a concurrent desk payment cannot race the settlement.
func (r *PostgresRepository) SettleApprovedClaim(ctx context.Context, claim *domain.InsuranceClaim, expectedClaimVersion int, bill *domain.Bill, expectedBillVersion int, payment *domain.Payment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockBillVersion(ctx, tx, bill.ID, expectedBillVersion); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE claims
		SET status = $1, approved_amount = $2, rejection_reason = $3, resolved_at = $4, version = version + 1
		WHERE id = $5 AND version = $6
	`, claim.Status, claim.ApprovedAmount, claim.RejectionReason, claim.ResolvedAt, claim.ID, expectedClaimVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.claimWriteFailure(ctx, claim.ID)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bills
		SET paid_amount = $1, pending_amount = $2, status = $3, claim_id = $4, last_payment_at = $5, version = version + 1
		WHERE id = $6
	`, bill.PaidAmount, bill.PendingAmount, bill.Status, bill.ClaimID, bill.LastPaymentAt, bill.ID); err != nil {
		return err
	}
	if err := insertPayment(ctx, tx, payment); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	bill.Version = expectedBillVersion + 1
	claim.Version = expectedClaimVersion + 1
	return nil
}

// lockBillVersion takes the bill row lock and verifies the caller's version.
func lockBillVersion(ctx context.Context, tx pgx.Tx, billID uuid.UUID, expectedVersion int) error {
	var current int
	err := tx.QueryRow(ctx, `SELECT version FROM bills WHERE id = $1 FOR UPDATE`, billID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBillNotFound
		}
		return err
	}
	if current != expectedVersion {
		return ErrVersionConflict
	}
	return nil
}

func insertPayment(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payments (id, bill_id, amount, method, transaction_id, processed_by, claim_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, payment.ID, payment.BillID, payment.Amount, payment.Method, payment.TransactionID,
		payment.ProcessedBy, payment.ClaimID, payment.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicatePayment
	}
	return err
}

// billWriteFailure distinguishes a missing row from a stale version after a
// guarded update touched zero rows.
func (r *PostgresRepository) billWriteFailure(ctx context.Context, billID uuid.UUID) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bills WHERE id = $1)`, billID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrBillNotFound
	}
	return ErrVersionConflict
}

func (r *PostgresRepository) claimWriteFailure(ctx context.Context, claimID uuid.UUID) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM claims WHERE id = $1)`, claimID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrClaimNotFound
	}
	return ErrVersionConflict
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
