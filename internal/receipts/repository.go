package receipts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists receipts in Postgres.
type Repository struct {
	db dbtx
}

// NewRepository constructs a receipts repository over a pool or transaction.
func NewRepository(db dbtx) *Repository {
	return &Repository{db: db}
}

const receiptColumns = `id, tenant_id, COALESCE(order_id, 0), number, amount, status, issued_by, issued_at, voided_at, voided_by, COALESCE(void_reason, '')`

func scanReceipt(row pgx.Row) (Receipt, error) {
	var r Receipt
	err := row.Scan(&r.ID, &r.TenantID, &r.OrderID, &r.Number, &r.Amount, &r.Status, &r.IssuedBy, &r.IssuedAt, &r.VoidedAt, &r.VoidedBy, &r.VoidReason)
	return r, err
}

func (r *Repository) Insert(ctx context.Context, rc Receipt) (Receipt, error) {
	var orderID *int64
	if rc.OrderID > 0 {
		orderID = &rc.OrderID
	}
	row := r.db.QueryRow(ctx, `INSERT INTO receipts (tenant_id, order_id, number, amount, status, issued_by, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+receiptColumns,
		rc.TenantID, orderID, rc.Number, rc.Amount, rc.Status, rc.IssuedBy, rc.IssuedAt)
	out, err := scanReceipt(row)
	if db.IsUniqueViolation(err) {
		return Receipt{}, ErrDuplicate
	}
	return out, err
}

func (r *Repository) Get(ctx context.Context, tenantID, id int64) (Receipt, error) {
	out, err := scanReceipt(r.db.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, ErrNotFound
	}
	return out, err
}

// ListByOrder lists receipts of an order; an empty status lists all of them.
func (r *Repository) ListByOrder(ctx context.Context, tenantID, orderID int64, status Status) ([]Receipt, error) {
	rows, err := r.db.Query(ctx, `SELECT `+receiptColumns+` FROM receipts
		WHERE tenant_id = $1 AND order_id = $2 AND ($3::text = '' OR status = $3)
		ORDER BY id`, tenantID, orderID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// Void flips an active receipt to voided. It reports ErrAlreadyVoided when the
// receipt exists but is no longer active.
func (r *Repository) Void(ctx context.Context, req VoidRequest, at time.Time) (Receipt, error) {
	row := r.db.QueryRow(ctx, `UPDATE receipts
		SET status = 'voided', voided_at = $3, voided_by = $4, void_reason = $5
		WHERE tenant_id = $1 AND id = $2 AND status = 'active'
		RETURNING `+receiptColumns,
		req.TenantID, req.ReceiptID, at, req.ActorID, req.Reason)
	out, err := scanReceipt(row)
	if !errors.Is(err, pgx.ErrNoRows) {
		return out, err
	}
	if _, err := r.Get(ctx, req.TenantID, req.ReceiptID); err != nil {
		return Receipt{}, err
	}
	return Receipt{}, ErrAlreadyVoided
}
