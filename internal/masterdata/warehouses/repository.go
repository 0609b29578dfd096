package warehouses

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Repository reads and writes warehouses. It works on a pool or inside a transaction.
type Repository struct {
	db dbtx
}

func NewRepository(db dbtx) *Repository {
	return &Repository{db: db}
}

const warehouseColumns = `id, tenant_id, code, name, address, status, created_at, updated_at`

func scanWarehouse(row pgx.Row) (Warehouse, error) {
	var w Warehouse
	var status string
	err := row.Scan(&w.ID, &w.TenantID, &w.Code, &w.Name, &w.Address, &status, &w.CreatedAt, &w.UpdatedAt)
	w.Status = Status(status)
	return w, err
}

// List uses a dynamic query because every filter is optional
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Warehouse, int, error) {
	where := ` WHERE tenant_id = $1`
	args := []any{filter.TenantID}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR code ILIKE $` + n + `)`
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM warehouses`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := `SELECT ` + warehouseColumns + ` FROM warehouses` + where +
		` ORDER BY created_at, id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Warehouse
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, w)
	}
	return out, total, rows.Err()
}

func (r *Repository) ListActive(ctx context.Context, tenantID int64) ([]Warehouse, error) {
	rows, err := r.db.Query(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE tenant_id = $1 AND status = 'active' ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Warehouse
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *Repository) Get(ctx context.Context, tenantID, id int64) (Warehouse, error) {
	w, err := scanWarehouse(r.db.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, ErrNotFound
	}
	return w, err
}

func (r *Repository) Create(ctx context.Context, w Warehouse) (Warehouse, error) {
	if w.Status == "" {
		w.Status = StatusActive
	}
	created, err := scanWarehouse(r.db.QueryRow(ctx, `
		INSERT INTO warehouses (tenant_id, code, name, address, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+warehouseColumns,
		w.TenantID, w.Code, w.Name, w.Address, string(w.Status)))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Warehouse{}, ErrDuplicateCode
		}
		return Warehouse{}, err
	}
	return created, nil
}

func (r *Repository) SetStatus(ctx context.Context, tenantID, id int64, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE warehouses SET status = $3, updated_at = $4 WHERE tenant_id = $1 AND id = $2`, tenantID, id, string(status), time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
