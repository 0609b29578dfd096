package orders

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Store is the persistence the order service needs.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	Get(ctx context.Context, tenantID, id int64) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	// Create inserts the order with its lines. A taken order number yields ErrDuplicateNumber.
	Create(ctx context.Context, order Order) (Order, error)
}

// TxStore is the view of one transition transaction.
type TxStore interface {
	// GetForUpdate loads the order with its lines and locks the order row.
	GetForUpdate(ctx context.Context, tenantID, id int64) (Order, error)
	UpdateStatus(ctx context.Context, tenantID, id int64, status Status, payment PaymentStatus, at time.Time) error
	// Inventory exposes inventory writes inside the same transaction.
	Inventory() inventory.TxRepository
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Repository implements Store on PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	txOpts db.TxOptions
}

// NewRepository builds Repository. Transitions run serializable with bounded retries.
func NewRepository(pool *pgxpool.Pool, maxRetries int) *Repository {
	return &Repository{pool: pool, txOpts: db.TxOptions{IsoLevel: pgx.Serializable, MaxRetries: maxRetries}}
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTxOptions(ctx, r.pool, r.txOpts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const orderColumns = `id, tenant_id, order_number, customer_id, amount, tax_amount, discount_amount, status, payment_status, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.TenantID, &o.OrderNumber, &o.CustomerID, &o.Amount, &o.TaxAmount, &o.DiscountAmount,
		&o.Status, &o.PaymentStatus, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

func loadLines(ctx context.Context, q dbtx, orderID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price, tax_rate, discount_amount, tax_amount, subtotal
		FROM order_lines WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.TaxRate, &l.DiscountAmount, &l.TaxAmount, &l.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repository) Get(ctx context.Context, tenantID, id int64) (Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return Order{}, err
	}
	o.Lines, err = loadLines(ctx, r.pool, o.ID)
	return o, err
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	where := ` WHERE tenant_id = $1`
	args := []any{filter.TenantID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders`+where+
		` ORDER BY created_at DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (r *Repository) Create(ctx context.Context, order Order) (Order, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO orders
			(tenant_id, order_number, customer_id, amount, tax_amount, discount_amount, status, payment_status, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
			RETURNING `+orderColumns,
			order.TenantID, order.OrderNumber, order.CustomerID, order.Amount, order.TaxAmount, order.DiscountAmount,
			order.Status, order.PaymentStatus, order.CreatedBy, order.CreatedAt)
		created, err := scanOrder(row)
		if err != nil {
			return err
		}
		for _, l := range order.Lines {
			l.OrderID = created.ID
			if err := tx.QueryRow(ctx, `INSERT INTO order_lines
				(order_id, product_id, quantity, unit_price, tax_rate, discount_amount, tax_amount, subtotal)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
				l.OrderID, l.ProductID, l.Quantity, l.UnitPrice, l.TaxRate, l.DiscountAmount, l.TaxAmount, l.Subtotal,
			).Scan(&l.ID); err != nil {
				return err
			}
			created.Lines = append(created.Lines, l)
		}
		order = created
		return nil
	})
	if db.IsUniqueViolation(err) {
		return Order{}, ErrDuplicateNumber
	}
	return order, err
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) GetForUpdate(ctx context.Context, tenantID, id int64) (Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
	if err != nil {
		return Order{}, err
	}
	o.Lines, err = loadLines(ctx, t.tx, o.ID)
	return o, err
}

func (t *txRepository) UpdateStatus(ctx context.Context, tenantID, id int64, status Status, payment PaymentStatus, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE orders SET status = $3, payment_status = $4, updated_at = $5
		WHERE tenant_id = $1 AND id = $2`, tenantID, id, status, payment, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) Inventory() inventory.TxRepository {
	return inventory.BindTx(t.tx)
}
