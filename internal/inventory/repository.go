package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// TxRepository exposes the transactional operations the adjuster and service use.
type TxRepository interface {
	warehouses.Lookup
	HasMovements(ctx context.Context, tenantID int64, kind ReferenceKind, referenceID string, typ MovementType) (bool, error)
	ListReferenceMovements(ctx context.Context, tenantID int64, kind ReferenceKind, referenceID string, typ MovementType) ([]Movement, error)
	// LockPosition returns the position row locked for update, creating it at zero when absent.
	LockPosition(ctx context.Context, key PositionKey) (Position, error)
	SavePosition(ctx context.Context, position Position) error
	// InsertMovement appends to the ledger. A natural-key collision yields ErrMovementConflict.
	InsertMovement(ctx context.Context, movement Movement) (Movement, error)
	// Savepoint runs fn so that its writes roll back alone when it fails.
	Savepoint(ctx context.Context, fn func(TxRepository) error) error
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	txOpts db.TxOptions
}

// NewRepository constructs Repository. Transactions run serializable and are
// retried up to maxRetries times on serialization failures.
func NewRepository(pool *pgxpool.Pool, maxRetries int) *Repository {
	return &Repository{pool: pool, txOpts: db.TxOptions{IsoLevel: pgx.Serializable, MaxRetries: maxRetries}}
}

// WithTx executes the callback inside a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, r.txOpts, func(tx pgx.Tx) error {
		return fn(ctx, BindTx(tx))
	})
}

// BindTx exposes inventory operations on a transaction owned by another module.
func BindTx(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx, Repository: warehouses.NewRepository(tx)}
}

type txRepository struct {
	*warehouses.Repository
	tx pgx.Tx
}

const movementColumns = `id, tenant_id, product_id, warehouse_id, movement_type, quantity, delta, reference_type, reference_id, created_by, note, created_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var typ, kind string
	if err := row.Scan(&m.ID, &m.TenantID, &m.ProductID, &m.WarehouseID, &typ, &m.Quantity, &m.Delta, &kind, &m.ReferenceID, &m.CreatedBy, &m.Note, &m.CreatedAt); err != nil {
		return Movement{}, err
	}
	m.Type = MovementType(typ)
	m.ReferenceKind = ReferenceKind(kind)
	return m, nil
}

func collectMovements(rows pgx.Rows) ([]Movement, error) {
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *txRepository) HasMovements(ctx context.Context, tenantID int64, kind ReferenceKind, referenceID string, typ MovementType) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM stock_movements
		WHERE tenant_id = $1 AND reference_type = $2 AND reference_id = $3 AND movement_type = $4)`,
		tenantID, string(kind), referenceID, string(typ)).Scan(&exists)
	return exists, err
}

func (r *txRepository) ListReferenceMovements(ctx context.Context, tenantID int64, kind ReferenceKind, referenceID string, typ MovementType) ([]Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
		WHERE tenant_id = $1 AND reference_type = $2 AND reference_id = $3 AND movement_type = $4
		ORDER BY product_id`, tenantID, string(kind), referenceID, string(typ))
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

func (r *txRepository) LockPosition(ctx context.Context, key PositionKey) (Position, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO inventory_positions (tenant_id, product_id, warehouse_id, quantity, last_updated)
		VALUES ($1, $2, $3, 0, NOW())
		ON CONFLICT (tenant_id, product_id, warehouse_id) DO NOTHING`,
		key.TenantID, key.ProductID, key.WarehouseID); err != nil {
		return Position{}, fmt.Errorf("inventory: ensure position: %w", err)
	}
	p := Position{TenantID: key.TenantID, ProductID: key.ProductID, WarehouseID: key.WarehouseID}
	err := r.tx.QueryRow(ctx, `SELECT quantity, last_updated FROM inventory_positions
		WHERE tenant_id = $1 AND product_id = $2 AND warehouse_id = $3
		FOR UPDATE`, key.TenantID, key.ProductID, key.WarehouseID).Scan(&p.Quantity, &p.LastUpdated)
	if err != nil {
		return Position{}, fmt.Errorf("inventory: lock position: %w", err)
	}
	return p, nil
}

func (r *txRepository) SavePosition(ctx context.Context, p Position) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_positions SET quantity = $4, last_updated = $5
		WHERE tenant_id = $1 AND product_id = $2 AND warehouse_id = $3`,
		p.TenantID, p.ProductID, p.WarehouseID, p.Quantity, p.LastUpdated)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements
		(tenant_id, product_id, warehouse_id, movement_type, quantity, delta, reference_type, reference_id, created_by, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, reference_type, reference_id, movement_type, product_id) DO NOTHING
		RETURNING id`,
		m.TenantID, m.ProductID, m.WarehouseID, string(m.Type), m.Quantity, m.Delta,
		string(m.ReferenceKind), m.ReferenceID, m.CreatedBy, m.Note, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsUniqueViolation(err) {
			return Movement{}, fmt.Errorf("%w: %s %s/%s product %d", ErrMovementConflict, m.Type, m.ReferenceKind, m.ReferenceID, m.ProductID)
		}
		return Movement{}, err
	}
	return m, nil
}

func (r *txRepository) Savepoint(ctx context.Context, fn func(TxRepository) error) error {
	return db.Savepoint(ctx, r.tx, func(sp pgx.Tx) error {
		return fn(BindTx(sp))
	})
}

// GetPosition reads one position without locking it.
func (r *Repository) GetPosition(ctx context.Context, key PositionKey) (Position, error) {
	p := Position{TenantID: key.TenantID, ProductID: key.ProductID, WarehouseID: key.WarehouseID}
	err := r.pool.QueryRow(ctx, `SELECT quantity, last_updated FROM inventory_positions
		WHERE tenant_id = $1 AND product_id = $2 AND warehouse_id = $3`,
		key.TenantID, key.ProductID, key.WarehouseID).Scan(&p.Quantity, &p.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return Position{}, ErrPositionNotFound
	}
	return p, err
}

// ListPositions lists positions of a tenant.
func (r *Repository) ListPositions(ctx context.Context, filter PositionFilter) ([]Position, error) {
	query := `SELECT tenant_id, product_id, warehouse_id, quantity, last_updated FROM inventory_positions WHERE tenant_id = $1`
	args := []any{filter.TenantID}
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		query += ` AND product_id = $` + strconv.Itoa(len(args))
	}
	if filter.WarehouseID > 0 {
		args = append(args, filter.WarehouseID)
		query += ` AND warehouse_id = $` + strconv.Itoa(len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit, filter.Offset)
	query += ` ORDER BY product_id, warehouse_id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.TenantID, &p.ProductID, &p.WarehouseID, &p.Quantity, &p.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListMovements lists ledger rows newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE tenant_id = $1`
	args := []any{filter.TenantID}
	add := func(cond string, v any) {
		args = append(args, v)
		query += ` AND ` + cond + ` $` + strconv.Itoa(len(args))
	}
	if filter.ProductID > 0 {
		add("product_id =", filter.ProductID)
	}
	if filter.WarehouseID > 0 {
		add("warehouse_id =", filter.WarehouseID)
	}
	if filter.ReferenceKind != "" {
		add("reference_type =", string(filter.ReferenceKind))
	}
	if filter.ReferenceID != "" {
		add("reference_id =", filter.ReferenceID)
	}
	if !filter.From.IsZero() {
		add("created_at >=", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <", filter.To)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

const ledgerTotalsQuery = `SELECT tenant_id, product_id, warehouse_id, COALESCE(SUM(delta), 0)
	FROM stock_movements WHERE ($1::bigint = 0 OR tenant_id = $1)
	GROUP BY tenant_id, product_id, warehouse_id`

const positionTotalsQuery = `SELECT tenant_id, product_id, warehouse_id, quantity
	FROM inventory_positions WHERE ($1::bigint = 0 OR tenant_id = $1)`

// Totals sums applied deltas per position and reads the projected quantities
// from one repeatable-read snapshot. A zero tenantID covers every tenant.
func (r *Repository) Totals(ctx context.Context, tenantID int64) (ledger, positions map[PositionKey]int64, err error) {
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		if ledger, err = sumByKey(ctx, tx, ledgerTotalsQuery, tenantID); err != nil {
			return fmt.Errorf("ledger totals: %w", err)
		}
		if positions, err = sumByKey(ctx, tx, positionTotalsQuery, tenantID); err != nil {
			return fmt.Errorf("position totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ledger, positions, nil
}

func sumByKey(ctx context.Context, tx pgx.Tx, query string, tenantID int64) (map[PositionKey]int64, error) {
	rows, err := tx.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[PositionKey]int64)
	for rows.Next() {
		var k PositionKey
		var qty int64
		if err := rows.Scan(&k.TenantID, &k.ProductID, &k.WarehouseID, &qty); err != nil {
			return nil, err
		}
		out[k] = qty
	}
	return out, rows.Err()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
