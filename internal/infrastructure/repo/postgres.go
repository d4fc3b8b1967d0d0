package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"storefront-backend/internal/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	r := &PostgresStore{db: db}
	if err := r.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresStore) Close() error { return r.db.Close() }

func (r *PostgresStore) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS carts (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		session_id TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT carts_user_id_key UNIQUE (user_id),
		CONSTRAINT carts_session_id_key UNIQUE (session_id)
	);`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		id TEXT PRIMARY KEY,
		cart_id TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		variant_id TEXT NOT NULL DEFAULT '',
		quantity INT NOT NULL CHECK (quantity > 0),
		position INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		cart_id TEXT NOT NULL,
		store_id TEXT,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL,
		address TEXT NOT NULL,
		city TEXT NOT NULL,
		postal_code TEXT NOT NULL,
		phone TEXT NOT NULL,
		subtotal NUMERIC(12,2) NOT NULL,
		shipping NUMERIC(12,2) NOT NULL,
		tax NUMERIC(12,2) NOT NULL,
		total NUMERIC(12,2) NOT NULL,
		payment_method TEXT NOT NULL,
		mobile_operator TEXT NOT NULL DEFAULT '',
		payment_status TEXT NOT NULL,
		status TEXT NOT NULL,
		transaction_ref TEXT NOT NULL DEFAULT '',
		payment_reference TEXT NOT NULL DEFAULT '',
		payload JSONB NOT NULL DEFAULT '{}',
		payment_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
		delivered_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS orders_user_id_idx ON orders (user_id, created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS orders_store_id_idx ON orders (store_id);`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		variant_info TEXT NOT NULL DEFAULT '',
		price NUMERIC(12,2) NOT NULL,
		quantity INT NOT NULL,
		position INT NOT NULL DEFAULT 0
	);`,
	`ALTER TABLE order_items ADD COLUMN IF NOT EXISTS position INT NOT NULL DEFAULT 0;`,
	`CREATE TABLE IF NOT EXISTS payment_attempts (
		reference TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL
	);`,
}

func (r *PostgresStore) init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}

type rowScanner interface {
	Scan(dest ...any) error
}

const cartColumns = `id, COALESCE(user_id,''), COALESCE(session_id,''), created_at, updated_at`

func (r *PostgresStore) GetCart(ctx context.Context, id string) (*domain.Cart, error) {
	return r.cartWhere(ctx, `id=$1`, id)
}

func (r *PostgresStore) CartByUser(ctx context.Context, userID string) (*domain.Cart, error) {
	return r.cartWhere(ctx, `user_id=$1`, userID)
}

func (r *PostgresStore) CartBySession(ctx context.Context, sessionID string) (*domain.Cart, error) {
	return r.cartWhere(ctx, `session_id=$1`, sessionID)
}

func (r *PostgresStore) cartWhere(ctx context.Context, cond, arg string) (*domain.Cart, error) {
	var c domain.Cart
	err := r.db.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM carts WHERE `+cond, arg).
		Scan(&c.ID, &c.UserID, &c.SessionID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, cart_id, product_id, variant_id, quantity, position, created_at
		FROM cart_items WHERE cart_id=$1 ORDER BY position ASC`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()
	c.Items = []domain.CartItem{}
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.VariantID, &it.Quantity, &it.Position, &it.CreatedAt); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, it)
	}
	return &c, rows.Err()
}

func (r *PostgresStore) CreateCart(ctx context.Context, c *domain.Cart) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO carts (id, user_id, session_id, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)`,
		c.ID, nullable(c.UserID), nullable(c.SessionID), c.CreatedAt, c.UpdatedAt)
	if _, dup := uniqueViolation(err); dup {
		return domain.ErrDuplicateOwner
	}
	return err
}

// ClaimCart hands a session cart to userID and drops the session binding.
func (r *PostgresStore) ClaimCart(ctx context.Context, cartID, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE carts SET user_id=$2, session_id=NULL, updated_at=$3 WHERE id=$1`,
		cartID, userID, time.Now().UTC())
	if _, dup := uniqueViolation(err); dup {
		return domain.ErrDuplicateOwner
	}
	if err != nil {
		return err
	}
	return affected(res)
}

func (r *PostgresStore) PutItem(ctx context.Context, item *domain.CartItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx, `INSERT INTO cart_items (id, cart_id, product_id, variant_id, quantity, position, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET quantity=$5, position=$6`,
		item.ID, item.CartID, item.ProductID, item.VariantID, item.Quantity, item.Position, item.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return domain.ErrRecordNotFound
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE carts SET updated_at=$2 WHERE id=$1`, item.CartID, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresStore) DeleteItem(ctx context.Context, cartID, itemID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id=$1 AND cart_id=$2`, itemID, cartID)
	if err != nil {
		return err
	}
	return affected(res)
}

func (r *PostgresStore) ClearCart(ctx context.Context, cartID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID)
	return err
}

// CreateOrder locks the cart row so two checkouts of one cart serialize, then
// refuses when an earlier mobile-money order still has its payment in flight.
func (r *PostgresStore) CreateOrder(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT id FROM carts WHERE id=$1 FOR UPDATE`, o.CartID); err != nil {
		return fmt.Errorf("lock cart: %w", err)
	}
	var busy bool
	err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE cart_id=$1 AND payment_method=$2 AND payment_status = ANY($3))`,
		o.CartID, string(domain.MethodMobileMoney),
		pq.Array([]string{string(domain.PaymentPending), string(domain.PaymentProcessing), string(domain.PaymentOTPRequired), string(domain.PaymentPayOffline)}),
	).Scan(&busy)
	if err != nil {
		return fmt.Errorf("check open orders: %w", err)
	}
	if busy {
		return domain.ErrPaymentInFlight
	}

	payload, err := json.Marshal(o.Payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO orders (id, user_id, cart_id, store_id, first_name, last_name, email, address, city, postal_code, phone,
		subtotal, shipping, tax, total, payment_method, mobile_operator, payment_status, status, transaction_ref, payment_reference,
		payload, payment_confirmed, delivered_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`,
		o.ID, o.UserID, o.CartID, nullable(o.StoreID),
		o.Buyer.FirstName, o.Buyer.LastName, o.Buyer.Email, o.Buyer.Address, o.Buyer.City, o.Buyer.PostalCode, o.Buyer.Phone,
		o.Subtotal, o.Shipping, o.Tax, o.Total,
		string(o.PaymentMethod), string(o.MobileOperator), string(o.PaymentStatus), string(o.Status),
		o.TransactionRef, o.PaymentReference, string(payload), o.PaymentConfirmed, o.DeliveredAt, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO order_items (id, order_id, product_id, store_id, product_name, variant_info, price, quantity, position)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, it := range o.Items {
		if _, err := stmt.ExecContext(ctx, it.ID, o.ID, it.ProductID, it.StoreID, it.ProductName, it.VariantInfo, it.Price, it.Quantity, i); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return tx.Commit()
}

const orderColumns = `id, user_id, cart_id, COALESCE(store_id,''), first_name, last_name, email, address, city, postal_code, phone,
	subtotal, shipping, tax, total, payment_method, mobile_operator, payment_status, status, transaction_ref, payment_reference,
	payload, payment_confirmed, delivered_at, created_at, updated_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o         domain.Order
		payload   []byte
		delivered sql.NullTime
	)
	err := row.Scan(&o.ID, &o.UserID, &o.CartID, &o.StoreID,
		&o.Buyer.FirstName, &o.Buyer.LastName, &o.Buyer.Email, &o.Buyer.Address, &o.Buyer.City, &o.Buyer.PostalCode, &o.Buyer.Phone,
		&o.Subtotal, &o.Shipping, &o.Tax, &o.Total,
		(*string)(&o.PaymentMethod), (*string)(&o.MobileOperator), (*string)(&o.PaymentStatus), (*string)(&o.Status),
		&o.TransactionRef, &o.PaymentReference, &payload, &o.PaymentConfirmed, &delivered, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &o.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of order %s: %w", o.ID, err)
		}
	}
	if delivered.Valid {
		t := delivered.Time
		o.DeliveredAt = &t
	}
	return &o, nil
}

func (r *PostgresStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o.Items, err = r.orderItems(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresStore) orderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, order_id, product_id, store_id, product_name, variant_info, price, quantity
		FROM order_items WHERE order_id=$1 ORDER BY position ASC, id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()
	out := []domain.OrderItem{}
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.StoreID, &it.ProductName, &it.VariantInfo, &it.Price, &it.Quantity); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *PostgresStore) ListOrdersByUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Order, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM orders WHERE user_id=$1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	out := make([]domain.Order, 0, pageSize)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		out = append(out, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range out {
		if out[i].Items, err = r.orderItems(ctx, out[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

// UpdateOrder writes the mutable order fields only while status and
// payment_status still match prev.
func (r *PostgresStore) UpdateOrder(ctx context.Context, o *domain.Order, prev domain.OrderState) error {
	payload, err := json.Marshal(o.Payload)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET payment_status=$2, status=$3, transaction_ref=$4, payment_reference=$5,
		payload=$6, payment_confirmed=$7, delivered_at=$8, updated_at=$9
		WHERE id=$1 AND status=$10 AND payment_status=$11`,
		o.ID, string(o.PaymentStatus), string(o.Status), o.TransactionRef, o.PaymentReference,
		string(payload), o.PaymentConfirmed, o.DeliveredAt, o.UpdatedAt,
		string(prev.Status), string(prev.PaymentStatus))
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrRecordNotFound
	}
	return domain.ErrStaleOrder
}

func (r *PostgresStore) RecordAttempt(ctx context.Context, orderID, reference string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO payment_attempts (reference, order_id, created_at) VALUES ($1,$2,$3)`,
		reference, orderID, time.Now().UTC())
	if _, dup := uniqueViolation(err); dup {
		return domain.ErrDuplicateReference
	}
	return err
}

func (r *PostgresStore) SumStoreTotals(ctx context.Context, storeID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRowContext(ctx, `SELECT
		COALESCE((SELECT SUM(total) FROM orders WHERE store_id=$1), 0) +
		COALESCE((SELECT SUM(oi.price * oi.quantity) FROM order_items oi JOIN orders o ON o.id = oi.order_id
			WHERE oi.store_id=$1 AND o.store_id IS NULL), 0)`, storeID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum store totals: %w", err)
	}
	return sum, nil
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}
