package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"relove-be/internal/pricing"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Repository interface {
	GetByIdempotencyKey(ctx context.Context, tenantScope, key string) (*Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	CreatePending(ctx context.Context, o *Order) error
	LinkPaymentIntent(ctx context.Context, orderID uuid.UUID, intentID string) error
	UpdateGuestEmail(ctx context.Context, orderID uuid.UUID, email string) error
	UpdatePricing(ctx context.Context, orderID uuid.UUID, u PricingUpdate) error
	MarkPaid(ctx context.Context, orderID uuid.UUID, intentID string, items []LineItem) (bool, error)
	ApplyRefund(ctx context.Context, orderID uuid.UUID, amountCents int64) (int64, Status, error)
	MarkItemsRefunded(ctx context.Context, orderID uuid.UUID, itemIDs []uuid.UUID) error
	RestockVariants(ctx context.Context, items []LineItem) error
	InsertEvent(ctx context.Context, orderID uuid.UUID, eventType, detail string) error
	HasEvent(ctx context.Context, orderID uuid.UUID, eventType string) (bool, error)
}

// PricingUpdate carries the recomputed money columns after a fulfillment
// change. Subtotal is included for completeness but never moves.
type PricingUpdate struct {
	SubtotalCents    int64
	ShippingCents    int64
	TaxCents         int64
	TotalCents       int64
	Fulfillment      string
	CartHash         string
	TaxCalculationID *string
	DestinationState *string
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const orderColumns = `
	id, tenant_id, user_id, guest_email, currency, fulfillment, status,
	subtotal_cents, shipping_cents, tax_cents, total_cents, refund_cents,
	idempotency_key, cart_hash, expires_at,
	payment_intent_id, tax_calculation_id, customer_state,
	created_at, updated_at`

func (r *repository) scanOrder(row *sql.Row) (*Order, error) {
	var o Order
	var fulfillment, status string
	err := row.Scan(
		&o.ID, &o.TenantID, &o.UserID, &o.GuestEmail, &o.Currency, &fulfillment, &status,
		&o.SubtotalCents, &o.ShippingCents, &o.TaxCents, &o.TotalCents, &o.RefundCents,
		&o.IdempotencyKey, &o.CartHash, &o.ExpiresAt,
		&o.PaymentIntentID, &o.TaxCalculationID, &o.CustomerState,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Fulfillment = pricing.Fulfillment(fulfillment)
	o.Status = Status(status)
	return &o, nil
}

func (r *repository) GetByIdempotencyKey(ctx context.Context, tenantScope, key string) (*Order, error) {
	query := `SELECT` + orderColumns + `
		FROM orders
		WHERE idempotency_key = $1`
	args := []interface{}{key}
	if tenantScope != "" {
		query += ` AND tenant_id = $2`
		args = append(args, tenantScope)
	}

	o, err := r.scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order by idempotency key: %w", err)
	}

	o.Items, err = r.getItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT` + orderColumns + `
		FROM orders
		WHERE id = $1`

	o, err := r.scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	o.Items, err = r.getItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) getItems(ctx context.Context, orderID uuid.UUID) ([]LineItem, error) {
	query := `
		SELECT id, order_id, product_id, variant_id, quantity,
		       unit_price_cents, unit_cost_cents, line_total_cents, refunded_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.VariantID, &item.Quantity,
			&item.UnitPriceCents, &item.UnitCostCents, &item.LineTotalCents, &item.RefundedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repository) CreatePending(ctx context.Context, o *Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	insertOrder := `
		INSERT INTO orders (
			id, tenant_id, user_id, guest_email, currency, fulfillment, status,
			subtotal_cents, shipping_cents, tax_cents, total_cents,
			idempotency_key, cart_hash, expires_at, tax_calculation_id, customer_state
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	_, err = tx.ExecContext(ctx, insertOrder,
		o.ID, o.TenantID, o.UserID, o.GuestEmail, o.Currency, string(o.Fulfillment), string(o.Status),
		o.SubtotalCents, o.ShippingCents, o.TaxCents, o.TotalCents,
		o.IdempotencyKey, o.CartHash, o.ExpiresAt, o.TaxCalculationID, o.CustomerState,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	insertItem := `
		INSERT INTO order_items (
			id, order_id, product_id, variant_id, quantity,
			unit_price_cents, unit_cost_cents, line_total_cents
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	for _, item := range o.Items {
		_, err = tx.ExecContext(ctx, insertItem,
			item.ID, o.ID, item.ProductID, item.VariantID, item.Quantity,
			item.UnitPriceCents, item.UnitCostCents, item.LineTotalCents,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	committed = true
	return nil
}

// LinkPaymentIntent attaches an intent to a fresh order. The IS NULL
// guard keeps a racing second intake from overwriting the winner's
// intent.
func (r *repository) LinkPaymentIntent(ctx context.Context, orderID uuid.UUID, intentID string) error {
	query := `
		UPDATE orders
		SET payment_intent_id = $1, updated_at = NOW()
		WHERE id = $2 AND payment_intent_id IS NULL`

	_, err := r.db.ExecContext(ctx, query, intentID, orderID)
	if err != nil {
		return fmt.Errorf("failed to link payment intent: %w", err)
	}
	return nil
}

func (r *repository) UpdateGuestEmail(ctx context.Context, orderID uuid.UUID, email string) error {
	query := `
		UPDATE orders
		SET guest_email = $1, updated_at = NOW()
		WHERE id = $2 AND guest_email IS NULL`

	_, err := r.db.ExecContext(ctx, query, email, orderID)
	if err != nil {
		return fmt.Errorf("failed to update guest email: %w", err)
	}
	return nil
}

func (r *repository) UpdatePricing(ctx context.Context, orderID uuid.UUID, u PricingUpdate) error {
	query := `
		UPDATE orders
		SET subtotal_cents = $1,
		    shipping_cents = $2,
		    tax_cents = $3,
		    total_cents = $4,
		    fulfillment = $5,
		    cart_hash = $6,
		    tax_calculation_id = $7,
		    customer_state = $8,
		    updated_at = NOW()
		WHERE id = $9 AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query,
		u.SubtotalCents, u.ShippingCents, u.TaxCents, u.TotalCents,
		u.Fulfillment, u.CartHash, u.TaxCalculationID, u.DestinationState, orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order pricing: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check pricing update: %w", err)
	}
	if rows == 0 {
		return ErrOrderNotPending
	}
	return nil
}

// MarkPaid flips the order to paid and decrements stock in one
// transaction. The conditional flip makes concurrent confirmations
// race-safe: exactly one caller gets true, the rest get false with no
// second stock decrement. A variant going below zero aborts the whole
// transaction and the order stays pending.
func (r *repository) MarkPaid(ctx context.Context, orderID uuid.UUID, intentID string, items []LineItem) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	flip := `
		UPDATE orders
		SET status = 'paid', payment_intent_id = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'pending'`

	result, err := tx.ExecContext(ctx, flip, intentID, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check paid flip: %w", err)
	}
	if rows == 0 {
		// Someone else won the flip. Nothing to commit.
		return false, nil
	}

	decrement := `
		UPDATE variants
		SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1`

	for _, item := range items {
		result, err := tx.ExecContext(ctx, decrement, item.Quantity, item.VariantID)
		if err != nil {
			return false, fmt.Errorf("failed to decrement stock: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to check stock decrement: %w", err)
		}
		if rows == 0 {
			return false, ErrInsufficientStock
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit paid transition: %w", err)
	}
	committed = true
	return true, nil
}

// ApplyRefund increments the cumulative refund total atomically. The
// WHERE bound rejects over-refunds even when two admins race; the status
// flip to refunded happens in the same statement when the balance hits
// the order total.
func (r *repository) ApplyRefund(ctx context.Context, orderID uuid.UUID, amountCents int64) (int64, Status, error) {
	query := `
		UPDATE orders
		SET refund_cents = refund_cents + $1,
		    status = CASE
		        WHEN refund_cents + $1 >= total_cents THEN 'refunded'
		        ELSE 'partially_refunded'
		    END,
		    updated_at = NOW()
		WHERE id = $2
		  AND status <> 'refunded'
		  AND refund_cents + $1 <= total_cents
		RETURNING refund_cents, status`

	var newAmount int64
	var newStatus string
	err := r.db.QueryRowContext(ctx, query, amountCents, orderID).Scan(&newAmount, &newStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", ErrRefundExceedsRemaining
		}
		return 0, "", fmt.Errorf("failed to apply refund: %w", err)
	}
	return newAmount, Status(newStatus), nil
}

func (r *repository) MarkItemsRefunded(ctx context.Context, orderID uuid.UUID, itemIDs []uuid.UUID) error {
	ids := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		ids = append(ids, id.String())
	}

	query := `
		UPDATE order_items
		SET refunded_at = NOW()
		WHERE order_id = $1 AND id = ANY($2) AND refunded_at IS NULL`

	_, err := r.db.ExecContext(ctx, query, orderID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to mark items refunded: %w", err)
	}
	return nil
}

func (r *repository) RestockVariants(ctx context.Context, items []LineItem) error {
	query := `
		UPDATE variants
		SET stock = stock + $1, updated_at = NOW()
		WHERE id = $2`

	for _, item := range items {
		if _, err := r.db.ExecContext(ctx, query, item.Quantity, item.VariantID); err != nil {
			return fmt.Errorf("failed to restock variant %s: %w", item.VariantID, err)
		}
	}
	return nil
}

// InsertEvent records a once-only marker for a post-payment side effect.
// ON CONFLICT DO NOTHING keeps replayed confirmations from duplicating
// emails or notifications.
func (r *repository) InsertEvent(ctx context.Context, orderID uuid.UUID, eventType, detail string) error {
	query := `
		INSERT INTO order_events (order_id, event_type, detail)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id, event_type) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, orderID, eventType, detail)
	if err != nil {
		return fmt.Errorf("failed to insert order event: %w", err)
	}
	return nil
}

func (r *repository) HasEvent(ctx context.Context, orderID uuid.UUID, eventType string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM order_events WHERE order_id = $1 AND event_type = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, orderID, eventType).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check order event: %w", err)
	}
	return exists, nil
}
