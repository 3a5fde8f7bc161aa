package order

import (
	"time"

	"relove-be/internal/pricing"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusPaid              Status = "paid"
	StatusShipped           Status = "shipped"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusRefundPending     Status = "refund_pending"
	StatusRefunded          Status = "refunded"
	StatusCanceled          Status = "canceled"
)

// TTL is the hard expiry on a pending order. Past it the idempotency key
// is dead and the order is treated as abandoned.
const TTL = time.Hour

type Order struct {
	ID               uuid.UUID
	TenantID         string
	UserID           *string
	GuestEmail       *string
	Currency         string
	Fulfillment      pricing.Fulfillment
	Status           Status
	SubtotalCents    int64
	ShippingCents    int64
	TaxCents         int64
	TotalCents       int64
	RefundCents      int64
	IdempotencyKey   string
	CartHash         string
	ExpiresAt        time.Time
	PaymentIntentID  *string
	TaxCalculationID *string
	CustomerState    *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Items            []LineItem
}

func (o *Order) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

func (o *Order) RemainingRefundableCents() int64 {
	remaining := o.TotalCents - o.RefundCents
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Refundable reports whether a refund may be issued in the order's
// current status. Refunded orders are terminal.
func (o *Order) Refundable() bool {
	switch o.Status {
	case StatusPaid, StatusShipped, StatusPartiallyRefunded, StatusRefundPending:
		return true
	}
	return false
}

// LineItem is priced once, at order creation, and never re-derived from
// the cart afterwards.
type LineItem struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	ProductID      string
	VariantID      string
	Quantity       int
	UnitPriceCents int64
	UnitCostCents  int64
	LineTotalCents int64
	RefundedAt     *time.Time
}

type RefundKind string

const (
	RefundFull    RefundKind = "full"
	RefundProduct RefundKind = "product"
	RefundCustom  RefundKind = "custom"
)

// RefundRequest is a tagged choice: full, per-item, or custom amount.
type RefundRequest struct {
	Kind        RefundKind
	ItemIDs     []uuid.UUID
	AmountCents int64
}

func (r RefundRequest) Validate() error {
	switch r.Kind {
	case RefundFull:
		return nil
	case RefundProduct:
		if len(r.ItemIDs) == 0 {
			return ErrRefundItemsRequired
		}
		return nil
	case RefundCustom:
		if r.AmountCents <= 0 {
			return ErrInvalidRefundAmount
		}
		return nil
	}
	return ErrInvalidRefundKind
}
