package pricing

import "relove-be/internal/address"

type Fulfillment string

const (
	FulfillmentShip   Fulfillment = "ship"
	FulfillmentPickup Fulfillment = "pickup"
)

// NormalizeFulfillment mirrors the client contract: anything that is not
// explicitly pickup ships.
func NormalizeFulfillment(s string) Fulfillment {
	if s == string(FulfillmentPickup) {
		return FulfillmentPickup
	}
	return FulfillmentShip
}

// CartItem is the raw client cart tuple. Prices never come from the
// client; they are resolved against the catalog.
type CartItem struct {
	ProductID string
	VariantID string
	Quantity  int
}

// ResolvedLineItem is a cart item priced from authoritative catalog data.
// Ephemeral: it only exists to build a quote before an order row does.
type ResolvedLineItem struct {
	ProductID      string
	VariantID      string
	Quantity       int
	UnitPriceCents int64
	UnitCostCents  int64
	LineTotalCents int64
	Category       string
}

// LockedItem is an already-persisted order line: price and quantity are
// frozen, only shipping and tax may move on a reprice.
type LockedItem struct {
	ProductID      string
	VariantID      string
	Quantity       int
	UnitPriceCents int64
	UnitCostCents  int64
}

// Quote is the server-side price for a cart. All amounts in minor
// currency units.
type Quote struct {
	SubtotalCents    int64
	ShippingCents    int64
	TaxCents         int64
	TotalCents       int64
	TaxCalculationID *string
	DestinationState *string
	TenantID         string
	StripeAccountID  string
}

type ResolveInput struct {
	Items           []CartItem
	Fulfillment     Fulfillment
	ShippingAddress *address.Address
}

type RepriceInput struct {
	TenantID        string
	Items           []LockedItem
	Fulfillment     Fulfillment
	ShippingAddress *address.Address
}
