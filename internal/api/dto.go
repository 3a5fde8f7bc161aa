package api

import (
	"time"

	"relove-be/internal/address"
	"relove-be/internal/order"
)

type addressDTO struct {
	Name       *string `json:"name,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postalCode"`
	Country    string  `json:"country"`
}

func (a *addressDTO) toAddress() *address.Address {
	if a == nil {
		return nil
	}
	return &address.Address{
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

type cartItemDTO struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

type createIntentRequest struct {
	Items           []cartItemDTO `json:"items"`
	FulfillmentType string        `json:"fulfillmentType"`
	ShippingAddress *addressDTO   `json:"shippingAddress,omitempty"`
	GuestEmail      *string       `json:"guestEmail,omitempty"`
	IdempotencyKey  string        `json:"idempotencyKey,omitempty"`
}

type amountsDTO struct {
	SubtotalCents int64 `json:"subtotalCents"`
	ShippingCents int64 `json:"shippingCents"`
	TaxCents      int64 `json:"taxCents"`
	TotalCents    int64 `json:"totalCents"`
}

type createIntentResponse struct {
	OrderID         string     `json:"orderId"`
	Status          string     `json:"status"`
	AlreadyPaid     bool       `json:"alreadyPaid,omitempty"`
	PaymentIntentID string     `json:"paymentIntentId,omitempty"`
	ClientSecret    string     `json:"clientSecret,omitempty"`
	AccessToken     string     `json:"accessToken,omitempty"`
	FulfillmentType string     `json:"fulfillmentType"`
	Amounts         amountsDTO `json:"amounts"`
}

type updateFulfillmentRequest struct {
	OrderID         string      `json:"orderId"`
	FulfillmentType string      `json:"fulfillmentType"`
	ShippingAddress *addressDTO `json:"shippingAddress,omitempty"`
	OrderToken      string      `json:"orderToken,omitempty"`
}

type quoteResponse struct {
	OrderID         string     `json:"orderId"`
	FulfillmentType string     `json:"fulfillmentType"`
	Amounts         amountsDTO `json:"amounts"`
}

type confirmRequest struct {
	OrderID         string      `json:"orderId"`
	PaymentIntentID string      `json:"paymentIntentId"`
	FulfillmentType string      `json:"fulfillmentType,omitempty"`
	ShippingAddress *addressDTO `json:"shippingAddress,omitempty"`
	OrderToken      string      `json:"orderToken,omitempty"`
}

type confirmResponse struct {
	Success     bool               `json:"success"`
	Processing  bool               `json:"processing,omitempty"`
	AlreadyPaid bool               `json:"alreadyPaid,omitempty"`
	Diagnostics []order.Diagnostic `json:"diagnostics,omitempty"`
}

type refundRequest struct {
	Type        string   `json:"type"`
	ItemIDs     []string `json:"itemIds,omitempty"`
	AmountCents int64    `json:"amountCents,omitempty"`
}

type refundResponse struct {
	RefundID         string `json:"refundId"`
	Status           string `json:"status"`
	AmountCents      int64  `json:"amountCents"`
	OrderRefundCents int64  `json:"orderRefundCents"`
	OrderStatus      string `json:"orderStatus"`
	Warning          string `json:"warning,omitempty"`
}

type lineItemDTO struct {
	ID             string     `json:"id"`
	ProductID      string     `json:"productId"`
	VariantID      string     `json:"variantId"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int64      `json:"unitPriceCents"`
	LineTotalCents int64      `json:"lineTotalCents"`
	RefundedAt     *time.Time `json:"refundedAt,omitempty"`
}

type orderResponse struct {
	ID              string        `json:"id"`
	Status          string        `json:"status"`
	FulfillmentType string        `json:"fulfillmentType"`
	Currency        string        `json:"currency"`
	Amounts         amountsDTO    `json:"amounts"`
	RefundCents     int64         `json:"refundCents"`
	Items           []lineItemDTO `json:"items"`
	CreatedAt       time.Time     `json:"createdAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]lineItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, lineItemDTO{
			ID:             item.ID.String(),
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
			RefundedAt:     item.RefundedAt,
		})
	}

	return orderResponse{
		ID:              o.ID.String(),
		Status:          string(o.Status),
		FulfillmentType: string(o.Fulfillment),
		Currency:        o.Currency,
		Amounts: amountsDTO{
			SubtotalCents: o.SubtotalCents,
			ShippingCents: o.ShippingCents,
			TaxCents:      o.TaxCents,
			TotalCents:    o.TotalCents,
		},
		RefundCents: o.RefundCents,
		Items:       items,
		CreatedAt:   o.CreatedAt,
	}
}
