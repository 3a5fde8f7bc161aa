package pricing

import "relove-be/internal/errs"

var (
	ErrEmptyCart         = errs.New("EMPTY_CART", "cart has no items")
	ErrInvalidQuantity   = errs.New("INVALID_QUANTITY", "quantity must be greater than zero")
	ErrProductNotFound   = errs.New("PRODUCT_NOT_FOUND", "product not found")
	ErrVariantNotFound   = errs.New("VARIANT_NOT_FOUND", "variant not found")
	ErrInsufficientStock = errs.New("INSUFFICIENT_STOCK", "insufficient stock")
	ErrMultiTenant       = errs.New("MULTI_TENANT", "all items must be from the same seller")
)
