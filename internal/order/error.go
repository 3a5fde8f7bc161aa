package order

import "relove-be/internal/errs"

var (
	// -- Validation & Input --
	ErrIdempotencyKeyRequired = errs.New("IDEMPOTENCY_KEY_REQUIRED", "idempotency key is required")
	ErrGuestEmailRequired     = errs.New("GUEST_EMAIL_REQUIRED", "guest email is required")
	ErrInvalidRefundKind      = errs.New("INVALID_REFUND_KIND", "unknown refund type")
	ErrInvalidRefundAmount    = errs.New("INVALID_REFUND_AMOUNT", "refund amount must be greater than zero")
	ErrRefundItemsRequired    = errs.New("REFUND_ITEMS_REQUIRED", "product refund requires at least one item")

	// -- Intake conflicts --
	ErrIdempotencyKeyExpired = errs.New("IDEMPOTENCY_KEY_EXPIRED", "idempotency key expired")
	ErrCartMismatch          = errs.New("CART_MISMATCH", "cart does not match original order")
	ErrPaymentIntentCanceled = errs.New("PAYMENT_INTENT_CANCELED", "payment intent was canceled")

	// -- Repricing / confirmation conflicts --
	ErrOrderNotPending       = errs.New("ORDER_NOT_PENDING", "order is not pending")
	ErrMissingPaymentIntent  = errs.New("MISSING_PAYMENT_INTENT", "order has no payment intent")
	ErrOrderAlreadyPaid      = errs.New("ORDER_ALREADY_PAID", "order is already paid")
	ErrPaymentIntentMismatch = errs.New("PAYMENT_INTENT_MISMATCH", "payment intent does not match order")
	ErrPaymentIntentConflict = errs.New("PAYMENT_INTENT_CONFLICT", "payment intent already attached to order")
	ErrPaymentNotSucceeded   = errs.New("PAYMENT_NOT_SUCCEEDED", "payment not completed")
	ErrPaymentAmountMismatch = errs.New("PAYMENT_AMOUNT_MISMATCH", "payment amount mismatch")
	ErrFulfillmentMismatch   = errs.New("FULFILLMENT_MISMATCH", "fulfillment mismatch, refresh checkout")

	// -- Stock (commit-time check is authoritative) --
	ErrInsufficientStock = errs.New("INSUFFICIENT_STOCK", "insufficient stock")

	// -- Refunds --
	ErrAlreadyRefunded        = errs.New("ALREADY_REFUNDED", "order has no remaining refundable balance")
	ErrOrderNotRefundable     = errs.New("ORDER_NOT_REFUNDABLE", "order cannot be refunded in its current status")
	ErrRefundExceedsRemaining = errs.New("REFUND_EXCEEDS_REMAINING", "refund amount exceeds remaining refundable balance")
	ErrItemAlreadyRefunded    = errs.New("ITEM_ALREADY_REFUNDED", "one or more selected items were already refunded")
	ErrRefundItemInvalid      = errs.New("REFUND_ITEM_INVALID", "one or more selected items are invalid")

	// -- Resource state --
	ErrOrderNotFound = errs.New("ORDER_NOT_FOUND", "order not found")
	ErrUnauthorized  = errs.New("UNAUTHORIZED", "cannot access others' orders")

	// -- Storage races --
	// The unique index on idempotency_key makes the create/create race
	// lose cleanly: the loser re-reads and resumes the winner's order.
	ErrIdempotencyConflict = errs.New("IDEMPOTENCY_CONFLICT", "order already created for idempotency key")
)
