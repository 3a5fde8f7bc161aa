package api

import (
	"encoding/json"
	"net/http"

	"relove-be/internal/errs"
	"relove-be/internal/logger"

	"go.uber.org/zap"
)

var statusByCode = map[string]int{
	// Bad input
	"IDEMPOTENCY_KEY_REQUIRED": http.StatusBadRequest,
	"GUEST_EMAIL_REQUIRED":     http.StatusBadRequest,
	"EMPTY_CART":               http.StatusBadRequest,
	"INVALID_QUANTITY":         http.StatusBadRequest,
	"INVALID_REFUND_KIND":      http.StatusBadRequest,
	"INVALID_REFUND_AMOUNT":    http.StatusBadRequest,
	"REFUND_ITEMS_REQUIRED":    http.StatusBadRequest,
	"REFUND_ITEM_INVALID":      http.StatusBadRequest,
	"MULTI_TENANT":             http.StatusBadRequest,
	"TENANT_NOT_CONFIGURED":    http.StatusBadRequest,

	// Auth / missing resources
	"UNAUTHORIZED":      http.StatusUnauthorized,
	"ORDER_NOT_FOUND":   http.StatusNotFound,
	"PRODUCT_NOT_FOUND": http.StatusNotFound,
	"VARIANT_NOT_FOUND": http.StatusNotFound,

	// Payment state
	"PAYMENT_NOT_SUCCEEDED": http.StatusPaymentRequired,

	// State conflicts
	"CART_MISMATCH":            http.StatusConflict,
	"IDEMPOTENCY_KEY_EXPIRED":  http.StatusConflict,
	"IDEMPOTENCY_CONFLICT":     http.StatusConflict,
	"INSUFFICIENT_STOCK":       http.StatusConflict,
	"ORDER_NOT_PENDING":        http.StatusConflict,
	"ORDER_ALREADY_PAID":       http.StatusConflict,
	"MISSING_PAYMENT_INTENT":   http.StatusConflict,
	"PAYMENT_INTENT_CANCELED":  http.StatusConflict,
	"PAYMENT_INTENT_MISMATCH":  http.StatusConflict,
	"PAYMENT_INTENT_CONFLICT":  http.StatusConflict,
	"PAYMENT_AMOUNT_MISMATCH":  http.StatusConflict,
	"FULFILLMENT_MISMATCH":     http.StatusConflict,
	"ALREADY_REFUNDED":         http.StatusConflict,
	"ORDER_NOT_REFUNDABLE":     http.StatusConflict,
	"REFUND_EXCEEDS_REMAINING": http.StatusConflict,
	"ITEM_ALREADY_REFUNDED":    http.StatusConflict,
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError maps domain error codes onto HTTP statuses. Anything
// without a code is an internal failure and stays opaque to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status, known := statusByCode[code]
	if !known {
		logger.FromCtx(r.Context()).Error("unhandled error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
		return
	}

	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
