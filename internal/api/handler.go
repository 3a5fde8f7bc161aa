package api

import (
	"encoding/json"
	"net/http"

	"relove-be/internal/order"
	"relove-be/internal/pricing"
	"relove-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	orders order.Service
}

func NewHandler(orders order.Service) *Handler {
	return &Handler{orders: orders}
}

func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}

	items := make([]pricing.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, pricing.CartItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}

	input := order.CreateIntentInput{
		Items:           items,
		Fulfillment:     pricing.NormalizeFulfillment(req.FulfillmentType),
		IdempotencyKey:  key,
		ShippingAddress: req.ShippingAddress.toAddress(),
		GuestEmail:      req.GuestEmail,
	}
	if userID, ok := utils.GetUserIDFromContext(r.Context()); ok {
		input.UserID = &userID
		input.UserEmail = utils.GetUserEmailFromContext(r.Context())
	}

	result, err := h.orders.CreateIntent(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, createIntentResponse{
		OrderID:         result.OrderID.String(),
		Status:          string(result.Status),
		AlreadyPaid:     result.AlreadyPaid,
		PaymentIntentID: result.PaymentIntentID,
		ClientSecret:    result.ClientSecret,
		AccessToken:     result.AccessToken,
		FulfillmentType: string(result.Fulfillment),
		Amounts: amountsDTO{
			SubtotalCents: result.SubtotalCents,
			ShippingCents: result.ShippingCents,
			TaxCents:      result.TaxCents,
			TotalCents:    result.TotalCents,
		},
	})
}

func (h *Handler) UpdateFulfillment(w http.ResponseWriter, r *http.Request) {
	var req updateFulfillmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		utils.WriteJSONError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	input := order.UpdateFulfillmentInput{
		OrderID:         orderID,
		Fulfillment:     pricing.NormalizeFulfillment(req.FulfillmentType),
		ShippingAddress: req.ShippingAddress.toAddress(),
		OrderToken:      req.OrderToken,
	}
	if userID, ok := utils.GetUserIDFromContext(r.Context()); ok {
		input.UserID = &userID
	}

	result, err := h.orders.UpdateFulfillment(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		OrderID:         result.OrderID.String(),
		FulfillmentType: string(result.Fulfillment),
		Amounts: amountsDTO{
			SubtotalCents: result.SubtotalCents,
			ShippingCents: result.ShippingCents,
			TaxCents:      result.TaxCents,
			TotalCents:    result.TotalCents,
		},
	})
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		utils.WriteJSONError(w, "invalid order id", http.StatusBadRequest)
		return
	}
	if req.PaymentIntentID == "" {
		utils.WriteJSONError(w, "paymentIntentId is required", http.StatusBadRequest)
		return
	}

	input := order.ConfirmPaymentInput{
		OrderID:         orderID,
		PaymentIntentID: req.PaymentIntentID,
		Fulfillment:     req.FulfillmentType,
		ShippingAddress: req.ShippingAddress.toAddress(),
		OrderToken:      req.OrderToken,
	}
	if userID, ok := utils.GetUserIDFromContext(r.Context()); ok {
		input.UserID = &userID
		input.UserEmail = utils.GetUserEmailFromContext(r.Context())
	}

	result, err := h.orders.ConfirmPayment(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// A processing intent is not a failure: the client polls again.
	status := http.StatusOK
	if result.Processing {
		status = http.StatusAccepted
	}

	writeJSON(w, status, confirmResponse{
		Success:     result.Success,
		Processing:  result.Processing,
		AlreadyPaid: result.AlreadyPaid,
		Diagnostics: result.Diagnostics,
	})
}

func (h *Handler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		utils.WriteJSONError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	request := order.RefundRequest{
		Kind:        order.RefundKind(req.Type),
		AmountCents: req.AmountCents,
	}
	for _, raw := range req.ItemIDs {
		itemID, err := uuid.Parse(raw)
		if err != nil {
			utils.WriteJSONError(w, "invalid item id", http.StatusBadRequest)
			return
		}
		request.ItemIDs = append(request.ItemIDs, itemID)
	}

	result, err := h.orders.Refund(r.Context(), order.RefundInput{
		OrderID: orderID,
		Request: request,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, refundResponse{
		RefundID:         result.RefundID,
		Status:           result.Status,
		AmountCents:      result.AmountCents,
		OrderRefundCents: result.OrderRefundCents,
		OrderStatus:      string(result.OrderStatus),
		Warning:          result.Warning,
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		utils.WriteJSONError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	input := order.GetOrderInput{
		OrderID:    orderID,
		OrderToken: r.URL.Query().Get("token"),
	}
	if userID, ok := utils.GetUserIDFromContext(r.Context()); ok {
		input.UserID = &userID
	}

	o, err := h.orders.GetOrder(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
