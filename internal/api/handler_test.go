package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"relove-be/internal/auth"
	"relove-be/internal/order"
	"relove-be/internal/pricing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateIntent(ctx context.Context, input order.CreateIntentInput) (*order.CreateIntentResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.CreateIntentResult), args.Error(1)
}

func (m *MockOrderService) UpdateFulfillment(ctx context.Context, input order.UpdateFulfillmentInput) (*order.QuoteResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.QuoteResult), args.Error(1)
}

func (m *MockOrderService) ConfirmPayment(ctx context.Context, input order.ConfirmPaymentInput) (*order.ConfirmResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.ConfirmResult), args.Error(1)
}

func (m *MockOrderService) Refund(ctx context.Context, input order.RefundInput) (*order.RefundResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.RefundResult), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, input order.GetOrderInput) (*order.Order, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

const sessionKey = "test-session-key"

func newTestRouter(t *testing.T, svc order.Service) http.Handler {
	db, _, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRouter(NewHandler(svc), auth.NewSessionVerifier(sessionKey), db)
}

func sessionToken(t *testing.T, userID, role string) string {
	claims := auth.SessionClaims{
		Email: userID + "@example.com",
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(sessionKey))
	require.NoError(t, err)
	return token
}

// Each request gets its own client address so the per-client rate
// limiter never throttles the suite.
var clientSeq atomic.Int64

func nextClientAddr() string {
	return fmt.Sprintf("10.0.%d.1:52000", clientSeq.Add(1))
}

func postJSON(router http.Handler, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.RemoteAddr = nextClientAddr()
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreatePaymentIntent(t *testing.T) {
	orderID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("CreateIntent", mock.Anything, mock.MatchedBy(func(input order.CreateIntentInput) bool {
			return input.IdempotencyKey == "idem-1" &&
				len(input.Items) == 1 &&
				input.Items[0].VariantID == "var-1" &&
				input.Fulfillment == pricing.FulfillmentShip
		})).Return(&order.CreateIntentResult{
			OrderID:         orderID,
			Status:          order.StatusPending,
			PaymentIntentID: "pi_123",
			ClientSecret:    "pi_123_secret",
			SubtotalCents:   21100,
			ShippingCents:   995,
			TotalCents:      22095,
			Fulfillment:     pricing.FulfillmentShip,
		}, nil)

		router := newTestRouter(t, svc)
		rec := postJSON(router, "/api/checkout/payment-intent", map[string]interface{}{
			"items":           []map[string]interface{}{{"productId": "prod-1", "variantId": "var-1", "quantity": 2}},
			"fulfillmentType": "ship",
		}, map[string]string{"Idempotency-Key": "idem-1"})

		require.Equal(t, http.StatusOK, rec.Code)

		var body createIntentResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, orderID.String(), body.OrderID)
		assert.Equal(t, "pi_123_secret", body.ClientSecret)
		assert.Equal(t, int64(22095), body.Amounts.TotalCents)
		svc.AssertExpectations(t)
	})

	t.Run("BodyKeyFallback", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("CreateIntent", mock.Anything, mock.MatchedBy(func(input order.CreateIntentInput) bool {
			return input.IdempotencyKey == "idem-body"
		})).Return(&order.CreateIntentResult{OrderID: orderID, Status: order.StatusPending}, nil)

		router := newTestRouter(t, svc)
		rec := postJSON(router, "/api/checkout/payment-intent", map[string]interface{}{
			"items":           []map[string]interface{}{{"productId": "prod-1", "variantId": "var-1", "quantity": 1}},
			"fulfillmentType": "ship",
			"idempotencyKey":  "idem-body",
		}, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("SessionIdentityForwarded", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("CreateIntent", mock.Anything, mock.MatchedBy(func(input order.CreateIntentInput) bool {
			return input.UserID != nil && *input.UserID == "user-1"
		})).Return(&order.CreateIntentResult{OrderID: orderID, Status: order.StatusPending}, nil)

		router := newTestRouter(t, svc)
		rec := postJSON(router, "/api/checkout/payment-intent", map[string]interface{}{
			"items":           []map[string]interface{}{{"productId": "prod-1", "variantId": "var-1", "quantity": 1}},
			"fulfillmentType": "ship",
			"idempotencyKey":  "idem-1",
		}, map[string]string{"Authorization": "Bearer " + sessionToken(t, "user-1", "")})

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("CartMismatchConflict", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("CreateIntent", mock.Anything, mock.Anything).Return(nil, order.ErrCartMismatch)

		router := newTestRouter(t, svc)
		rec := postJSON(router, "/api/checkout/payment-intent", map[string]interface{}{
			"items":           []map[string]interface{}{{"productId": "prod-1", "variantId": "var-1", "quantity": 1}},
			"fulfillmentType": "ship",
			"idempotencyKey":  "idem-1",
		}, nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "CART_MISMATCH")
	})

	t.Run("InvalidBody", func(t *testing.T) {
		router := newTestRouter(t, new(MockOrderService))
		req := httptest.NewRequest(http.MethodPost, "/api/checkout/payment-intent", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUpdateFulfillment(t *testing.T) {
	orderID := uuid.New()

	svc := new(MockOrderService)
	svc.On("UpdateFulfillment", mock.Anything, mock.MatchedBy(func(input order.UpdateFulfillmentInput) bool {
		return input.OrderID == orderID && input.Fulfillment == pricing.FulfillmentPickup
	})).Return(&order.QuoteResult{
		OrderID:       orderID,
		SubtotalCents: 21100,
		TotalCents:    21100,
		Fulfillment:   pricing.FulfillmentPickup,
	}, nil)

	router := newTestRouter(t, svc)
	rec := postJSON(router, "/api/checkout/fulfillment", map[string]interface{}{
		"orderId":         orderID.String(),
		"fulfillmentType": "pickup",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var body quoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(0), body.Amounts.ShippingCents)
	assert.Equal(t, "pickup", body.FulfillmentType)
}

func TestConfirmPayment(t *testing.T) {
	orderID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("ConfirmPayment", mock.Anything, mock.Anything).
			Return(&order.ConfirmResult{OrderID: orderID, Success: true}, nil)

		router := newTestRouter(t, svc)
		rec := postJSON(router, "/api/checkout/confirm", map[string]interface{}{
			"orderId":         orderID.String(),
			"paymentIntentId": "pi_123",
		}, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"success":true`)
	})

	t.Run("ProcessingReturns202", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("ConfirmPayment", mock.Anything, mock.Anything).
			Return(&order.ConfirmResult{OrderID: orderID, Processing: true}, nil)

		router := newTestRouter(t, svc)
		rec := postJSON(router, "/api/checkout/confirm", map[string]interface{}{
			"orderId":         orderID.String(),
			"paymentIntentId": "pi_123",
		}, nil)

		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("NotSucceededReturns402", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("ConfirmPayment", mock.Anything, mock.Anything).
			Return(nil, order.ErrPaymentNotSucceeded)

		router := newTestRouter(t, svc)
		rec := postJSON(router, "/api/checkout/confirm", map[string]interface{}{
			"orderId":         orderID.String(),
			"paymentIntentId": "pi_123",
		}, nil)

		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	})

	t.Run("MissingIntentID", func(t *testing.T) {
		router := newTestRouter(t, new(MockOrderService))
		rec := postJSON(router, "/api/checkout/confirm", map[string]interface{}{
			"orderId": orderID.String(),
		}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRefundOrder(t *testing.T) {
	orderID := uuid.New()

	t.Run("RequiresSession", func(t *testing.T) {
		router := newTestRouter(t, new(MockOrderService))
		rec := postJSON(router, "/api/admin/orders/"+orderID.String()+"/refund", map[string]interface{}{
			"type": "full",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("RequiresAdminRole", func(t *testing.T) {
		router := newTestRouter(t, new(MockOrderService))
		rec := postJSON(router, "/api/admin/orders/"+orderID.String()+"/refund", map[string]interface{}{
			"type": "full",
		}, map[string]string{"Authorization": "Bearer " + sessionToken(t, "user-1", "")})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("FullRefund", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("Refund", mock.Anything, mock.MatchedBy(func(input order.RefundInput) bool {
			return input.OrderID == orderID && input.Request.Kind == order.RefundFull
		})).Return(&order.RefundResult{
			RefundID:         "re_1",
			Status:           "succeeded",
			AmountCents:      22095,
			OrderRefundCents: 22095,
			OrderStatus:      order.StatusRefunded,
		}, nil)

		router := newTestRouter(t, svc)
		rec := postJSON(router, "/api/admin/orders/"+orderID.String()+"/refund", map[string]interface{}{
			"type": "full",
		}, map[string]string{"Authorization": "Bearer " + sessionToken(t, "admin-1", auth.RoleAdmin)})

		require.Equal(t, http.StatusOK, rec.Code)

		var body refundResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "re_1", body.RefundID)
		assert.Equal(t, "refunded", body.OrderStatus)
		svc.AssertExpectations(t)
	})

	t.Run("ItemRefundForwardsIDs", func(t *testing.T) {
		itemID := uuid.New()
		svc := new(MockOrderService)
		svc.On("Refund", mock.Anything, mock.MatchedBy(func(input order.RefundInput) bool {
			return input.Request.Kind == order.RefundProduct &&
				len(input.Request.ItemIDs) == 1 &&
				input.Request.ItemIDs[0] == itemID
		})).Return(&order.RefundResult{
			RefundID:    "re_2",
			Status:      "succeeded",
			AmountCents: 5100,
			OrderStatus: order.StatusPartiallyRefunded,
		}, nil)

		router := newTestRouter(t, svc)
		rec := postJSON(router, "/api/admin/orders/"+orderID.String()+"/refund", map[string]interface{}{
			"type":    "product",
			"itemIds": []string{itemID.String()},
		}, map[string]string{"Authorization": "Bearer " + sessionToken(t, "admin-1", auth.RoleAdmin)})

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("ExceedsRemainingConflict", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("Refund", mock.Anything, mock.Anything).Return(nil, order.ErrRefundExceedsRemaining)

		router := newTestRouter(t, svc)
		rec := postJSON(router, "/api/admin/orders/"+orderID.String()+"/refund", map[string]interface{}{
			"type":        "custom",
			"amountCents": 99999,
		}, map[string]string{"Authorization": "Bearer " + sessionToken(t, "admin-1", auth.RoleAdmin)})

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "REFUND_EXCEEDS_REMAINING")
	})
}

func TestGetOrder(t *testing.T) {
	orderID := uuid.New()

	t.Run("GuestToken", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("GetOrder", mock.Anything, mock.MatchedBy(func(input order.GetOrderInput) bool {
			return input.OrderID == orderID && input.OrderToken == "guest-token"
		})).Return(&order.Order{
			ID:          orderID,
			Status:      order.StatusPaid,
			Currency:    "USD",
			Fulfillment: pricing.FulfillmentShip,
			TotalCents:  22095,
		}, nil)

		router := newTestRouter(t, svc)
		req := httptest.NewRequest(http.MethodGet, "/api/orders/"+orderID.String()+"?token=guest-token", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var body orderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, orderID.String(), body.ID)
		assert.Equal(t, "paid", body.Status)
		svc.AssertExpectations(t)
	})

	t.Run("Unauthorized", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("GetOrder", mock.Anything, mock.Anything).Return(nil, order.ErrUnauthorized)

		router := newTestRouter(t, svc)
		req := httptest.NewRequest(http.MethodGet, "/api/orders/"+orderID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("NotFound", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("GetOrder", mock.Anything, mock.Anything).Return(nil, order.ErrOrderNotFound)

		router := newTestRouter(t, svc)
		req := httptest.NewRequest(http.MethodGet, "/api/orders/"+orderID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthz(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	dbMock.ExpectPing()

	router := NewRouter(NewHandler(new(MockOrderService)), auth.NewSessionVerifier(sessionKey), db)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
