package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGateway(url string) *stripeGateway {
	return &stripeGateway{
		apiKey:     "sk_test",
		baseURL:    url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestStripeGateway_CreateIntent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "idem-1", r.Header.Get("Idempotency-Key"))

		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "sk_test", user)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "22095", r.Form.Get("amount"))
		assert.Equal(t, "usd", r.Form.Get("currency"))
		assert.Equal(t, "true", r.Form.Get("automatic_payment_methods[enabled]"))
		assert.Equal(t, "acct_1", r.Form.Get("transfer_data[destination]"))
		assert.Equal(t, "order-1", r.Form.Get("metadata[order_id]"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "pi_123",
			"client_secret": "pi_123_secret",
			"status": "requires_payment_method",
			"amount": 22095,
			"currency": "usd",
			"metadata": {"order_id": "order-1"}
		}`))
	}))
	defer server.Close()

	intent, err := testGateway(server.URL).CreateIntent(context.Background(), CreateIntentInput{
		AmountCents:         22095,
		Currency:            "USD",
		IdempotencyKey:      "idem-1",
		TransferDestination: "acct_1",
		Metadata:            map[string]string{"order_id": "order-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret", intent.ClientSecret)
	assert.Equal(t, "requires_payment_method", intent.Status)
	assert.Equal(t, int64(22095), intent.AmountCents)
	assert.Equal(t, "USD", intent.Currency)
	assert.Equal(t, "order-1", intent.Metadata["order_id"])
}

func TestStripeGateway_CreateIntentError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"message":"Your card was declined."}}`))
	}))
	defer server.Close()

	_, err := testGateway(server.URL).CreateIntent(context.Background(), CreateIntentInput{
		AmountCents: 100,
		Currency:    "usd",
	})
	assert.ErrorContains(t, err, "declined")
}

func TestStripeGateway_RetrieveIntent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/payment_intents/pi_123", r.URL.Path)
		w.Write([]byte(`{"id":"pi_123","status":"succeeded","amount":22095,"currency":"usd","latest_charge":"ch_1"}`))
	}))
	defer server.Close()

	intent, err := testGateway(server.URL).RetrieveIntent(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", intent.Status)
	assert.Equal(t, "ch_1", intent.LatestChargeID)
}

func TestStripeGateway_UpdateIntentAmount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents/pi_123", r.URL.Path)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "18500", r.Form.Get("amount"))
		assert.Equal(t, "abc123", r.Form.Get("metadata[cart_hash]"))

		w.Write([]byte(`{"id":"pi_123","status":"requires_payment_method","amount":18500,"currency":"usd"}`))
	}))
	defer server.Close()

	err := testGateway(server.URL).UpdateIntentAmount(context.Background(), "pi_123", 18500, map[string]string{"cart_hash": "abc123"})
	assert.NoError(t, err)
}

func TestStripeGateway_Refund(t *testing.T) {
	t.Run("Succeeded", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/refunds", r.URL.Path)

			require.NoError(t, r.ParseForm())
			assert.Equal(t, "pi_123", r.Form.Get("payment_intent"))
			assert.Equal(t, "5000", r.Form.Get("amount"))
			assert.Equal(t, "requested_by_customer", r.Form.Get("reason"))

			w.Write([]byte(`{"id":"re_1","status":"succeeded","amount":5000}`))
		}))
		defer server.Close()

		result, err := testGateway(server.URL).Refund(context.Background(), RefundInput{
			PaymentIntentID: "pi_123",
			AmountCents:     5000,
			Reason:          "requested_by_customer",
		})
		require.NoError(t, err)
		assert.Equal(t, "re_1", result.ID)
		assert.Equal(t, int64(5000), result.AmountCents)
	})

	t.Run("FailedStatus", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":"re_2","status":"failed","amount":5000,"failure_reason":"charge_for_pending_refund_disputed"}`))
		}))
		defer server.Close()

		_, err := testGateway(server.URL).Refund(context.Background(), RefundInput{
			PaymentIntentID: "pi_123",
			AmountCents:     5000,
		})
		assert.ErrorContains(t, err, "charge_for_pending_refund_disputed")
	})
}
