package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"relove-be/internal/logger"

	"go.uber.org/zap"
)

const stripeBaseURL = "https://api.stripe.com"

type stripeGateway struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewStripeGateway returns a Gateway backed by the Stripe PaymentIntents
// and Refunds APIs.
func NewStripeGateway(apiKey string) Gateway {
	if apiKey == "" {
		logger.L().Warn("Stripe API key is empty")
	}

	return &stripeGateway{
		apiKey:  apiKey,
		baseURL: stripeBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type stripeIntentResponse struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	LatestCharge string            `json:"latest_charge"`
	Metadata     map[string]string `json:"metadata"`
}

func (r *stripeIntentResponse) toIntent() *Intent {
	return &Intent{
		ID:             r.ID,
		ClientSecret:   r.ClientSecret,
		Status:         r.Status,
		AmountCents:    r.Amount,
		Currency:       strings.ToUpper(r.Currency),
		LatestChargeID: r.LatestCharge,
		Metadata:       r.Metadata,
	}
}

func (s *stripeGateway) CreateIntent(ctx context.Context, input CreateIntentInput) (*Intent, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway", "stripe"),
		zap.Int64("amount_cents", input.AmountCents),
		zap.String("currency", input.Currency),
	)

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(input.AmountCents, 10))
	form.Set("currency", strings.ToLower(input.Currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	if input.ReceiptEmail != "" {
		form.Set("receipt_email", input.ReceiptEmail)
	}
	if input.TransferDestination != "" {
		form.Set("transfer_data[destination]", input.TransferDestination)
	}
	for k, v := range input.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	body, err := s.do(ctx, http.MethodPost, "/v1/payment_intents", form, input.IdempotencyKey)
	if err != nil {
		log.Error("payment intent create failed", zap.Error(err))
		return nil, err
	}

	var res stripeIntentResponse
	if err := json.Unmarshal(body, &res); err != nil {
		log.Error("failed decoding payment intent response", zap.Error(err))
		return nil, err
	}

	log.Info("payment intent created",
		zap.String("intent_id", res.ID),
		zap.String("status", res.Status),
	)

	return res.toIntent(), nil
}

func (s *stripeGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	body, err := s.do(ctx, http.MethodGet, "/v1/payment_intents/"+id, nil, "")
	if err != nil {
		logger.FromCtx(ctx).Error("payment intent retrieve failed",
			zap.String("intent_id", id),
			zap.Error(err),
		)
		return nil, err
	}

	var res stripeIntentResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}

	return res.toIntent(), nil
}

func (s *stripeGateway) UpdateIntentAmount(ctx context.Context, id string, amountCents int64, metadata map[string]string) error {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway", "stripe"),
		zap.String("intent_id", id),
		zap.Int64("amount_cents", amountCents),
	)

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	if _, err := s.do(ctx, http.MethodPost, "/v1/payment_intents/"+id, form, ""); err != nil {
		log.Error("payment intent update failed", zap.Error(err))
		return err
	}

	log.Info("payment intent amount updated")
	return nil
}

type stripeRefundResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	FailureReason string `json:"failure_reason"`
}

func (s *stripeGateway) Refund(ctx context.Context, input RefundInput) (*RefundResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway", "stripe"),
		zap.String("intent_id", input.PaymentIntentID),
		zap.Int64("amount_cents", input.AmountCents),
	)

	form := url.Values{}
	form.Set("payment_intent", input.PaymentIntentID)
	form.Set("amount", strconv.FormatInt(input.AmountCents, 10))
	if input.Reason != "" {
		form.Set("reason", input.Reason)
	}

	body, err := s.do(ctx, http.MethodPost, "/v1/refunds", form, "")
	if err != nil {
		log.Error("refund request failed", zap.Error(err))
		return nil, err
	}

	var res stripeRefundResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}

	if res.Status == "failed" {
		log.Error("refund failed", zap.String("failure_reason", res.FailureReason))
		return nil, fmt.Errorf("stripe refund failed: %s", res.FailureReason)
	}

	log.Info("refund created",
		zap.String("refund_id", res.ID),
		zap.String("status", res.Status),
	)

	return &RefundResult{
		ID:          res.ID,
		Status:      res.Status,
		AmountCents: res.Amount,
	}, nil
}

func (s *stripeGateway) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string) ([]byte, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}

	req.SetBasicAuth(s.apiKey, "")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stripe error: %s", string(body))
	}

	return body, nil
}
