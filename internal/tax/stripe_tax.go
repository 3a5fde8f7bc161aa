package tax

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

type stripeTax struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewStripeTax returns a Calculator backed by the Stripe Tax API.
func NewStripeTax(apiKey string) Calculator {
	if apiKey == "" {
		logger.L().Warn("Stripe API key is empty")
	}

	return &stripeTax{
		apiKey:  apiKey,
		baseURL: stripeBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type stripeCalculationResponse struct {
	ID               string `json:"id"`
	TaxAmountCents   int64  `json:"tax_amount_exclusive"`
	AmountTotalCents int64  `json:"amount_total"`
}

func (s *stripeTax) Calculate(ctx context.Context, input CalculationInput) (*Calculation, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway", "stripe_tax"),
		zap.String("stripe_account", input.StripeAccountID),
		zap.Int("line_count", len(input.Lines)),
	)

	if input.Destination == nil {
		return nil, fmt.Errorf("tax calculation requires a destination address")
	}

	form := url.Values{}
	form.Set("currency", strings.ToLower(input.Currency))
	form.Set("customer_details[address][line1]", input.Destination.Line1)
	if input.Destination.Line2 != nil && *input.Destination.Line2 != "" {
		form.Set("customer_details[address][line2]", *input.Destination.Line2)
	}
	form.Set("customer_details[address][city]", input.Destination.City)
	form.Set("customer_details[address][state]", input.Destination.State)
	form.Set("customer_details[address][postal_code]", input.Destination.PostalCode)
	form.Set("customer_details[address][country]", input.Destination.Country)
	form.Set("customer_details[address_source]", "shipping")

	for i, line := range input.Lines {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[amount]", strconv.FormatInt(line.AmountCents*int64(line.Quantity), 10))
		form.Set(prefix+"[quantity]", strconv.Itoa(line.Quantity))
		form.Set(prefix+"[reference]", line.Reference)
		form.Set(prefix+"[tax_code]", line.TaxCode)
	}

	if input.ShippingCents > 0 {
		form.Set("shipping_cost[amount]", strconv.FormatInt(input.ShippingCents, 10))
	}

	body, err := s.post(ctx, "/v1/tax/calculations", form, input.StripeAccountID)
	if err != nil {
		log.Error("tax calculation request failed", zap.Error(err))
		return nil, err
	}

	var res stripeCalculationResponse
	if err := json.Unmarshal(body, &res); err != nil {
		log.Error("failed decoding tax calculation response", zap.Error(err))
		return nil, err
	}

	log.Info("tax calculated",
		zap.String("calculation_id", res.ID),
		zap.Int64("tax_amount_cents", res.TaxAmountCents),
	)

	return &Calculation{
		TaxAmountCents: res.TaxAmountCents,
		CalculationID:  res.ID,
	}, nil
}

type stripeTaxSettingsResponse struct {
	HeadOffice *struct {
		Address struct {
			Line1      string  `json:"line1"`
			Line2      *string `json:"line2"`
			City       string  `json:"city"`
			State      string  `json:"state"`
			PostalCode string  `json:"postal_code"`
			Country    string  `json:"country"`
		} `json:"address"`
	} `json:"head_office"`
}

// HeadOfficeAddress returns the tenant's registered head office, used as
// the tax destination for pickup orders. Nil when not configured.
func (s *stripeTax) HeadOfficeAddress(ctx context.Context, stripeAccountID string) (*Address, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/tax/settings", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.apiKey, "")
	if stripeAccountID != "" {
		req.Header.Set("Stripe-Account", stripeAccountID)
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

	var res stripeTaxSettingsResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}
	if res.HeadOffice == nil {
		return nil, nil
	}

	addr := res.HeadOffice.Address
	return &Address{
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}, nil
}

func (s *stripeTax) post(ctx context.Context, path string, form url.Values, stripeAccountID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}

	req.SetBasicAuth(s.apiKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if stripeAccountID != "" {
		req.Header.Set("Stripe-Account", stripeAccountID)
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
