package pricing

import (
	"context"
	"testing"

	"relove-be/internal/address"
	"relove-be/internal/catalog"
	"relove-be/internal/tax"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetForCheckout(ctx context.Context, productIDs []string) ([]catalog.Product, error) {
	args := m.Called(ctx, productIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Product), args.Error(1)
}

func (m *MockCatalog) GetShippingDefaults(ctx context.Context, tenantID string, categories []string) (map[string]int64, error) {
	args := m.Called(ctx, tenantID, categories)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *MockCatalog) GetTaxSettings(ctx context.Context, tenantID string) (*catalog.TaxSettings, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.TaxSettings), args.Error(1)
}

func (m *MockCatalog) GetActiveRegistrations(ctx context.Context, tenantID string) (map[string]bool, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *MockCatalog) GetStripeAccountForTenant(ctx context.Context, tenantID string) (string, error) {
	args := m.Called(ctx, tenantID)
	return args.String(0), args.Error(1)
}

type MockCalculator struct {
	mock.Mock
}

func (m *MockCalculator) Calculate(ctx context.Context, input tax.CalculationInput) (*tax.Calculation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tax.Calculation), args.Error(1)
}

func (m *MockCalculator) HeadOfficeAddress(ctx context.Context, stripeAccountID string) (*tax.Address, error) {
	args := m.Called(ctx, stripeAccountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tax.Address), args.Error(1)
}

// --- Fixtures ---

func checkoutProducts() []catalog.Product {
	return []catalog.Product{
		{
			ID:       "prod-1",
			TenantID: "tenant-1",
			Category: "clothing",
			Variants: []catalog.Variant{
				{ID: "var-1", ProductID: "prod-1", PriceCents: 8000, CostCents: 4000, Stock: 5},
			},
		},
		{
			ID:       "prod-2",
			TenantID: "tenant-1",
			Category: "shoes",
			Variants: []catalog.Variant{
				{ID: "var-2", ProductID: "prod-2", PriceCents: 5100, CostCents: 2000, Stock: 1},
			},
		},
	}
}

func shipTo(state string) *address.Address {
	return &address.Address{
		Line1:      "1 Oak Ave",
		City:       "Austin",
		State:      state,
		PostalCode: "78701",
		Country:    "US",
	}
}

var taxDisabled = &catalog.TaxSettings{Enabled: false, HomeState: "SC"}

func TestResolve_ShippingUsesMaxCategoryDefault(t *testing.T) {
	cat := new(MockCatalog)
	calc := new(MockCalculator)
	r := NewResolver(cat, calc)

	cat.On("GetForCheckout", mock.Anything, []string{"prod-1", "prod-2"}).Return(checkoutProducts(), nil)
	cat.On("GetStripeAccountForTenant", mock.Anything, "tenant-1").Return("acct_1", nil)
	// Two categories ship as one parcel: the dearer default wins, they
	// are not summed.
	cat.On("GetShippingDefaults", mock.Anything, "tenant-1", []string{"clothing", "shoes"}).
		Return(map[string]int64{"clothing": 995, "shoes": 500}, nil)
	cat.On("GetTaxSettings", mock.Anything, "tenant-1").Return(taxDisabled, nil)

	quote, items, err := r.Resolve(context.Background(), ResolveInput{
		Items: []CartItem{
			{ProductID: "prod-1", VariantID: "var-1", Quantity: 2},
			{ProductID: "prod-2", VariantID: "var-2", Quantity: 1},
		},
		Fulfillment:     FulfillmentShip,
		ShippingAddress: shipTo("TX"),
	})

	require.NoError(t, err)
	assert.Equal(t, int64(21100), quote.SubtotalCents)
	assert.Equal(t, int64(995), quote.ShippingCents)
	assert.Equal(t, int64(0), quote.TaxCents)
	assert.Equal(t, int64(22095), quote.TotalCents)
	require.Len(t, items, 2)
	assert.Equal(t, int64(16000), items[0].LineTotalCents)
	assert.Equal(t, "clothing", items[0].Category)
	calc.AssertNotCalled(t, "Calculate", mock.Anything, mock.Anything)
}

func TestResolve_PickupSkipsShipping(t *testing.T) {
	cat := new(MockCatalog)
	r := NewResolver(cat, new(MockCalculator))

	cat.On("GetForCheckout", mock.Anything, mock.Anything).Return(checkoutProducts(), nil)
	cat.On("GetStripeAccountForTenant", mock.Anything, "tenant-1").Return("acct_1", nil)
	cat.On("GetTaxSettings", mock.Anything, "tenant-1").Return(taxDisabled, nil)

	quote, _, err := r.Resolve(context.Background(), ResolveInput{
		Items:       []CartItem{{ProductID: "prod-1", VariantID: "var-1", Quantity: 1}},
		Fulfillment: FulfillmentPickup,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(0), quote.ShippingCents)
	assert.Equal(t, int64(8000), quote.TotalCents)
	cat.AssertNotCalled(t, "GetShippingDefaults", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_CartValidation(t *testing.T) {
	t.Run("EmptyCart", func(t *testing.T) {
		r := NewResolver(new(MockCatalog), new(MockCalculator))
		_, _, err := r.Resolve(context.Background(), ResolveInput{Fulfillment: FulfillmentShip})
		assert.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("ZeroQuantity", func(t *testing.T) {
		r := NewResolver(new(MockCatalog), new(MockCalculator))
		_, _, err := r.Resolve(context.Background(), ResolveInput{
			Items:       []CartItem{{ProductID: "prod-1", VariantID: "var-1", Quantity: 0}},
			Fulfillment: FulfillmentShip,
		})
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	})

	t.Run("UnknownProduct", func(t *testing.T) {
		cat := new(MockCatalog)
		r := NewResolver(cat, new(MockCalculator))
		cat.On("GetForCheckout", mock.Anything, mock.Anything).Return([]catalog.Product{}, nil)

		_, _, err := r.Resolve(context.Background(), ResolveInput{
			Items:       []CartItem{{ProductID: "ghost", VariantID: "var-1", Quantity: 1}},
			Fulfillment: FulfillmentShip,
		})
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("UnknownVariant", func(t *testing.T) {
		cat := new(MockCatalog)
		r := NewResolver(cat, new(MockCalculator))
		cat.On("GetForCheckout", mock.Anything, mock.Anything).Return(checkoutProducts(), nil)

		_, _, err := r.Resolve(context.Background(), ResolveInput{
			Items:       []CartItem{{ProductID: "prod-1", VariantID: "ghost", Quantity: 1}},
			Fulfillment: FulfillmentShip,
		})
		assert.ErrorIs(t, err, ErrVariantNotFound)
	})

	t.Run("QuoteTimeStockCheck", func(t *testing.T) {
		cat := new(MockCatalog)
		r := NewResolver(cat, new(MockCalculator))
		cat.On("GetForCheckout", mock.Anything, mock.Anything).Return(checkoutProducts(), nil)

		_, _, err := r.Resolve(context.Background(), ResolveInput{
			Items:       []CartItem{{ProductID: "prod-2", VariantID: "var-2", Quantity: 3}},
			Fulfillment: FulfillmentShip,
		})
		assert.ErrorIs(t, err, ErrInsufficientStock)
	})

	t.Run("MixedSellers", func(t *testing.T) {
		cat := new(MockCatalog)
		r := NewResolver(cat, new(MockCalculator))
		products := checkoutProducts()
		products[1].TenantID = "tenant-2"
		cat.On("GetForCheckout", mock.Anything, mock.Anything).Return(products, nil)

		_, _, err := r.Resolve(context.Background(), ResolveInput{
			Items: []CartItem{
				{ProductID: "prod-1", VariantID: "var-1", Quantity: 1},
				{ProductID: "prod-2", VariantID: "var-2", Quantity: 1},
			},
			Fulfillment: FulfillmentShip,
		})
		assert.ErrorIs(t, err, ErrMultiTenant)
	})
}

func TestResolve_TaxGating(t *testing.T) {
	enabled := &catalog.TaxSettings{Enabled: true, HomeState: "SC"}

	t.Run("RegisteredDestinationCalculates", func(t *testing.T) {
		cat := new(MockCatalog)
		calc := new(MockCalculator)
		r := NewResolver(cat, calc)

		cat.On("GetForCheckout", mock.Anything, mock.Anything).Return(checkoutProducts(), nil)
		cat.On("GetStripeAccountForTenant", mock.Anything, "tenant-1").Return("acct_1", nil)
		cat.On("GetShippingDefaults", mock.Anything, "tenant-1", mock.Anything).
			Return(map[string]int64{"clothing": 995}, nil)
		cat.On("GetTaxSettings", mock.Anything, "tenant-1").Return(enabled, nil)
		cat.On("GetActiveRegistrations", mock.Anything, "tenant-1").Return(map[string]bool{"SC": true}, nil)
		calc.On("Calculate", mock.Anything, mock.MatchedBy(func(in tax.CalculationInput) bool {
			return in.ShippingCents == 995 &&
				in.Destination.State == "SC" &&
				len(in.Lines) == 1 &&
				in.Lines[0].TaxCode != ""
		})).Return(&tax.Calculation{TaxAmountCents: 1477, CalculationID: "taxcalc_1"}, nil)

		// Lowercase state input must still match the registration.
		quote, _, err := r.Resolve(context.Background(), ResolveInput{
			Items:           []CartItem{{ProductID: "prod-1", VariantID: "var-1", Quantity: 2}},
			Fulfillment:     FulfillmentShip,
			ShippingAddress: shipTo("sc"),
		})

		require.NoError(t, err)
		assert.Equal(t, int64(1477), quote.TaxCents)
		assert.Equal(t, int64(16000+995+1477), quote.TotalCents)
		require.NotNil(t, quote.TaxCalculationID)
		assert.Equal(t, "taxcalc_1", *quote.TaxCalculationID)
	})

	t.Run("UnregisteredDestinationIsZeroTax", func(t *testing.T) {
		cat := new(MockCatalog)
		calc := new(MockCalculator)
		r := NewResolver(cat, calc)

		cat.On("GetForCheckout", mock.Anything, mock.Anything).Return(checkoutProducts(), nil)
		cat.On("GetStripeAccountForTenant", mock.Anything, "tenant-1").Return("acct_1", nil)
		cat.On("GetShippingDefaults", mock.Anything, "tenant-1", mock.Anything).
			Return(map[string]int64{"clothing": 995}, nil)
		cat.On("GetTaxSettings", mock.Anything, "tenant-1").Return(enabled, nil)
		cat.On("GetActiveRegistrations", mock.Anything, "tenant-1").Return(map[string]bool{"SC": true}, nil)

		quote, _, err := r.Resolve(context.Background(), ResolveInput{
			Items:           []CartItem{{ProductID: "prod-1", VariantID: "var-1", Quantity: 2}},
			Fulfillment:     FulfillmentShip,
			ShippingAddress: shipTo("TX"),
		})

		// Not registered in TX: checkout succeeds with zero tax rather
		// than failing or guessing a rate.
		require.NoError(t, err)
		assert.Equal(t, int64(0), quote.TaxCents)
		assert.Equal(t, int64(16995), quote.TotalCents)
		calc.AssertNotCalled(t, "Calculate", mock.Anything, mock.Anything)
	})

	t.Run("PickupTaxedAtHeadOffice", func(t *testing.T) {
		cat := new(MockCatalog)
		calc := new(MockCalculator)
		r := NewResolver(cat, calc)

		cat.On("GetForCheckout", mock.Anything, mock.Anything).Return(checkoutProducts(), nil)
		cat.On("GetStripeAccountForTenant", mock.Anything, "tenant-1").Return("acct_1", nil)
		cat.On("GetTaxSettings", mock.Anything, "tenant-1").Return(enabled, nil)
		cat.On("GetActiveRegistrations", mock.Anything, "tenant-1").Return(map[string]bool{"SC": true}, nil)
		calc.On("HeadOfficeAddress", mock.Anything, "acct_1").
			Return(&tax.Address{Line1: "9 King St", City: "Charleston", State: "SC", PostalCode: "29401", Country: "US"}, nil)
		calc.On("Calculate", mock.Anything, mock.MatchedBy(func(in tax.CalculationInput) bool {
			return in.Destination.Line1 == "9 King St" && in.ShippingCents == 0
		})).Return(&tax.Calculation{TaxAmountCents: 640, CalculationID: "taxcalc_2"}, nil)

		quote, _, err := r.Resolve(context.Background(), ResolveInput{
			Items:       []CartItem{{ProductID: "prod-1", VariantID: "var-1", Quantity: 1}},
			Fulfillment: FulfillmentPickup,
		})

		require.NoError(t, err)
		assert.Equal(t, int64(640), quote.TaxCents)
	})

	t.Run("PickupFallsBackWhenNoHeadOffice", func(t *testing.T) {
		cat := new(MockCatalog)
		calc := new(MockCalculator)
		r := NewResolver(cat, calc)

		cat.On("GetForCheckout", mock.Anything, mock.Anything).Return(checkoutProducts(), nil)
		cat.On("GetStripeAccountForTenant", mock.Anything, "tenant-1").Return("acct_1", nil)
		cat.On("GetTaxSettings", mock.Anything, "tenant-1").Return(enabled, nil)
		cat.On("GetActiveRegistrations", mock.Anything, "tenant-1").Return(map[string]bool{"SC": true}, nil)
		calc.On("HeadOfficeAddress", mock.Anything, "acct_1").Return(nil, assert.AnError)
		calc.On("Calculate", mock.Anything, mock.MatchedBy(func(in tax.CalculationInput) bool {
			return in.Destination.City == "Charleston" && in.Destination.State == "SC"
		})).Return(&tax.Calculation{TaxAmountCents: 640}, nil)

		quote, _, err := r.Resolve(context.Background(), ResolveInput{
			Items:       []CartItem{{ProductID: "prod-1", VariantID: "var-1", Quantity: 1}},
			Fulfillment: FulfillmentPickup,
		})

		require.NoError(t, err)
		assert.Equal(t, int64(640), quote.TaxCents)
	})
}

func TestReprice_UsesLockedPrices(t *testing.T) {
	cat := new(MockCatalog)
	r := NewResolver(cat, new(MockCalculator))

	// Catalog price changed to 9999 since the order was created; the
	// locked 8000 must still be charged.
	products := checkoutProducts()
	products[0].Variants[0].PriceCents = 9999
	cat.On("GetForCheckout", mock.Anything, []string{"prod-1"}).Return(products[:1], nil)
	cat.On("GetStripeAccountForTenant", mock.Anything, "tenant-1").Return("acct_1", nil)
	cat.On("GetShippingDefaults", mock.Anything, "tenant-1", []string{"clothing"}).
		Return(map[string]int64{"clothing": 995}, nil)
	cat.On("GetTaxSettings", mock.Anything, "tenant-1").Return(taxDisabled, nil)

	quote, err := r.Reprice(context.Background(), RepriceInput{
		TenantID: "tenant-1",
		Items: []LockedItem{
			{ProductID: "prod-1", VariantID: "var-1", Quantity: 2, UnitPriceCents: 8000},
		},
		Fulfillment:     FulfillmentShip,
		ShippingAddress: shipTo("TX"),
	})

	require.NoError(t, err)
	assert.Equal(t, int64(16000), quote.SubtotalCents)
	assert.Equal(t, int64(16995), quote.TotalCents)
}

func TestReprice_MissingProductDefaultsCategory(t *testing.T) {
	cat := new(MockCatalog)
	r := NewResolver(cat, new(MockCalculator))

	// Product deleted since order creation: shipping falls back to the
	// catch-all category instead of failing the reprice.
	cat.On("GetForCheckout", mock.Anything, []string{"prod-gone"}).Return([]catalog.Product{}, nil)
	cat.On("GetStripeAccountForTenant", mock.Anything, "tenant-1").Return("acct_1", nil)
	cat.On("GetShippingDefaults", mock.Anything, "tenant-1", []string{"other"}).
		Return(map[string]int64{"other": 500}, nil)
	cat.On("GetTaxSettings", mock.Anything, "tenant-1").Return(taxDisabled, nil)

	quote, err := r.Reprice(context.Background(), RepriceInput{
		TenantID: "tenant-1",
		Items: []LockedItem{
			{ProductID: "prod-gone", VariantID: "var-x", Quantity: 1, UnitPriceCents: 4200},
		},
		Fulfillment:     FulfillmentShip,
		ShippingAddress: shipTo("TX"),
	})

	require.NoError(t, err)
	assert.Equal(t, int64(4200), quote.SubtotalCents)
	assert.Equal(t, int64(4700), quote.TotalCents)
}
