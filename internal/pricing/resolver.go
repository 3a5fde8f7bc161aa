package pricing

import (
	"context"

	"relove-be/internal/address"
	"relove-be/internal/catalog"
	"relove-be/internal/logger"
	"relove-be/internal/tax"
	"relove-be/internal/utils"

	"go.uber.org/zap"
)

// Resolver turns a raw cart into an authoritative server-side quote.
type Resolver interface {
	Resolve(ctx context.Context, input ResolveInput) (*Quote, []ResolvedLineItem, error)
	// Reprice recomputes shipping and tax for an existing order's locked
	// line items after a fulfillment or address change. Subtotal cannot
	// move: quantities and unit prices are frozen at order creation.
	Reprice(ctx context.Context, input RepriceInput) (*Quote, error)
}

type resolver struct {
	catalog catalog.Repository
	tax     tax.Calculator
}

func NewResolver(catalogRepo catalog.Repository, taxCalc tax.Calculator) Resolver {
	return &resolver{
		catalog: catalogRepo,
		tax:     taxCalc,
	}
}

// pickupFallbackAddress is used as the tax destination for pickup orders
// when the tenant has no head office configured on the gateway.
var pickupFallbackAddress = address.Address{
	Line1:      "123 Main St",
	City:       "Charleston",
	PostalCode: "29401",
	Country:    "US",
}

func (r *resolver) Resolve(ctx context.Context, input ResolveInput) (*Quote, []ResolvedLineItem, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Resolve"),
		zap.Int("item_count", len(input.Items)),
		zap.String("fulfillment", string(input.Fulfillment)),
	)

	if len(input.Items) == 0 {
		return nil, nil, ErrEmptyCart
	}

	productIDs := make([]string, 0, len(input.Items))
	seen := map[string]bool{}
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			log.Warn("invalid quantity",
				zap.String("variant_id", item.VariantID),
				zap.Int("quantity", item.Quantity),
			)
			return nil, nil, ErrInvalidQuantity
		}
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			productIDs = append(productIDs, item.ProductID)
		}
	}

	products, err := r.catalog.GetForCheckout(ctx, productIDs)
	if err != nil {
		log.Error("failed to fetch products for checkout", zap.Error(err))
		return nil, nil, err
	}

	productMap := make(map[string]*catalog.Product, len(products))
	tenants := map[string]bool{}
	for i := range products {
		productMap[products[i].ID] = &products[i]
		if products[i].TenantID != "" {
			tenants[products[i].TenantID] = true
		}
	}

	items := make([]ResolvedLineItem, 0, len(input.Items))
	var subtotal int64

	for _, item := range input.Items {
		product, ok := productMap[item.ProductID]
		if !ok {
			log.Warn("product not found", zap.String("product_id", item.ProductID))
			return nil, nil, ErrProductNotFound
		}

		variant := product.Variant(item.VariantID)
		if variant == nil {
			log.Warn("variant not found", zap.String("variant_id", item.VariantID))
			return nil, nil, ErrVariantNotFound
		}

		if variant.Stock < item.Quantity {
			log.Warn("insufficient stock at quote time",
				zap.String("variant_id", item.VariantID),
				zap.Int("stock", variant.Stock),
				zap.Int("requested", item.Quantity),
			)
			return nil, nil, ErrInsufficientStock
		}

		lineTotal := variant.PriceCents * int64(item.Quantity)
		subtotal += lineTotal

		items = append(items, ResolvedLineItem{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Quantity:       item.Quantity,
			UnitPriceCents: variant.PriceCents,
			UnitCostCents:  variant.CostCents,
			LineTotalCents: lineTotal,
			Category:       product.Category,
		})
	}

	// Checkout is single-tenant: one shipment, one payment account.
	if len(tenants) == 0 {
		return nil, nil, catalog.ErrTenantNotConfigured
	}
	if len(tenants) > 1 {
		return nil, nil, ErrMultiTenant
	}
	var tenantID string
	for id := range tenants {
		tenantID = id
	}

	quote, err := r.quoteFor(ctx, tenantID, subtotal, items, input.Fulfillment, input.ShippingAddress)
	if err != nil {
		return nil, nil, err
	}

	log.Info("cart resolved",
		zap.String("tenant_id", tenantID),
		zap.Int64("subtotal_cents", quote.SubtotalCents),
		zap.Int64("shipping_cents", quote.ShippingCents),
		zap.Int64("tax_cents", quote.TaxCents),
		zap.Int64("total_cents", quote.TotalCents),
	)

	return quote, items, nil
}

func (r *resolver) Reprice(ctx context.Context, input RepriceInput) (*Quote, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Reprice"),
		zap.String("tenant_id", input.TenantID),
		zap.String("fulfillment", string(input.Fulfillment)),
	)

	if len(input.Items) == 0 {
		return nil, ErrEmptyCart
	}

	productIDs := make([]string, 0, len(input.Items))
	seen := map[string]bool{}
	for _, item := range input.Items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			productIDs = append(productIDs, item.ProductID)
		}
	}

	// Categories are re-fetched only to derive shipping defaults and tax
	// codes; locked prices are used as-is.
	products, err := r.catalog.GetForCheckout(ctx, productIDs)
	if err != nil {
		log.Error("failed to fetch products for reprice", zap.Error(err))
		return nil, err
	}
	categories := make(map[string]string, len(products))
	for _, p := range products {
		categories[p.ID] = p.Category
	}

	items := make([]ResolvedLineItem, 0, len(input.Items))
	var subtotal int64
	for _, item := range input.Items {
		category, ok := categories[item.ProductID]
		if !ok {
			category = "other"
		}
		lineTotal := item.UnitPriceCents * int64(item.Quantity)
		subtotal += lineTotal
		items = append(items, ResolvedLineItem{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			UnitCostCents:  item.UnitCostCents,
			LineTotalCents: lineTotal,
			Category:       category,
		})
	}

	return r.quoteFor(ctx, input.TenantID, subtotal, items, input.Fulfillment, input.ShippingAddress)
}

func (r *resolver) quoteFor(
	ctx context.Context,
	tenantID string,
	subtotal int64,
	items []ResolvedLineItem,
	fulfillment Fulfillment,
	shippingAddress *address.Address,
) (*Quote, error) {

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("tenant_id", tenantID),
	)

	stripeAccountID, err := r.catalog.GetStripeAccountForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	shipping, err := r.shippingFor(ctx, tenantID, items, fulfillment)
	if err != nil {
		return nil, err
	}

	settings, err := r.catalog.GetTaxSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	destinationState := r.destinationState(settings, fulfillment, shippingAddress)

	registered := false
	if settings.Enabled && destinationState != "" {
		registrations, err := r.catalog.GetActiveRegistrations(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		registered = registrations[destinationState]
	}

	quote := &Quote{
		SubtotalCents:   subtotal,
		ShippingCents:   shipping,
		TenantID:        tenantID,
		StripeAccountID: stripeAccountID,
	}
	if destinationState != "" {
		quote.DestinationState = utils.StrPtr(destinationState)
	}

	if !settings.Enabled || !registered {
		// Do-not-collect-where-unregistered policy: skip the gateway and
		// charge zero tax, but leave a trace for reconciliation.
		log.Info("tax skipped",
			zap.Bool("tax_enabled", settings.Enabled),
			zap.String("destination_state", destinationState),
			zap.Bool("registered", registered),
		)
		quote.TotalCents = subtotal + shipping
		return quote, nil
	}

	destination := r.taxDestination(ctx, settings, fulfillment, shippingAddress, stripeAccountID)
	if destination == nil {
		quote.TotalCents = subtotal + shipping
		return quote, nil
	}

	lines := make([]tax.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, tax.Line{
			AmountCents: item.UnitPriceCents,
			Quantity:    item.Quantity,
			Reference:   item.ProductID,
			TaxCode:     tax.CodeForCategory(item.Category, settings.CodeOverrides),
		})
	}

	calc, err := r.tax.Calculate(ctx, tax.CalculationInput{
		Currency:        "usd",
		StripeAccountID: stripeAccountID,
		Destination:     destination,
		Lines:           lines,
		ShippingCents:   shipping,
	})
	if err != nil {
		log.Error("tax calculation failed", zap.Error(err))
		return nil, err
	}

	quote.TaxCents = calc.TaxAmountCents
	if calc.CalculationID != "" {
		quote.TaxCalculationID = utils.StrPtr(calc.CalculationID)
	}
	quote.TotalCents = subtotal + shipping + quote.TaxCents

	return quote, nil
}

// shippingFor applies the flat-rate-per-shipment policy: the order ships
// as one parcel, so the highest per-category default wins, not the sum.
func (r *resolver) shippingFor(
	ctx context.Context,
	tenantID string,
	items []ResolvedLineItem,
	fulfillment Fulfillment,
) (int64, error) {

	if fulfillment != FulfillmentShip {
		return 0, nil
	}

	categories := make([]string, 0, len(items))
	seen := map[string]bool{}
	for _, item := range items {
		if !seen[item.Category] {
			seen[item.Category] = true
			categories = append(categories, item.Category)
		}
	}

	defaults, err := r.catalog.GetShippingDefaults(ctx, tenantID, categories)
	if err != nil {
		return 0, err
	}

	var shipping int64
	for _, category := range categories {
		if cents := defaults[category]; cents > shipping {
			shipping = cents
		}
	}

	return shipping, nil
}

func (r *resolver) destinationState(
	settings *catalog.TaxSettings,
	fulfillment Fulfillment,
	shippingAddress *address.Address,
) string {

	if fulfillment == FulfillmentPickup {
		return settings.HomeState
	}
	if shippingAddress != nil {
		return utils.NormalizeState(shippingAddress.State)
	}
	return ""
}

func (r *resolver) taxDestination(
	ctx context.Context,
	settings *catalog.TaxSettings,
	fulfillment Fulfillment,
	shippingAddress *address.Address,
	stripeAccountID string,
) *tax.Address {

	if fulfillment == FulfillmentShip {
		if !shippingAddress.Complete() {
			return nil
		}
		return &tax.Address{
			Line1:      shippingAddress.Line1,
			Line2:      shippingAddress.Line2,
			City:       shippingAddress.City,
			State:      utils.NormalizeState(shippingAddress.State),
			PostalCode: shippingAddress.PostalCode,
			Country:    shippingAddress.Country,
		}
	}

	// Pickup is taxed at the seller's location.
	if office, err := r.tax.HeadOfficeAddress(ctx, stripeAccountID); err == nil && office != nil {
		return office
	}

	fallback := pickupFallbackAddress
	fallback.State = settings.HomeState
	return &tax.Address{
		Line1:      fallback.Line1,
		City:       fallback.City,
		State:      fallback.State,
		PostalCode: fallback.PostalCode,
		Country:    fallback.Country,
	}
}
