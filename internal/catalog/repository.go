package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"relove-be/internal/logger"
	"relove-be/internal/utils"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Repository is the read-only lookup surface checkout prices against.
// Writes to the catalog happen elsewhere; checkout only reads.
type Repository interface {
	GetForCheckout(ctx context.Context, productIDs []string) ([]Product, error)
	GetShippingDefaults(ctx context.Context, tenantID string, categories []string) (map[string]int64, error)
	GetTaxSettings(ctx context.Context, tenantID string) (*TaxSettings, error)
	GetActiveRegistrations(ctx context.Context, tenantID string) (map[string]bool, error)
	GetStripeAccountForTenant(ctx context.Context, tenantID string) (string, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetForCheckout(
	ctx context.Context,
	productIDs []string,
) ([]Product, error) {

	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Catalog"),
		zap.String("method", "GetForCheckout"),
		zap.Int("product_count", len(productIDs)),
	)

	const q = `
		SELECT
			p.id, p.tenant_id, p.category,
			v.id, v.price_cents, v.cost_cents, v.stock
		FROM products p
		JOIN variants v ON v.product_id = p.id
		WHERE p.id = ANY($1)
		ORDER BY p.id, v.id
	`

	rows, err := r.db.QueryContext(ctx, q, pq.Array(productIDs))
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var products []Product
	index := map[string]int{}

	for rows.Next() {
		var (
			pid, tenantID, category string
			v                       Variant
		)
		if err := rows.Scan(&pid, &tenantID, &category, &v.ID, &v.PriceCents, &v.CostCents, &v.Stock); err != nil {
			log.Error("scan failed", zap.Error(err))
			return nil, err
		}
		v.ProductID = pid

		i, ok := index[pid]
		if !ok {
			products = append(products, Product{ID: pid, TenantID: tenantID, Category: category})
			i = len(products) - 1
			index[pid] = i
		}
		products[i].Variants = append(products[i].Variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *repository) GetShippingDefaults(
	ctx context.Context,
	tenantID string,
	categories []string,
) (map[string]int64, error) {

	const q = `
		SELECT category, shipping_cost_cents
		FROM shipping_defaults
		WHERE tenant_id = $1 AND category = ANY($2)
	`

	rows, err := r.db.QueryContext(ctx, q, tenantID, pq.Array(categories))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defaults := make(map[string]int64, len(categories))
	for rows.Next() {
		var (
			category string
			cents    int64
		)
		if err := rows.Scan(&category, &cents); err != nil {
			return nil, err
		}
		defaults[category] = cents
	}

	return defaults, rows.Err()
}

// GetTaxSettings returns the tenant's tax configuration. A tenant that
// never touched tax settings gets the disabled defaults.
func (r *repository) GetTaxSettings(
	ctx context.Context,
	tenantID string,
) (*TaxSettings, error) {

	const q = `
		SELECT tax_enabled, home_state, tax_code_overrides
		FROM tax_settings
		WHERE tenant_id = $1
	`

	var (
		s        TaxSettings
		rawCodes []byte
	)
	err := r.db.QueryRowContext(ctx, q, tenantID).
		Scan(&s.Enabled, &s.HomeState, &rawCodes)

	if errors.Is(err, sql.ErrNoRows) {
		return &TaxSettings{Enabled: false, HomeState: "SC"}, nil
	}
	if err != nil {
		return nil, err
	}

	s.HomeState = utils.NormalizeState(s.HomeState)
	if s.HomeState == "" {
		s.HomeState = "SC"
	}

	if len(rawCodes) > 0 {
		if err := json.Unmarshal(rawCodes, &s.CodeOverrides); err != nil {
			logger.FromCtx(ctx).Warn("invalid tax_code_overrides json, ignoring",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
			s.CodeOverrides = nil
		}
	}

	return &s, nil
}

func (r *repository) GetActiveRegistrations(
	ctx context.Context,
	tenantID string,
) (map[string]bool, error) {

	const q = `
		SELECT state_code
		FROM tax_registrations
		WHERE tenant_id = $1 AND is_registered = true
	`

	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := map[string]bool{}
	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			return nil, err
		}
		states[utils.NormalizeState(state)] = true
	}

	return states, rows.Err()
}

func (r *repository) GetStripeAccountForTenant(
	ctx context.Context,
	tenantID string,
) (string, error) {

	const q = `SELECT stripe_account_id FROM tenants WHERE id = $1`

	var account sql.NullString
	err := r.db.QueryRowContext(ctx, q, tenantID).Scan(&account)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTenantNotConfigured
	}
	if err != nil {
		return "", err
	}
	if !account.Valid || account.String == "" {
		return "", ErrTenantNotConfigured
	}

	return account.String, nil
}
