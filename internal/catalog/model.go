package catalog

type Variant struct {
	ID         string
	ProductID  string
	PriceCents int64
	CostCents  int64
	Stock      int
}

type Product struct {
	ID       string
	TenantID string
	Category string
	Variants []Variant
}

// Variant returns the variant with the given id, or nil.
func (p *Product) Variant(variantID string) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			return &p.Variants[i]
		}
	}
	return nil
}

// TaxSettings is the tenant's tax configuration. CodeOverrides maps a
// product category to a gateway tax code, overriding the built-in default.
type TaxSettings struct {
	Enabled       bool
	HomeState     string
	CodeOverrides map[string]string
}
