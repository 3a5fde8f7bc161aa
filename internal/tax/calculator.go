package tax

import "context"

// Address is the tax destination in the gateway's shape.
type Address struct {
	Line1      string
	Line2      *string
	City       string
	State      string
	PostalCode string
	Country    string
}

type Line struct {
	AmountCents int64
	Quantity    int
	Reference   string
	TaxCode     string
}

type CalculationInput struct {
	Currency        string
	StripeAccountID string
	Destination     *Address
	Lines           []Line
	ShippingCents   int64
}

type Calculation struct {
	TaxAmountCents int64
	CalculationID  string
}

// Calculator computes sales tax for a priced cart. Callers only invoke it
// when the tenant is registered to collect in the destination state; the
// unregistered case is zero tax by policy and never reaches the gateway.
type Calculator interface {
	Calculate(ctx context.Context, input CalculationInput) (*Calculation, error)
	HeadOfficeAddress(ctx context.Context, stripeAccountID string) (*Address, error)
}
