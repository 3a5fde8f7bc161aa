package address

// Address is a shipping destination. Name/Phone are only present on
// checkout-captured addresses, never required for tax calculation.
type Address struct {
	Name       *string
	Phone      *string
	Line1      string
	Line2      *string
	City       string
	State      string
	PostalCode string
	Country    string
}

func (a *Address) Complete() bool {
	return a != nil &&
		a.Line1 != "" &&
		a.City != "" &&
		a.State != "" &&
		a.PostalCode != "" &&
		a.Country != ""
}
