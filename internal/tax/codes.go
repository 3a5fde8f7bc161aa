package tax

import "strings"

// Gateway tax codes per product category. txcd_99999999 is the general
// tangible-goods fallback.
const DefaultTaxCode = "txcd_99999999"

var categoryTaxCodes = map[string]string{
	"clothing":    "txcd_30011000",
	"shoes":       "txcd_30021000",
	"accessories": "txcd_99999999",
	"bags":        "txcd_99999999",
	"jewelry":     "txcd_99999999",
}

// CodeForCategory resolves a category to a tax code, tenant overrides first.
func CodeForCategory(category string, overrides map[string]string) string {
	key := strings.ToLower(strings.TrimSpace(category))

	if code, ok := overrides[key]; ok && strings.TrimSpace(code) != "" {
		return strings.TrimSpace(code)
	}
	if code, ok := categoryTaxCodes[key]; ok {
		return code
	}
	return DefaultTaxCode
}
