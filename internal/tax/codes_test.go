package tax

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeForCategory(t *testing.T) {
	t.Run("KnownCategory", func(t *testing.T) {
		assert.Equal(t, "txcd_30011000", CodeForCategory("clothing", nil))
		assert.Equal(t, "txcd_30021000", CodeForCategory("Shoes", nil))
	})

	t.Run("UnknownFallsBack", func(t *testing.T) {
		assert.Equal(t, DefaultTaxCode, CodeForCategory("furniture", nil))
		assert.Equal(t, DefaultTaxCode, CodeForCategory("", nil))
	})

	t.Run("OverrideWins", func(t *testing.T) {
		overrides := map[string]string{"clothing": "txcd_custom"}
		assert.Equal(t, "txcd_custom", CodeForCategory("clothing", overrides))
	})

	t.Run("BlankOverrideIgnored", func(t *testing.T) {
		overrides := map[string]string{"clothing": "  "}
		assert.Equal(t, "txcd_30011000", CodeForCategory("clothing", overrides))
	})
}
