package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// CartEntry is the client-facing cart tuple used for fingerprinting.
type CartEntry struct {
	ProductID string
	VariantID string
	Quantity  int
}

// CartHash returns a deterministic fingerprint of cart contents plus the
// fulfillment mode. Item order in the input does not affect the result, so
// a retried request with a reordered cart still matches.
func CartHash(items []CartEntry, fulfillment string) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%s:%s:%d", it.ProductID, it.VariantID, it.Quantity))
	}
	sort.Strings(parts)

	sum := sha256.Sum256([]byte(strings.Join(parts, "|") + "|" + fulfillment))
	return hex.EncodeToString(sum[:])
}
