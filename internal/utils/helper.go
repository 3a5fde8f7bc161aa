package utils

import (
	"encoding/json"
	"net/http"
	"strings"
)

func StrPtr(s string) *string {
	return &s
}

func PtrString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NormalizeState uppercases and trims a state/jurisdiction code.
func NormalizeState(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func WriteJSONError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
