package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Guest checkouts have no account, so order-status links carry a signed
// token scoped to a single order instead of a session.

const orderTokenTTL = 30 * 24 * time.Hour

var ErrInvalidOrderToken = errors.New("invalid order token")

type OrderTokenIssuer struct {
	key []byte
}

func NewOrderTokenIssuer(key string) *OrderTokenIssuer {
	return &OrderTokenIssuer{key: []byte(key)}
}

type orderClaims struct {
	OrderID string `json:"order_id"`
	jwt.RegisteredClaims
}

func (i *OrderTokenIssuer) Issue(orderID uuid.UUID) (string, error) {
	now := time.Now()
	claims := orderClaims{
		OrderID: orderID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   orderID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(orderTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}

// Verify returns the order id the token grants access to.
func (i *OrderTokenIssuer) Verify(token string) (uuid.UUID, error) {
	var claims orderClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidOrderToken
		}
		return i.key, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, ErrInvalidOrderToken
	}

	id, err := uuid.Parse(claims.OrderID)
	if err != nil {
		return uuid.Nil, ErrInvalidOrderToken
	}
	return id, nil
}

func ExtractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie("access_token"); err == nil {
		if cookie.Value != "" {
			return cookie.Value
		}
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
