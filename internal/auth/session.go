package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidSession = errors.New("invalid session token")

const RoleAdmin = "admin"

type SessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func (c *SessionClaims) UserID() string {
	return c.Subject
}

// SessionVerifier checks the HS256 session JWTs minted by the identity
// service.
type SessionVerifier struct {
	key []byte
}

func NewSessionVerifier(key string) *SessionVerifier {
	return &SessionVerifier{key: []byte(key)}
}

func (v *SessionVerifier) Verify(token string) (*SessionClaims, error) {
	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSession
		}
		return v.key, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidSession
	}
	return &claims, nil
}
