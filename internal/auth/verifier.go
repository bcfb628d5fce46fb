package auth

import (
	"fmt"

	"github.com/moodlink/realtime-service/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates the opaque credential token a client presents at
// connection time. Token issuance lives in the REST auth path; this side
// only checks it and extracts the user id.
type Verifier interface {
	Verify(token string) (int64, error)
}

type claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256-signed tokens against a shared secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(token string) (int64, error) {
	if token == "" {
		return 0, fmt.Errorf("%w: empty token", domain.ErrInvalidToken)
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.UserID <= 0 {
		return 0, fmt.Errorf("%w: missing user_id claim", domain.ErrInvalidToken)
	}
	return c.UserID, nil
}
