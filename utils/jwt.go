package utils

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oksnap/oksnap/config"
)

// Claims carries the authenticated account identity issued by the login
// frontend. User IDs are opaque strings (external auth provider subjects).
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// ParseToken validates a JWT and returns its claims. Token auth is optional
// for this service; callers without a configured secret never reach this.
func ParseToken(tokenStr string) (*Claims, error) {
	cfg := config.Get()
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret not configured")
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
