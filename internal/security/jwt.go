package security

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuthenticationProvider validates bearer tokens signed with a shared
// HMAC secret, producing a Principal from the token's subject and claims.
type JWTAuthenticationProvider struct {
	secret []byte
}

func NewJWTAuthenticationProvider(secret []byte) *JWTAuthenticationProvider {
	return &JWTAuthenticationProvider{secret: secret}
}

func (p *JWTAuthenticationProvider) Scheme() string { return "Bearer" }

func (p *JWTAuthenticationProvider) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("authenticate: %w", err)
	}
	if !parsed.Valid {
		return Principal{}, fmt.Errorf("authenticate: invalid token")
	}

	subject, _ := claims.GetSubject()
	return Principal{Subject: subject, Claims: claims}, nil
}
