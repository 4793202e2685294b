package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"product-entitlements/internal/domain"
	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/domain/ports/adapter"
)

// ===== HMAC JWT verification =====

var _ adapter.TokenVerifier = (*JWTVerifier)(nil)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens and turns them into principals.
// The subject claim carries the user id.
type JWTVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, parser: jwt.NewParser(opts...)}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (*model.Principal, error) {
	if token == "" {
		return nil, domain.ErrMissingToken
	}
	claims := &Claims{}
	tkn, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, domain.ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, domain.ErrInvalidToken
	}
	return &model.Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

// Mint signs a token for userID. It backs the admin CLI and tests; end-user
// tokens are issued by the identity service.
func (v *JWTVerifier) Mint(userID, role string, ttl time.Duration) (string, error) {
	if userID == "" || ttl <= 0 {
		return "", errors.New("mint: user id and positive ttl required")
	}
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
