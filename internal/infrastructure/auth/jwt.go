package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	domerrors "github.com/amirhosseinghanipour/erasure/internal/domain/errors"
)

// JWTVerifier implements ports.TokenVerifier for RS256 tokens issued by a self-hosted identity service.
type JWTVerifier struct {
	publicKey *rsa.PublicKey
	issuer    string
	audience  string
}

type accessClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
}

func NewJWTVerifier(publicKey *rsa.PublicKey, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{publicKey: publicKey, issuer: issuer, audience: audience}
}

// Verify returns the user id from the user_id claim, falling back to sub.
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.publicKey, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domerrors.ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return "", domerrors.ErrInvalidToken
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", fmt.Errorf("%w: %v", domerrors.ErrInvalidToken, errors.New("no subject"))
	}
	return userID, nil
}

var _ ports.TokenVerifier = (*JWTVerifier)(nil)
