package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/amirhosseinghanipour/erasure/internal/domain/errors"
)

func sign(t *testing.T, key *rsa.PrivateKey, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestJWTVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewJWTVerifier(&key.PublicKey, "https://id.example.com", "erasure")

	registered := func(sub string, exp time.Duration) jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Issuer:    "https://id.example.com",
			Audience:  jwt.ClaimStrings{"erasure"},
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(exp)),
		}
	}

	t.Run("subject", func(t *testing.T) {
		uid, err := v.Verify(context.Background(), sign(t, key, jwt.SigningMethodRS256, registered("u1", time.Hour)))
		require.NoError(t, err)
		assert.Equal(t, "u1", uid)
	})

	t.Run("user_id claim wins", func(t *testing.T) {
		tok := sign(t, key, jwt.SigningMethodRS256, accessClaims{RegisteredClaims: registered("sub", time.Hour), UserID: "u2"})
		uid, err := v.Verify(context.Background(), tok)
		require.NoError(t, err)
		assert.Equal(t, "u2", uid)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := v.Verify(context.Background(), sign(t, key, jwt.SigningMethodRS256, registered("u1", -time.Minute)))
		assert.ErrorIs(t, err, domerrors.ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := registered("u1", time.Hour)
		c.Audience = jwt.ClaimStrings{"other"}
		_, err := v.Verify(context.Background(), sign(t, key, jwt.SigningMethodRS256, c))
		assert.ErrorIs(t, err, domerrors.ErrInvalidToken)
	})

	t.Run("other key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		_, err = v.Verify(context.Background(), sign(t, other, jwt.SigningMethodRS256, registered("u1", time.Hour)))
		assert.ErrorIs(t, err, domerrors.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "not-a-token")
		assert.ErrorIs(t, err, domerrors.ErrInvalidToken)
	})
}

func TestLoadRSAPublicKeyFromPEM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pkix, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pub, err := LoadRSAPublicKeyFromPEM(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkix}))
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))

	priv := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pub, err = LoadRSAPublicKeyFromPEM(priv)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))

	_, err = LoadRSAPublicKeyFromPEM([]byte("nope"))
	assert.Error(t, err)
}
