package session_test

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/idphub/identity-gateway/session"
)

func TestHMACSigner(t *testing.T) {
	signer := session.NewHMACSigner("test-secret")

	t.Run("signs and verifies with the shared secret", func(t *testing.T) {
		raw, err := signer.Sign(jwtlib.MapClaims{
			"sub": "jane@example.com",
			"exp": time.Now().Add(time.Minute).Unix(),
		})
		require.NoError(t, err)

		token, err := jwtlib.Parse(raw, signer.GetVerificationKey, jwtlib.WithValidMethods([]string{"HS256"}))
		require.NoError(t, err)
		require.True(t, token.Valid)
	})

	t.Run("rejects non-HMAC signing methods", func(t *testing.T) {
		token := jwtlib.New(jwtlib.SigningMethodRS256)
		_, err := signer.GetVerificationKey(token)
		require.Error(t, err)
	})
}
