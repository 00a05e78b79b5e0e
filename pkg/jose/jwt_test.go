package jose

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeJWT(t *testing.T) {
	t.Run("creates signed JWT with EC key", func(t *testing.T) {
		ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)

		header := jwt.MapClaims{
			"alg": "ES256",
			"typ": "openid4vci-proof+jwt",
			"kid": "key-1",
		}
		body := jwt.MapClaims{
			"iss":   "joe",
			"aud":   "https://example.com",
			"iat":   1300819380,
			"nonce": "n-0S6_WzA2Mj",
		}

		signedToken, err := MakeJWT(header, body, jwt.SigningMethodES256, ecKey)
		require.NoError(t, err)
		assert.NotEmpty(t, signedToken)

		token, err := jwt.Parse(signedToken, func(token *jwt.Token) (interface{}, error) {
			return &ecKey.PublicKey, nil
		})
		require.NoError(t, err)
		assert.True(t, token.Valid)
	})

	t.Run("returns error for nil key", func(t *testing.T) {
		header := jwt.MapClaims{"alg": "ES256"}
		body := jwt.MapClaims{"iss": "test"}

		_, err := MakeJWT(header, body, jwt.SigningMethodES256, nil)
		assert.Error(t, err)
	})
}

func TestGetSigningMethodFromKey(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	assert.Equal(t, jwt.SigningMethodES256, GetSigningMethodFromKey(ecKey))
	assert.Equal(t, jwt.SigningMethodRS256, GetSigningMethodFromKey("not-a-key"))
}

func TestDecodeCompact(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	signed, err := MakeJWT(
		jwt.MapClaims{"alg": "ES256", "typ": "openid4vci-proof+jwt"},
		jwt.MapClaims{"aud": "https://issuer.example", "nonce": "abc"},
		jwt.SigningMethodES256,
		ecKey,
	)
	require.NoError(t, err)

	decoded, err := DecodeCompact(signed)
	require.NoError(t, err)
	assert.Equal(t, "openid4vci-proof+jwt", decoded.Header["typ"])
	assert.Equal(t, "https://issuer.example", decoded.Payload["aud"])
	assert.Equal(t, signed, decoded.Compact)

	_, err = DecodeCompact("not.a.valid.jwt")
	assert.Error(t, err)

	_, err = DecodeCompact("onlyonepart")
	assert.Error(t, err)
}
