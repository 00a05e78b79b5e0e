package oauth2

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"testing"
	"time"

	"vc/pkg/callback"
	"vc/pkg/jose"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDPoPCallbacks builds a minimal Hash/GenerateRandom/SignJWT/VerifyJWT
// set backed by a fresh in-memory ECDSA P-256 key, the way an implementer
// would wire pkg/callback for real in cmd/issuerserver or cmd/walletclient.
func mockDPoPCallbacks(t *testing.T) (*callback.Callbacks, *jose.JWK) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	pub := &jose.JWK{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(priv.X.Bytes()),
		Y:   base64.RawURLEncoding.EncodeToString(priv.Y.Bytes()),
	}

	cb := &callback.Callbacks{
		Hash: func(ctx context.Context, data []byte, alg callback.HashAlg) ([]byte, error) {
			switch alg {
			case callback.HashSHA384:
				sum := sha512.Sum384(data)
				return sum[:], nil
			case callback.HashSHA512:
				sum := sha512.Sum512(data)
				return sum[:], nil
			default:
				sum := sha256.Sum256(data)
				return sum[:], nil
			}
		},
		GenerateRandom: func(ctx context.Context, n int) ([]byte, error) {
			b := make([]byte, n)
			_, err := rand.Read(b)
			return b, err
		},
		SignJWT: func(ctx context.Context, req callback.SignRequest) (string, error) {
			token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims(req.Payload))
			for k, v := range req.Header {
				token.Header[k] = v
			}
			token.Header["alg"] = "ES256"
			return token.SignedString(priv)
		},
		VerifyJWT: func(ctx context.Context, req callback.VerifyRequest) (callback.VerifyResult, error) {
			_, err := jwt.Parse(req.Compact, func(t *jwt.Token) (any, error) {
				return &priv.PublicKey, nil
			})
			if err != nil {
				return callback.VerifyResult{Valid: false}, nil
			}
			return callback.VerifyResult{Valid: true, SignerJWK: pub}, nil
		},
	}

	return cb, pub
}

func TestCreateAndVerifyDPoPProof(t *testing.T) {
	ctx := context.Background()
	cb, pub := mockDPoPCallbacks(t)

	proof, err := CreateDPoPProof(ctx, cb, CreateDPoPProofRequest{
		Signer: callback.Signer{PublicJWK: pub, Alg: "ES256"},
		HTM:    "post",
		HTU:    "https://as.example/token?x=1#frag",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, proof)

	result, err := VerifyDPoPProof(ctx, cb, VerifyDPoPProofRequest{
		Proof: proof,
		HTM:   "POST",
		HTU:   "https://AS.example/token",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.JWKThumbprint)
	assert.NotEmpty(t, result.JTI)
}

func TestVerifyDPoPProofRejectsHTMMismatch(t *testing.T) {
	ctx := context.Background()
	cb, pub := mockDPoPCallbacks(t)

	proof, err := CreateDPoPProof(ctx, cb, CreateDPoPProofRequest{
		Signer: callback.Signer{PublicJWK: pub, Alg: "ES256"},
		HTM:    "POST",
		HTU:    "https://as.example/token",
	})
	require.NoError(t, err)

	_, err = VerifyDPoPProof(ctx, cb, VerifyDPoPProofRequest{
		Proof: proof,
		HTM:   "GET",
		HTU:   "https://as.example/token",
	})
	assert.ErrorIs(t, err, ErrInvalidDPoPProof)
}

func TestVerifyDPoPProofRejectsExpiredIat(t *testing.T) {
	ctx := context.Background()
	cb, pub := mockDPoPCallbacks(t)

	proof, err := CreateDPoPProof(ctx, cb, CreateDPoPProofRequest{
		Signer: callback.Signer{PublicJWK: pub, Alg: "ES256"},
		HTM:    "POST",
		HTU:    "https://as.example/token",
	})
	require.NoError(t, err)

	_, err = VerifyDPoPProof(ctx, cb, VerifyDPoPProofRequest{
		Proof:     proof,
		HTM:       "POST",
		HTU:       "https://as.example/token",
		ClockSkew: -1 * time.Hour, // force the iat to always fall outside the window
	})
	assert.ErrorIs(t, err, ErrInvalidDPoPProof)
}

func TestVerifyDPoPProofRequiresNonce(t *testing.T) {
	ctx := context.Background()
	cb, pub := mockDPoPCallbacks(t)

	proof, err := CreateDPoPProof(ctx, cb, CreateDPoPProofRequest{
		Signer: callback.Signer{PublicJWK: pub, Alg: "ES256"},
		HTM:    "POST",
		HTU:    "https://as.example/token",
	})
	require.NoError(t, err)

	_, err = VerifyDPoPProof(ctx, cb, VerifyDPoPProofRequest{
		Proof:         proof,
		HTM:           "POST",
		HTU:           "https://as.example/token",
		RequiredNonce: "N1",
	})
	assert.ErrorIs(t, err, ErrDPoPUseNonce)

	proofWithNonce, err := CreateDPoPProof(ctx, cb, CreateDPoPProofRequest{
		Signer: callback.Signer{PublicJWK: pub, Alg: "ES256"},
		HTM:    "POST",
		HTU:    "https://as.example/token",
		Nonce:  "N1",
	})
	require.NoError(t, err)

	result, err := VerifyDPoPProof(ctx, cb, VerifyDPoPProofRequest{
		Proof:         proofWithNonce,
		HTM:           "POST",
		HTU:           "https://as.example/token",
		RequiredNonce: "N1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.JWKThumbprint)
}

func TestVerifyDPoPProofChecksAccessTokenHash(t *testing.T) {
	ctx := context.Background()
	cb, pub := mockDPoPCallbacks(t)

	proof, err := CreateDPoPProof(ctx, cb, CreateDPoPProofRequest{
		Signer:      callback.Signer{PublicJWK: pub, Alg: "ES256"},
		HTM:         "GET",
		HTU:         "https://rs.example/credential",
		AccessToken: "T",
	})
	require.NoError(t, err)

	_, err = VerifyDPoPProof(ctx, cb, VerifyDPoPProofRequest{
		Proof:       proof,
		HTM:         "GET",
		HTU:         "https://rs.example/credential",
		AccessToken: "T",
	})
	assert.NoError(t, err)

	_, err = VerifyDPoPProof(ctx, cb, VerifyDPoPProofRequest{
		Proof:       proof,
		HTM:         "GET",
		HTU:         "https://rs.example/credential",
		AccessToken: "wrong-token",
	})
	assert.ErrorIs(t, err, ErrInvalidDPoPProof)
}

func TestCanonicalizeHTU(t *testing.T) {
	got, err := CanonicalizeHTU("HTTPS://AS.Example.com/Token?a=1#frag")
	require.NoError(t, err)
	assert.Equal(t, "https://as.example.com/Token", got)
}
