package jose

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// CompactJWT is an unverified, structurally parsed JWT: the decoded header
// and payload plus the original compact serialization. The core never
// checks the signature itself — that is always delegated to the
// verifyJwt callback (see pkg/callback) — but it does need to read the
// header and claims to dispatch and validate before calling out.
type CompactJWT struct {
	Header  map[string]any
	Payload map[string]any
	Compact string
}

// DecodeCompact splits a compact JWT into its three dot-separated parts and
// JSON-decodes the header and payload segments, without touching the
// signature segment or checking it in any way.
func DecodeCompact(compact string) (*CompactJWT, error) {
	parts := strings.Split(compact, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("jose: malformed compact jwt: expected 3 segments, got %d", len(parts))
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("jose: invalid header encoding: %w", err)
	}
	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("jose: invalid payload encoding: %w", err)
	}

	header := map[string]any{}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("jose: invalid header json: %w", err)
	}
	payload := map[string]any{}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("jose: invalid payload json: %w", err)
	}

	return &CompactJWT{Header: header, Payload: payload, Compact: compact}, nil
}

// MakeJWT creates a signed JWT with the given header, body, signing method, and key.
// The header parameter is merged with default headers set by the signing method.
func MakeJWT(header, body jwt.MapClaims, signingMethod jwt.SigningMethod, signingKey any) (string, error) {
	token := jwt.NewWithClaims(signingMethod, body)

	// Merge provided header fields with defaults (provided values override defaults)
	maps.Copy(token.Header, header)

	signedToken, err := token.SignedString(signingKey)
	if err != nil {
		return "", err
	}

	return signedToken, nil
}

// GetSigningMethodFromKey determines the JWT signing method from the private key type
func GetSigningMethodFromKey(privateKey any) jwt.SigningMethod {
	// Check if the key is RSA
	if rsaKey, ok := privateKey.(*rsa.PrivateKey); ok {
		// Determine RSA algorithm based on key size
		keySize := rsaKey.N.BitLen()
		switch {
		case keySize >= 4096:
			return jwt.SigningMethodRS512
		case keySize >= 3072:
			return jwt.SigningMethodRS384
		default:
			return jwt.SigningMethodRS256
		}
	}

	// Check if the key is ECDSA
	if ecKey, ok := privateKey.(*ecdsa.PrivateKey); ok {
		// Determine algorithm based on the curve of the ECDSA key
		switch ecKey.Curve.Params().Name {
		case "P-256":
			return jwt.SigningMethodES256
		case "P-384":
			return jwt.SigningMethodES384
		case "P-521":
			return jwt.SigningMethodES512
		default:
			// Default to ES256 for unknown curves
			return jwt.SigningMethodES256
		}
	}

	// Default to RS256 if key type is unknown
	return jwt.SigningMethodRS256
}
