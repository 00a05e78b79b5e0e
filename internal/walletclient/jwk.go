package walletclient

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	"vc/pkg/jose"
)

// decodeHeaderJWK re-marshals a JOSE header's already-json.Unmarshal'd "jwk"
// member back into JSON so it can go through jose.ParseJWK, the same
// pattern internal/issuerserver/apiv1's helper of the same name uses.
func decodeHeaderJWK(raw any) (*jose.JWK, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("walletclient: malformed jwk header: %w", err)
	}
	return jose.ParseJWK(data)
}

// publicKeyFromJWK reconstructs a crypto.PublicKey from the subset of RFC
// 7517 members pkg/jose.JWK carries.
func publicKeyFromJWK(k *jose.JWK) (any, error) {
	switch k.Kty {
	case "RSA":
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, fmt.Errorf("walletclient: invalid jwk n: %w", err)
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, fmt.Errorf("walletclient: invalid jwk e: %w", err)
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}, nil

	case "EC":
		var curve elliptic.Curve
		switch k.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		case "P-521":
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("walletclient: unsupported jwk crv %q", k.Crv)
		}
		x, err := base64.RawURLEncoding.DecodeString(k.X)
		if err != nil {
			return nil, fmt.Errorf("walletclient: invalid jwk x: %w", err)
		}
		y, err := base64.RawURLEncoding.DecodeString(k.Y)
		if err != nil {
			return nil, fmt.Errorf("walletclient: invalid jwk y: %w", err)
		}
		return &ecdsa.PublicKey{Curve: curve, X: new(big.Int).SetBytes(x), Y: new(big.Int).SetBytes(y)}, nil

	default:
		return nil, fmt.Errorf("walletclient: unsupported jwk kty %q", k.Kty)
	}
}
