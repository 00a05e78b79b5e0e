package apiv1

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
// member (an any produced by encoding/json, typically map[string]any) back
// into JSON so it can go through the same jose.ParseJWK path used elsewhere,
// deriving a local JWK value from whatever the wire handed over.
func decodeHeaderJWK(raw any) (*jose.JWK, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("apiv1: malformed jwk header: %w", err)
	}
	return jose.ParseJWK(data)
}

// ecdsaPublicKeyFromJWK reconstructs a crypto/ecdsa public key from the
// subset of RFC 7517 members pkg/jose.JWK carries, so golang-jwt has
// something to verify against for a DPoP-proof or proof-of-possession JWT
// whose signer is named by an embedded "jwk" header rather than by this
// process's own key.
func ecdsaPublicKeyFromJWK(k *jose.JWK) (*ecdsa.PublicKey, error) {
	if k.Kty != "EC" {
		return nil, fmt.Errorf("apiv1: unsupported jwk kty %q for verification", k.Kty)
	}

	var curve elliptic.Curve
	switch k.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("apiv1: unsupported jwk crv %q", k.Crv)
	}

	x, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, fmt.Errorf("apiv1: invalid jwk x: %w", err)
	}
	y, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, fmt.Errorf("apiv1: invalid jwk y: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}, nil
}

// publicKeyFromJWK dispatches to the EC/RSA reconstruction helper by kty,
// for callers (e.g. the credential endpoint's proof-of-possession check)
// that just need a crypto.PublicKey and don't care which concrete type it is.
func publicKeyFromJWK(k *jose.JWK) (any, error) {
	switch k.Kty {
	case "RSA":
		return rsaPublicKeyFromJWK(k)
	case "EC":
		return ecdsaPublicKeyFromJWK(k)
	default:
		return nil, fmt.Errorf("apiv1: unsupported jwk kty %q for proof-of-possession", k.Kty)
	}
}

// rsaPublicKeyFromJWK reconstructs a crypto/rsa public key for the RSA
// counterpart of ecdsaPublicKeyFromJWK.
func rsaPublicKeyFromJWK(k *jose.JWK) (*rsa.PublicKey, error) {
	if k.Kty != "RSA" {
		return nil, fmt.Errorf("apiv1: unsupported jwk kty %q for verification", k.Kty)
	}

	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("apiv1: invalid jwk n: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("apiv1: invalid jwk e: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(new(big.Int).SetBytes(e).Int64()),
	}, nil
}
