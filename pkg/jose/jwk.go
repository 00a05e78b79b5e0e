package jose

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// JWK is the subset of RFC 7517 JSON Web Key members this library cares
// about. It is kept as a plain struct, rather than requiring callers to
// depend on a particular JWK library type, because the core treats keys as
// opaque data handed to and received from the signJwt/verifyJwt callbacks
// (see pkg/callback).
type JWK struct {
	Kty string `json:"kty" validate:"required"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
	D   string `json:"d,omitempty"`
	Kid string `json:"kid,omitempty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
}

// requiredMembersByKty lists the JWK members that participate in the RFC
// 7638 thumbprint computation.
var requiredMembersByKty = map[string][]string{
	"EC":  {"crv", "kty", "x", "y"},
	"RSA": {"e", "kty", "n"},
	"OKP": {"crv", "kty", "x"},
}

// Thumbprint computes the RFC 7638 JWK thumbprint: the base64url (no
// padding) encoding of a hash over the JSON object containing only the
// required members for the key's kty, ordered lexicographically by member
// name, with no insignificant whitespace.
func (k *JWK) Thumbprint(hashAlg string) (string, error) {
	members, ok := requiredMembersByKty[k.Kty]
	if !ok {
		return "", fmt.Errorf("jose: unsupported kty %q for thumbprint", k.Kty)
	}

	values := map[string]string{
		"crv": k.Crv,
		"kty": k.Kty,
		"x":   k.X,
		"y":   k.Y,
		"n":   k.N,
		"e":   k.E,
	}

	ordered := append([]string{}, members...)
	sort.Strings(ordered)

	buf := []byte("{")
	for i, m := range ordered {
		if i > 0 {
			buf = append(buf, ',')
		}
		v, err := json.Marshal(values[m])
		if err != nil {
			return "", err
		}
		buf = append(buf, []byte(fmt.Sprintf("%q:", m))...)
		buf = append(buf, v...)
	}
	buf = append(buf, '}')

	var sum []byte
	switch hashAlg {
	case "", "sha-256":
		s := sha256.Sum256(buf)
		sum = s[:]
	case "sha-384":
		s := sha512.Sum384(buf)
		sum = s[:]
	case "sha-512":
		s := sha512.Sum512(buf)
		sum = s[:]
	default:
		return "", fmt.Errorf("jose: unsupported hash algorithm %q", hashAlg)
	}

	return base64.RawURLEncoding.EncodeToString(sum), nil
}

// ParseJWK parses a JSON-encoded JWK, as found in a DPoP or proof-of-
// possession JWT header, into the local JWK representation. It delegates
// structural validation to lestrrat-go/jwx before mirroring the fields this
// package needs.
func ParseJWK(raw json.RawMessage) (*JWK, error) {
	if _, err := jwk.ParseKey(raw); err != nil {
		return nil, fmt.Errorf("jose: invalid jwk: %w", err)
	}

	out := &JWK{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("jose: invalid jwk: %w", err)
	}
	if out.Kty == "" {
		return nil, fmt.Errorf("jose: jwk missing kty")
	}

	return out, nil
}

// IsPublic reports whether the JWK carries no private key material. DPoP
// and proof-of-possession JWK headers must never embed a private key.
func (k *JWK) IsPublic() bool {
	return k.D == ""
}
