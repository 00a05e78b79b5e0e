package oauth2

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"vc/pkg/callback"
	"vc/pkg/jose"
)

// DPoPHeader is the JOSE header of a DPoP proof JWT (RFC 9449 §4.2).
type DPoPHeader struct {
	Typ string   `json:"typ" validate:"required,eq=dpop+jwt"`
	Alg string   `json:"alg" validate:"required"`
	JWK jose.JWK `json:"jwk" validate:"required"`
}

// DPoP is the payload of a DPoP proof JWT (RFC 9449 §4.2).
type DPoP struct {
	// JTI Unique identifier for the DPoP proof JWT. The value MUST be assigned such that there is a negligible probability that the same value will be assigned to any other DPoP proof used in the same context during the time window of validity. Such uniqueness can be accomplished by encoding (base64url or any other suitable encoding) at least 96 bits of pseudorandom data or by using a version 4 Universally Unique Identifier (UUID) string according to [RFC4122]. The jti can be used by the server for replay detection and prevention; see Section 11.1.
	JTI string `json:"jti" validate:"required"`

	//HTM The value of the HTTP method (Section 9.1 of [RFC9110]) of the request to which the JWT is attached.¶
	HTM string `json:"htm" validate:"required,oneof=POST GET PUT DELETE PATCH OPTIONS HEAD"`

	// HTU The HTTP target URI (Section 7.1 of [RFC9110]) of the request to which the JWT is attached, without query and fragment parts.¶
	HTU string `json:"htu" validate:"required,url"`

	// IAT Creation timestamp of the JWT (Section 4.1.6 of [RFC7519]).¶
	IAT int64 `json:"iat" validate:"required"`

	// Nonce is the server-issued DPoP nonce, present once the nonce-retry
	// handshake has completed at least once.
	Nonce string `json:"nonce,omitempty"`

	// ATH Hash of the access token. The value MUST be the result of a base64url encoding (as defined in Section 2 of [RFC7515]) the SHA-256 [SHS] hash of the ASCII encoding of the associated access token's value.¶
	ATH string `json:"ath,omitempty"`
}

// CreateDPoPProofRequest carries everything CreateDPoPProof needs to build
// one proof. AccessToken and Nonce are optional: AccessToken is only present
// on a resource request, Nonce only once the server has handed one out.
type CreateDPoPProofRequest struct {
	Signer      callback.Signer
	HTM         string
	HTU         string
	Nonce       string
	AccessToken string
}

// CanonicalizeHTU strips the query and fragment from a request URL and
// lowercases scheme and host; path case is preserved.
func CanonicalizeHTU(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("oauth2: invalid htu: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// CreateDPoPProof builds and signs a DPoP proof JWT.
func CreateDPoPProof(ctx context.Context, cb *callback.Callbacks, req CreateDPoPProofRequest) (string, error) {
	if cb == nil || cb.SignJWT == nil || cb.GenerateRandom == nil {
		return "", errors.New("oauth2: CreateDPoPProof requires SignJWT and GenerateRandom callbacks")
	}
	if req.Signer.PublicJWK == nil {
		return "", errors.New("oauth2: CreateDPoPProof requires a public JWK signer")
	}

	htu, err := CanonicalizeHTU(req.HTU)
	if err != nil {
		return "", err
	}

	jtiBytes, err := cb.GenerateRandom(ctx, 16)
	if err != nil {
		return "", fmt.Errorf("oauth2: generating dpop jti: %w", err)
	}

	header := map[string]any{
		"typ": "dpop+jwt",
		"jwk": req.Signer.PublicJWK,
	}

	payload := map[string]any{
		"jti": fmt.Sprintf("%x", jtiBytes),
		"htm": strings.ToUpper(req.HTM),
		"htu": htu,
		"iat": time.Now().Unix(),
	}
	if req.Nonce != "" {
		payload["nonce"] = req.Nonce
	}
	if req.AccessToken != "" {
		if cb.Hash == nil {
			return "", errors.New("oauth2: CreateDPoPProof requires a Hash callback when AccessToken is set")
		}
		ath, err := hashAccessTokenWith(ctx, cb, req.AccessToken)
		if err != nil {
			return "", err
		}
		payload["ath"] = ath
	}

	signer := req.Signer
	signer.Kind = callback.SignerJWK

	return cb.SignJWT(ctx, callback.SignRequest{Signer: signer, Header: header, Payload: payload})
}

func hashAccessTokenWith(ctx context.Context, cb *callback.Callbacks, token string) (string, error) {
	token = strings.TrimPrefix(token, "DPoP ")
	token = strings.TrimPrefix(token, "Bearer ")
	sum, err := cb.Hash(ctx, []byte(token), callback.HashSHA256)
	if err != nil {
		return "", fmt.Errorf("oauth2: hashing access token for ath: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}

// asInt64 converts a JSON-decoded numeric claim (float64 or json.Number) to int64.
func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("oauth2: not a number: %T", v)
	}
}

// VerifyDPoPProofRequest carries the contextual request data
// VerifyDPoPProof binds the proof to.
type VerifyDPoPProofRequest struct {
	Proof          string
	HTM            string
	HTU            string
	ClockSkew      time.Duration
	AccessToken    string // required when verifying a resource request
	RequiredNonce  string // empty means no nonce policy is enforced yet
}

// VerifyDPoPProofResult reports the outcome of verification plus the JWK
// thumbprint the caller binds as cnf.jkt or checks against it.
type VerifyDPoPProofResult struct {
	JWKThumbprint string
	JTI           string
	IAT           int64
}

var (
	// ErrDPoPUseNonce signals the caller must retry with a fresh DPoP-Nonce.
	ErrDPoPUseNonce = errors.New("use_dpop_nonce")

	// ErrInvalidDPoPProof is returned for any structural or binding failure.
	ErrInvalidDPoPProof = errors.New("invalid_dpop_proof")
)

// VerifyDPoPProof validates a DPoP proof JWT's structure, signature, method,
// URL, freshness, access-token binding and nonce, in that order.
func VerifyDPoPProof(ctx context.Context, cb *callback.Callbacks, req VerifyDPoPProofRequest) (*VerifyDPoPProofResult, error) {
	if cb == nil || cb.VerifyJWT == nil {
		return nil, errors.New("oauth2: VerifyDPoPProof requires a VerifyJWT callback")
	}

	compact, err := jose.DecodeCompact(req.Proof)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDPoPProof, err)
	}

	typ, _ := compact.Header["typ"].(string)
	if typ != "dpop+jwt" {
		return nil, fmt.Errorf("%w: typ must be dpop+jwt", ErrInvalidDPoPProof)
	}
	alg, _ := compact.Header["alg"].(string)
	if alg == "" || alg == "none" {
		return nil, fmt.Errorf("%w: missing or symmetric alg", ErrInvalidDPoPProof)
	}

	jwkRaw, ok := compact.Header["jwk"]
	if !ok {
		return nil, fmt.Errorf("%w: missing jwk header", ErrInvalidDPoPProof)
	}
	jwkJSON, err := json.Marshal(jwkRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed jwk header: %s", ErrInvalidDPoPProof, err)
	}
	jwk, err := jose.ParseJWK(jwkJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDPoPProof, err)
	}
	if !jwk.IsPublic() {
		return nil, fmt.Errorf("%w: jwk header must be a public key", ErrInvalidDPoPProof)
	}

	result, err := cb.VerifyJWT(ctx, callback.VerifyRequest{Compact: req.Proof, Header: compact.Header, Payload: compact.Payload})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDPoPProof, err)
	}
	if !result.Valid {
		return nil, fmt.Errorf("%w: signature verification failed", ErrInvalidDPoPProof)
	}

	htm, _ := compact.Payload["htm"].(string)
	if !strings.EqualFold(htm, req.HTM) {
		return nil, fmt.Errorf("%w: htm mismatch", ErrInvalidDPoPProof)
	}

	wantHTU, err := CanonicalizeHTU(req.HTU)
	if err != nil {
		return nil, err
	}
	gotHTU, _ := compact.Payload["htu"].(string)
	if gotHTU != wantHTU {
		return nil, fmt.Errorf("%w: htu mismatch", ErrInvalidDPoPProof)
	}

	iat, err := asInt64(compact.Payload["iat"])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid iat", ErrInvalidDPoPProof)
	}
	skew := req.ClockSkew
	if skew == 0 {
		skew = 60 * time.Second
	}
	now := time.Now()
	proofTime := time.Unix(iat, 0)
	if proofTime.Before(now.Add(-skew)) || proofTime.After(now.Add(skew)) {
		return nil, fmt.Errorf("%w: iat outside clock skew window", ErrInvalidDPoPProof)
	}

	if req.AccessToken != "" {
		if cb.Hash == nil {
			return nil, errors.New("oauth2: VerifyDPoPProof requires a Hash callback when AccessToken is set")
		}
		wantATH, err := hashAccessTokenWith(ctx, cb, req.AccessToken)
		if err != nil {
			return nil, err
		}
		gotATH, _ := compact.Payload["ath"].(string)
		if gotATH != wantATH {
			return nil, fmt.Errorf("%w: ath mismatch", ErrInvalidDPoPProof)
		}
	}

	if req.RequiredNonce != "" {
		gotNonce, _ := compact.Payload["nonce"].(string)
		if gotNonce != req.RequiredNonce {
			return nil, ErrDPoPUseNonce
		}
	}

	thumbprint, err := jwk.Thumbprint("sha-256")
	if err != nil {
		return nil, fmt.Errorf("oauth2: computing dpop jwk thumbprint: %w", err)
	}

	jti, _ := compact.Payload["jti"].(string)

	return &VerifyDPoPProofResult{JWKThumbprint: thumbprint, JTI: jti, IAT: iat}, nil
}
