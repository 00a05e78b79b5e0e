// Package callback defines the narrow set of interfaces the openid4vci and
// oauth2 packages call through instead of doing cryptography, randomness,
// time, or I/O themselves. Implementers build one adapter per process and
// thread it through every core call; the core never retains process state
// of its own.
package callback

import (
	"context"
	"net/http"

	"vc/pkg/jose"
)

// HashAlg names a digest algorithm accepted by Hash.
type HashAlg string

const (
	HashSHA256 HashAlg = "sha-256"
	HashSHA384 HashAlg = "sha-384"
	HashSHA512 HashAlg = "sha-512"
)

// Hash digests data with the given algorithm. Callers typically wire this to
// crypto/sha256 and crypto/sha512 directly.
type Hash func(ctx context.Context, data []byte, alg HashAlg) ([]byte, error)

// GenerateRandom returns n cryptographically strong random bytes.
type GenerateRandom func(ctx context.Context, n int) ([]byte, error)

// SignerKind tags which member of SignRequest.Signer is populated.
type SignerKind string

const (
	SignerDID    SignerKind = "did"
	SignerJWK    SignerKind = "jwk"
	SignerX5C    SignerKind = "x5c"
	SignerCustom SignerKind = "custom"
)

// Signer is the tagged-variant JWT signer descriptor: exactly one of the
// kind-specific fields is meaningful for a given Kind. The core
// populates the corresponding JOSE header field (kid/jwk/x5c) before
// invoking SignJWT; SignerCustom leaves header population entirely to the
// implementer.
type Signer struct {
	Kind SignerKind

	// DIDUrl identifies the verification method when Kind == SignerDID.
	DIDUrl string
	// PublicJWK is embedded in the JOSE header's "jwk" member when Kind == SignerJWK.
	PublicJWK *jose.JWK
	// X5C is the certificate chain embedded as the JOSE header's "x5c" member
	// when Kind == SignerX5C.
	X5C []string
	// Alg is the JWS algorithm to sign with.
	Alg string
}

// SignRequest bundles the JOSE header and payload the implementer must sign.
// Header already carries kid/jwk/x5c populated by the core per Signer.Kind;
// implementers should not overwrite those members.
type SignRequest struct {
	Signer  Signer
	Header  map[string]any
	Payload map[string]any
}

// SignJWT produces a compact-serialized, signed JWT for the given request.
type SignJWT func(ctx context.Context, req SignRequest) (string, error)

// VerifyRequest bundles a compact JWT with its already-decoded header and
// payload, handed to VerifyJWT so implementers don't need to re-parse it.
type VerifyRequest struct {
	Compact string
	Header  map[string]any
	Payload map[string]any
}

// VerifyResult is returned by VerifyJWT.
type VerifyResult struct {
	Valid bool
	// SignerJWK is the public key that validated the signature, when known
	// (e.g. recovered from the JOSE header's "jwk" member). did:* signers are
	// resolved by the implementer out of band; it is legitimate to leave
	// this nil in that case.
	SignerJWK *jose.JWK
}

// VerifyJWT checks a compact JWT's signature. did:* resolution happens
// inside the implementation; the core only ever sees the boolean result.
type VerifyJWT func(ctx context.Context, req VerifyRequest) (VerifyResult, error)

// FetchRequest describes an outbound HTTP request the core needs performed.
type FetchRequest struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
}

// FetchResponse is the result of a Fetch call.
type FetchResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetch performs an HTTP request on the core's behalf. Implementers are
// expected to honor context cancellation and standard HTTP semantics; the
// core installs no timeouts of its own.
type Fetch func(ctx context.Context, req FetchRequest) (*FetchResponse, error)

// ClientAuthenticationMethod names one of the methods clientAuthentication
// is expected to support.
type ClientAuthenticationMethod string

const (
	ClientAuthNone            ClientAuthenticationMethod = "none"
	ClientAuthSecretBasic     ClientAuthenticationMethod = "client_secret_basic"
	ClientAuthSecretPost      ClientAuthenticationMethod = "client_secret_post"
	ClientAuthPrivateKeyJWT   ClientAuthenticationMethod = "private_key_jwt"
	ClientAuthAttestJWTClient ClientAuthenticationMethod = "attest_jwt_client_auth"
)

// OutgoingRequest is the mutable view of a token/PAR request that
// ClientAuthentication adjusts before it is sent on the wire.
type OutgoingRequest struct {
	Method string
	URL    string
	Header http.Header
	Form   map[string][]string
}

// ClientAuthentication adjusts an outgoing token or PAR request to add
// client authentication, per the method the caller's client registration
// uses.
type ClientAuthentication func(ctx context.Context, req *OutgoingRequest) error

// Callbacks bundles every injected dependency the core calls through. A
// zero-value Callbacks is invalid; every field in active use by a given
// operation must be non-nil, or that operation returns an error rather than
// panicking on a nil call.
type Callbacks struct {
	Hash                 Hash
	GenerateRandom       GenerateRandom
	SignJWT              SignJWT
	VerifyJWT            VerifyJWT
	Fetch                Fetch
	ClientAuthentication ClientAuthentication
}
