package openid4vci

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"vc/pkg/jose"
)

// CredentialRequest is the body of a credential request
// (https://openid.net/specs/openid-4-verifiable-credential-issuance-1_0.html#name-credential-request).
//
// Exactly one of CredentialIdentifier or Format must be present, and at
// most one of Proof or Proofs may be present; see Validate.
type CredentialRequest struct {
	// CredentialIdentifier identifies a credential configuration the caller
	// was authorized for in the token response's credential_identifiers.
	// Mutually exclusive with Format / format-specific parameters.
	CredentialIdentifier string `json:"credential_identifier,omitempty"`

	// CredentialConfigurationID names a credential_configurations_supported
	// entry directly, carried over from draft-11 style by-value requests.
	CredentialConfigurationID string `json:"credential_configuration_id,omitempty"`

	// Format is REQUIRED when CredentialIdentifier was not used; it MUST NOT
	// be used otherwise.
	Format string `json:"format,omitempty"`

	// Proof is the single proof-of-possession object. Mutually exclusive
	// with Proofs.
	Proof *Proof `json:"proof,omitempty"`

	// Proofs is the batch proof container, keyed by proof type. Mutually
	// exclusive with Proof.
	Proofs *Proofs `json:"proofs,omitempty"`

	CredentialResponseEncryption *CredentialResponseEncryption `json:"credential_response_encryption,omitempty"`
}

// Validate enforces the mutual-exclusion invariants: exactly one of
// CredentialIdentifier/Format, and at most one of Proof/Proofs.
func (c *CredentialRequest) Validate() error {
	hasIdentifier := c.CredentialIdentifier != ""
	hasFormat := c.Format != "" || c.CredentialConfigurationID != ""
	if hasIdentifier == hasFormat {
		return &Error{Err: ErrInvalidCredentialRequest, ErrorDescription: "exactly one of credential_identifier or format must be present"}
	}

	if c.Proof != nil && c.Proofs != nil {
		return &Error{Err: ErrInvalidCredentialRequest, ErrorDescription: "proof and proofs are mutually exclusive"}
	}

	if c.Proofs != nil {
		return c.Proofs.Validate()
	}

	return nil
}

// CredentialResponse https://openid.net/specs/openid-4-verifiable-credential-issuance-1_0.html#name-credential-response
type CredentialResponse struct {
	// Credential is set for a single-proof request's response.
	Credential any `json:"credential,omitempty" validate:"required_without_all=Credentials TransactionID"`

	// Credentials mirrors a batch (proofs) request: one entry per submitted proof.
	Credentials []any `json:"credentials,omitempty" validate:"required_without_all=Credential TransactionID"`

	// TransactionID identifies a deferred-issuance transaction; present
	// instead of Credential/Credentials when issuance could not complete
	// immediately.
	TransactionID string `json:"transaction_id,omitempty"`

	// NotificationID lets the wallet later report issuance outcome via the
	// notification endpoint. MUST NOT be present without Credential or
	// Credentials.
	NotificationID string `json:"notification_id,omitempty"`

	// CNonce: OPTIONAL. A fresh nonce to use in subsequent proof-of-possession JWTs.
	CNonce string `json:"c_nonce,omitempty"`

	// CNonceExpiresIn: OPTIONAL. Lifetime in seconds of CNonce.
	CNonceExpiresIn int `json:"c_nonce_expires_in,omitempty"`
}

// Proof https://openid.net/specs/openid-4-verifiable-credential-issuance-1_0.html#name-credential-request
type Proof struct {
	// ProofType REQUIRED. Determines which of the type-specific fields below is populated.
	ProofType string `json:"proof_type" validate:"required,oneof=jwt ldp_vp attestation di_vp"`

	JWT         ProofJWTToken    `json:"jwt,omitempty"`
	LDPVP       string           `json:"ldp_vp,omitempty"`
	Attestation ProofAttestation `json:"attestation,omitempty"`
	DIVP        *ProofDIVP       `json:"di_vp,omitempty"`
}

// Proofs is the batch form of Proof: exactly one key is present, containing
// an array of proofs of that type — one per credential instance requested.
type Proofs struct {
	JWT         []ProofJWTToken    `json:"jwt,omitempty"`
	LDPVP       []string           `json:"ldp_vp,omitempty"`
	Attestation []ProofAttestation `json:"attestation,omitempty"`
}

// Validate enforces that exactly one proof-type key is populated.
func (p *Proofs) Validate() error {
	n := 0
	if len(p.JWT) > 0 {
		n++
	}
	if len(p.LDPVP) > 0 {
		n++
	}
	if len(p.Attestation) > 0 {
		n++
	}
	if n != 1 {
		return &Error{Err: ErrInvalidCredentialRequest, ErrorDescription: "exactly one proof type must be present in proofs"}
	}
	return nil
}

// ExtractJWK extracts the holder's public key from the first JWT-type proof
// in the batch, mirroring ProofJWTToken.ExtractJWK.
func (p *Proofs) ExtractJWK() (*jose.JWK, error) {
	if len(p.JWT) == 0 {
		return nil, fmt.Errorf("no jwt proofs present")
	}
	return p.JWT[0].ExtractJWK()
}

// CredentialResponseEncryption holds the JWK for credential-response encryption.
type CredentialResponseEncryption struct {
	JWK jose.JWK `json:"jwk" validate:"required"`
	Alg string   `json:"alg" validate:"required"`
	Enc string   `json:"enc" validate:"required"`
}

// HashAccessToken hashes a raw bearer/DPoP access token with SHA-256 and
// base64url-encodes it, producing the `ath` claim value used to bind a DPoP
// proof to the specific token it accompanies.
func HashAccessToken(token string) string {
	token = strings.TrimPrefix(token, "DPoP ")
	token = strings.TrimPrefix(token, "Bearer ")
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
