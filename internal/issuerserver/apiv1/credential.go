package apiv1

import (
	"context"
	"fmt"
	"time"

	"vc/pkg/callback"
	"vc/pkg/jose"
	"vc/pkg/oauth2"
	"vc/pkg/openid4vci"

	"github.com/jellydator/ttlcache/v3"
)

// CredentialRequestInput carries a credential request together with the
// resource-server context the HTTP adapter extracted from it. AccessToken
// is the bare token value with any "Bearer "/"DPoP " scheme prefix already
// stripped by the caller; Scheme records which prefix that was ("Bearer" or
// "DPoP"), since a DPoP-bound access token presented with the Bearer scheme
// must be rejected even though the bare token value looks valid either way.
type CredentialRequestInput struct {
	AccessToken string
	Scheme      string
	Request     *openid4vci.CredentialRequest
	DPoPProof   string
	HTU         string
}

// Credential implements the resource-server credential endpoint:
// access-token validation (including its cnf.jkt DPoP binding),
// proof-of-possession verification against the caller-held c_nonce, and
// issuance of a fresh c_nonce the wallet must use on its next request.
//
// Credential-format semantics (sd-jwt vc, mdoc, ldp_vc, ...) are out of
// scope; this signs a placeholder claims envelope with the issuer's own
// key so the full request/response lifecycle can still be exercised
// end-to-end.
func (c *Client) Credential(ctx context.Context, in *CredentialRequestInput) (*openid4vci.CredentialResponse, *openid4vci.Error, error) {
	claims, cnfJKT, oerr := c.verifyAccessToken(ctx, in.AccessToken)
	if oerr != nil {
		return nil, oerr, nil
	}

	if cnfJKT != "" && in.Scheme == "Bearer" {
		return nil, &openid4vci.Error{Err: openid4vci.ErrInvalidCredentialRequest, ErrorDescription: "a dpop-bound access token must be presented with the DPoP scheme, not Bearer"}, nil
	}

	if cnfJKT != "" {
		if in.DPoPProof == "" {
			return nil, &openid4vci.Error{Err: openid4vci.ErrInvalidCredentialRequest, ErrorDescription: "dpop proof required for this access token"}, nil
		}
		dres, err := oauth2.VerifyDPoPProof(ctx, c.callbacks, oauth2.VerifyDPoPProofRequest{
			Proof:       in.DPoPProof,
			HTM:         "POST",
			HTU:         in.HTU,
			ClockSkew:   time.Duration(c.cfg.IssuerServer.ClockSkewSeconds) * time.Second,
			AccessToken: in.AccessToken,
		})
		if err != nil {
			return nil, &openid4vci.Error{Err: openid4vci.ErrInvalidCredentialRequest, ErrorDescription: "invalid dpop proof"}, nil
		}
		if dres.JWKThumbprint != cnfJKT {
			return nil, &openid4vci.Error{Err: openid4vci.ErrInvalidCredentialRequest, ErrorDescription: "dpop proof key does not match token binding"}, nil
		}
		if item := c.replayGuard.Get("dpop:" + dres.JTI); item != nil {
			return nil, &openid4vci.Error{Err: openid4vci.ErrInvalidCredentialRequest, ErrorDescription: "dpop proof replayed"}, nil
		}
		c.replayGuard.Set("dpop:"+dres.JTI, struct{}{}, ttlcache.DefaultTTL)
	}

	if err := in.Request.Validate(); err != nil {
		return nil, asCredentialError(err), nil
	}

	holderJWK, err := in.Request.Proof.JWT.ExtractJWK()
	if err != nil {
		return nil, &openid4vci.Error{Err: openid4vci.ErrInvalidProof, ErrorDescription: err.Error()}, nil
	}
	holderPublicKey, err := publicKeyFromJWK(holderJWK)
	if err != nil {
		return nil, &openid4vci.Error{Err: openid4vci.ErrInvalidProof, ErrorDescription: err.Error()}, nil
	}

	var cNonce string
	if item := c.cNonces.Get(in.AccessToken); item != nil {
		cNonce = item.Value()
	}

	if err := in.Request.VerifyProofWithOptions(holderPublicKey, &openid4vci.VerifyProofOptions{
		CNonce:   cNonce,
		Audience: c.cfg.IssuerServer.Identifier,
	}); err != nil {
		return nil, asCredentialError(err), nil
	}

	clientID, _ := claims["sub"].(string)

	credential, err := c.signJWT(ctx, callback.SignRequest{
		Header: map[string]any{"typ": "vc+sd-jwt"},
		Payload: map[string]any{
			"iss": c.cfg.IssuerServer.Identifier,
			"sub": clientID,
			"iat": time.Now().Unix(),
			"cnf": map[string]any{"jwk": holderJWK},
			"vct": "ExampleCredential",
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("apiv1: signing credential: %w", err)
	}

	notificationIDBytes, err := c.generateRandom(ctx, 16)
	if err != nil {
		return nil, nil, fmt.Errorf("apiv1: generating notification_id: %w", err)
	}
	notificationID := fmt.Sprintf("%x", notificationIDBytes)

	freshCNonceBytes, err := c.generateRandom(ctx, 16)
	if err != nil {
		return nil, nil, fmt.Errorf("apiv1: generating fresh c_nonce: %w", err)
	}
	freshCNonce := fmt.Sprintf("%x", freshCNonceBytes)
	c.cNonces.Set(in.AccessToken, freshCNonce, time.Duration(c.cfg.IssuerServer.CNonceTTLSeconds)*time.Second)

	return &openid4vci.CredentialResponse{
		Credential:      credential,
		NotificationID:  notificationID,
		CNonce:          freshCNonce,
		CNonceExpiresIn: c.cfg.IssuerServer.CNonceTTLSeconds,
	}, nil, nil
}

// verifyAccessToken validates the signature, expiry and audience of an
// access token minted by Token, returning its claims and cnf.jkt binding
// (empty when the token was not DPoP-bound).
func (c *Client) verifyAccessToken(ctx context.Context, accessToken string) (map[string]any, string, *openid4vci.Error) {
	compact, err := jose.DecodeCompact(accessToken)
	if err != nil {
		return nil, "", &openid4vci.Error{Err: openid4vci.ErrInvalidCredentialRequest, ErrorDescription: "malformed access token"}
	}

	result, err := c.verifyJWT(ctx, callback.VerifyRequest{Compact: accessToken, Header: compact.Header, Payload: compact.Payload})
	if err != nil || !result.Valid {
		return nil, "", &openid4vci.Error{Err: openid4vci.ErrInvalidCredentialRequest, ErrorDescription: "invalid access token"}
	}

	if exp, ok := compact.Payload["exp"]; ok {
		if expSeconds, ok := exp.(float64); ok && time.Now().After(time.Unix(int64(expSeconds), 0)) {
			return nil, "", &openid4vci.Error{Err: openid4vci.ErrInvalidCredentialRequest, ErrorDescription: "access token expired"}
		}
	}

	if aud, _ := compact.Payload["aud"].(string); aud != c.cfg.IssuerServer.Identifier {
		return nil, "", &openid4vci.Error{Err: openid4vci.ErrInvalidCredentialRequest, ErrorDescription: "access token was not issued for this resource server"}
	}

	var cnfJKT string
	if cnf, ok := compact.Payload["cnf"].(map[string]any); ok {
		if jkt, ok := cnf["jkt"].(string); ok {
			cnfJKT = jkt
		}
	}

	return compact.Payload, cnfJKT, nil
}

func asCredentialError(err error) *openid4vci.Error {
	if oe, ok := err.(*openid4vci.Error); ok {
		return oe
	}
	return &openid4vci.Error{Err: openid4vci.ErrInvalidProof, ErrorDescription: err.Error()}
}
