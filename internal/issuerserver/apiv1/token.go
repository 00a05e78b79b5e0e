package apiv1

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"vc/pkg/callback"
	"vc/pkg/oauth2"
	"vc/pkg/openid4vci"

	"github.com/jellydator/ttlcache/v3"
)

const grantTypePreAuthorizedCode = "urn:ietf:params:oauth:grant-type:pre-authorized_code"

// TokenRequest is the apiv1-level view of a token request: the wire-level
// openid4vci.TokenRequest only carries the DPoP header today (see that
// type's commented-out fields), so the form/grant parameters are collected
// here instead and handed in by the HTTP adapter.
type TokenRequest struct {
	GrantType         string
	PreAuthorizedCode string
	TXCode            string

	Code         string
	RedirectURI  string
	ClientID     string
	CodeVerifier string

	// DPoPProof is the compact DPoP JWT from the request's DPoP header, if any.
	DPoPProof string
	// HTU is the token endpoint's own URL, canonicalized by the caller the
	// same way a DPoP proof's htu claim is.
	HTU string
}

// Token implements the authorization-server token endpoint for both grant
// types, including the PKCE check and the DPoP nonce-retry handshake when
// the wallet binds the token to a key.
func (c *Client) Token(ctx context.Context, req *TokenRequest) (*openid4vci.TokenResponse, *openid4vci.Error, error) {
	var cnfJKT string
	if req.DPoPProof != "" {
		result, dpopErr := c.verifyDPoPForToken(ctx, req.DPoPProof, req.HTU)
		if dpopErr != nil {
			return nil, dpopErr, nil
		}
		cnfJKT = result.JWKThumbprint
	}

	var clientID string

	switch req.GrantType {
	case grantTypePreAuthorizedCode:
		id, oerr := c.redeemPreAuthorizedCode(req.PreAuthorizedCode, req.TXCode)
		if oerr != nil {
			return nil, oerr, nil
		}
		clientID = id

	case "authorization_code":
		codeState, oerr := c.redeemAuthorizationCode(req.Code, req.RedirectURI)
		if oerr != nil {
			return nil, oerr, nil
		}
		if err := oauth2.ValidatePKCE(req.CodeVerifier, codeState.codeChallenge, codeState.codeChallengeMethod); err != nil {
			return nil, &openid4vci.Error{Err: openid4vci.ErrTokenInvalidGrant, ErrorDescription: err.Error()}, nil
		}
		clientID = codeState.clientID

	default:
		return nil, &openid4vci.Error{Err: openid4vci.ErrTokenUnauthorizedClient, ErrorDescription: "unsupported grant_type"}, nil
	}

	accessTokenBytes, err := c.generateRandom(ctx, 32)
	if err != nil {
		return nil, nil, fmt.Errorf("apiv1: generating access token: %w", err)
	}
	cNonceBytes, err := c.generateRandom(ctx, 16)
	if err != nil {
		return nil, nil, fmt.Errorf("apiv1: generating c_nonce: %w", err)
	}
	cNonce := fmt.Sprintf("%x", cNonceBytes)

	jtiBytes, err := c.generateRandom(ctx, 16)
	if err != nil {
		return nil, nil, fmt.Errorf("apiv1: generating jti: %w", err)
	}
	jti := base64.RawURLEncoding.EncodeToString(jtiBytes)

	ttl := c.cfg.IssuerServer.AccessTokenTTLSeconds
	payload := map[string]any{
		"iss":       c.cfg.IssuerServer.Identifier,
		"aud":       c.cfg.IssuerServer.Identifier,
		"sub":       clientID,
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(time.Duration(ttl) * time.Second).Unix(),
		"jti":       jti,
		"client_id": clientID,
	}
	if cnfJKT != "" {
		payload["cnf"] = map[string]any{"jkt": cnfJKT}
	}

	accessToken, err := c.signJWT(ctx, callback.SignRequest{
		Header:  map[string]any{"typ": "at+jwt"},
		Payload: payload,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("apiv1: signing access token: %w", err)
	}

	tokenID := fmt.Sprintf("%x", accessTokenBytes)
	c.tokens.Set(tokenID, &tokenState{
		clientID: clientID,
		cnfJKT:   cnfJKT,
		cNonce:   cNonce,
	}, time.Duration(ttl)*time.Second)
	c.cNonces.Set(accessToken, cNonce, time.Duration(c.cfg.IssuerServer.CNonceTTLSeconds)*time.Second)

	tokenType := "Bearer"
	if cnfJKT != "" {
		tokenType = "DPoP"
	}

	return &openid4vci.TokenResponse{
		AccessToken:     accessToken,
		TokenType:       tokenType,
		ExpiresIn:       ttl,
		CNonce:          cNonce,
		CNonceExpiresIn: c.cfg.IssuerServer.CNonceTTLSeconds,
	}, nil, nil
}

// redeemPreAuthorizedCode consumes the offerState CreateOffer stashed away,
// checking the tx_code the spec's pre-authorized_code flow requires whenever
// the offer carried one, and returns a synthetic client identifier since the
// demo trio has no end-user registry of its own.
func (c *Client) redeemPreAuthorizedCode(code, txCode string) (string, *openid4vci.Error) {
	item := c.offers.Get(code)
	if item == nil {
		return "", &openid4vci.Error{Err: openid4vci.ErrTokenInvalidGrant, ErrorDescription: "unknown or expired pre-authorized_code"}
	}
	state := item.Value()
	if state.redeemed {
		return "", &openid4vci.Error{Err: openid4vci.ErrTokenInvalidGrant, ErrorDescription: "pre-authorized_code already redeemed"}
	}
	if state.txCode != "" && state.txCode != txCode {
		return "", &openid4vci.Error{Err: openid4vci.ErrTokenInvalidGrant, ErrorDescription: "wrong transaction code"}
	}
	if state.txCode == "" && txCode != "" {
		return "", &openid4vci.Error{Err: openid4vci.ErrTokenInvalidRequest, ErrorDescription: "transaction code not expected for this offer"}
	}

	state.redeemed = true
	c.offers.Set(code, state, ttlcache.DefaultTTL)

	return "pre-authorized:" + code, nil
}

// verifyDPoPForToken implements the use_dpop_nonce handshake against a
// single process-wide nonce: the first DPoP-bound
// request without the current nonce is rejected with a fresh one to retry
// with, and every successful verification rotates the nonce so it cannot be
// replayed.
func (c *Client) verifyDPoPForToken(ctx context.Context, proof, htu string) (*oauth2.VerifyDPoPProofResult, *openid4vci.Error) {
	requiredNonce := ""
	if item := c.dpopNonces.Get("token"); item != nil {
		requiredNonce = item.Value()
	} else if c.cfg.IssuerServer.RequireDPoPNonce {
		return nil, c.dpopUseNonceError("token")
	}

	result, err := oauth2.VerifyDPoPProof(ctx, c.callbacks, oauth2.VerifyDPoPProofRequest{
		Proof:         proof,
		HTM:           "POST",
		HTU:           htu,
		ClockSkew:     time.Duration(c.cfg.IssuerServer.ClockSkewSeconds) * time.Second,
		RequiredNonce: requiredNonce,
	})
	if err == oauth2.ErrDPoPUseNonce {
		return nil, c.dpopUseNonceError("token")
	}
	if err != nil {
		return nil, &openid4vci.Error{Err: openid4vci.ErrTokenInvalidRequest, ErrorDescription: err.Error()}
	}

	if item := c.replayGuard.Get("dpop:" + result.JTI); item != nil {
		return nil, &openid4vci.Error{Err: openid4vci.ErrTokenInvalidRequest, ErrorDescription: "dpop proof replayed"}
	}
	c.replayGuard.Set("dpop:"+result.JTI, struct{}{}, ttlcache.DefaultTTL)

	c.issueDPoPNonce("token")

	return result, nil
}

func (c *Client) dpopUseNonceError(key string) *openid4vci.Error {
	nonce := c.issueDPoPNonce(key)
	return &openid4vci.Error{Err: "use_dpop_nonce", ErrorDescription: nonce}
}

func (c *Client) issueDPoPNonce(key string) string {
	b, err := c.generateRandom(context.Background(), 16)
	if err != nil {
		return ""
	}
	nonce := fmt.Sprintf("%x", b)
	c.dpopNonces.Set(key, nonce, ttlcache.DefaultTTL)
	return nonce
}
