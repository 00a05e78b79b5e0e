package apiv1

import (
	"context"
	"fmt"

	"vc/pkg/oauth2"
	"vc/pkg/openid4vci"

	"github.com/jellydator/ttlcache/v3"
)

// PushedAuthorizationRequest is the apiv1-level view of an RFC 9126 PAR
// body: client_id, redirect_uri, scope and the PKCE challenge a wallet
// would otherwise have sent directly to /authorize.
type PushedAuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// PushedAuthorizationResponse is RFC 9126's response body.
type PushedAuthorizationResponse struct {
	RequestURI string `json:"request_uri"`
	ExpiresIn  int    `json:"expires_in"`
}

// PushedAuthorizationRequest validates the client against the configured
// registry and stashes the request under a request_uri the wallet redeems
// at /authorize, per RFC 9126 §2.2.
func (c *Client) PushedAuthorizationRequest(ctx context.Context, req *PushedAuthorizationRequest) (*PushedAuthorizationResponse, *openid4vci.Error, error) {
	if _, err := c.cfg.IssuerServer.Clients.Allow(req.ClientID, req.RedirectURI, req.Scope); err != nil {
		return nil, &openid4vci.Error{Err: openid4vci.ErrInvalidRequest, ErrorDescription: err.Error()}, nil
	}
	if req.CodeChallenge == "" {
		return nil, &openid4vci.Error{Err: openid4vci.ErrInvalidRequest, ErrorDescription: "code_challenge is required"}, nil
	}
	if req.CodeChallengeMethod == "" {
		req.CodeChallengeMethod = oauth2.CodeChallengeMethodS256
	}

	requestURIBytes, err := c.generateRandom(ctx, 32)
	if err != nil {
		return nil, nil, fmt.Errorf("apiv1: generating request_uri: %w", err)
	}
	requestURI := fmt.Sprintf("urn:ietf:params:oauth:request_uri:%x", requestURIBytes)

	c.pars.Set(requestURI, &parState{
		clientID:            req.ClientID,
		redirectURI:         req.RedirectURI,
		scope:               req.Scope,
		state:               req.State,
		codeChallenge:       req.CodeChallenge,
		codeChallengeMethod: req.CodeChallengeMethod,
	}, ttlcache.DefaultTTL)

	return &PushedAuthorizationResponse{
		RequestURI: requestURI,
		ExpiresIn:  c.cfg.IssuerServer.PARRequestURITTLSeconds,
	}, nil, nil
}

// AuthorizeRequest is the apiv1-level view of an authorize-endpoint call:
// either a request_uri redeemed from a prior PAR call, or (when PAR is not
// required) the parameters carried directly.
type AuthorizeRequest struct {
	RequestURI string

	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Authorize implements the authorization endpoint: it resolves the PAR
// state (or the direct parameters), mints an authorization code bound to
// the PKCE challenge, and returns the redirect target the HTTP adapter
// should send the wallet's user agent to. The demo trio has no login UI of
// its own — every request is implicitly granted.
func (c *Client) Authorize(ctx context.Context, req *AuthorizeRequest) (redirectURL string, oerr *openid4vci.Error, err error) {
	clientID := req.ClientID
	redirectURI := req.RedirectURI
	scope := req.Scope
	state := req.State
	codeChallenge := req.CodeChallenge
	codeChallengeMethod := req.CodeChallengeMethod

	if req.RequestURI != "" {
		item := c.pars.Get(req.RequestURI)
		if item == nil {
			return "", &openid4vci.Error{Err: openid4vci.ErrInvalidRequest, ErrorDescription: "unknown or expired request_uri"}, nil
		}
		par := item.Value()
		c.pars.Delete(req.RequestURI)
		clientID = par.clientID
		redirectURI = par.redirectURI
		scope = par.scope
		state = par.state
		codeChallenge = par.codeChallenge
		codeChallengeMethod = par.codeChallengeMethod
	} else if c.cfg.IssuerServer.RequirePushedAuthorizationRequests {
		return "", &openid4vci.Error{Err: openid4vci.ErrInvalidRequest, ErrorDescription: "pushed authorization request required"}, nil
	}

	if _, allowErr := c.cfg.IssuerServer.Clients.Allow(clientID, redirectURI, scope); allowErr != nil {
		return "", &openid4vci.Error{Err: openid4vci.ErrInvalidRequest, ErrorDescription: allowErr.Error()}, nil
	}
	if codeChallenge == "" {
		return "", &openid4vci.Error{Err: openid4vci.ErrInvalidRequest, ErrorDescription: "code_challenge is required"}, nil
	}
	if codeChallengeMethod == "" {
		codeChallengeMethod = oauth2.CodeChallengeMethodS256
	}

	codeBytes, err := c.generateRandom(ctx, 32)
	if err != nil {
		return "", nil, fmt.Errorf("apiv1: generating authorization code: %w", err)
	}
	code := fmt.Sprintf("%x", codeBytes)

	c.authCodes.Set(code, &authCodeState{
		clientID:            clientID,
		redirectURI:         redirectURI,
		codeChallenge:       codeChallenge,
		codeChallengeMethod: codeChallengeMethod,
	}, ttlcache.DefaultTTL)

	redirectURL = redirectURI + "?code=" + code
	if state != "" {
		redirectURL += "&state=" + state
	}

	return redirectURL, nil, nil
}

// redeemAuthorizationCode validates and consumes an authorization code the
// token endpoint's authorization_code grant received, returning the PKCE
// parameters it was bound to at authorize time.
func (c *Client) redeemAuthorizationCode(code, redirectURI string) (*authCodeState, *openid4vci.Error) {
	item := c.authCodes.Get(code)
	if item == nil {
		return nil, &openid4vci.Error{Err: openid4vci.ErrTokenInvalidGrant, ErrorDescription: "unknown or expired authorization code"}
	}
	state := item.Value()
	if state.redeemed {
		return nil, &openid4vci.Error{Err: openid4vci.ErrTokenInvalidGrant, ErrorDescription: "authorization code already redeemed"}
	}
	if redirectURI != "" && redirectURI != state.redirectURI {
		return nil, &openid4vci.Error{Err: openid4vci.ErrTokenInvalidGrant, ErrorDescription: "redirect_uri does not match"}
	}

	state.redeemed = true
	c.authCodes.Set(code, state, ttlcache.DefaultTTL)

	return state, nil
}
