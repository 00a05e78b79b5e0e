package walletclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"vc/pkg/callback"
	"vc/pkg/oauth2"
)

// AuthorizationFlow names which path InitiateAuthorization took to reach its
// result.
type AuthorizationFlow string

const (
	// AuthorizationFlowChallenge means the authorization_challenge_endpoint
	// granted an authorization code directly, with no browser redirect at
	// all.
	AuthorizationFlowChallenge AuthorizationFlow = "challenge"

	// AuthorizationFlowRedirect means the wallet went through the ordinary
	// PAR-or-plain /authorize redirect, whether because no
	// authorization_challenge_endpoint was advertised or because it sent
	// redirect_to_web.
	AuthorizationFlowRedirect AuthorizationFlow = "redirect"

	// AuthorizationFlowPresentationDuring means the
	// authorization_challenge_endpoint responded insufficient_authorization:
	// the caller must obtain the named Presentation and resume with
	// ResumeAuthorizationChallenge before a Code is available.
	AuthorizationFlowPresentationDuring AuthorizationFlow = "presentation_during_issuance"
)

// AuthorizationResult is what InitiateAuthorization (or
// ResumeAuthorizationChallenge) produces. A Flow of AuthorizationFlowChallenge
// or AuthorizationFlowRedirect carries a redeemable Code and the CodeVerifier
// AcquireToken needs; AuthorizationFlowPresentationDuring carries no Code yet,
// only the state needed to resume.
type AuthorizationResult struct {
	Flow AuthorizationFlow

	Code         string
	CodeVerifier string

	AuthSession  string
	Presentation string
}

// InitiateAuthorizationRequest carries what InitiateAuthorization needs to
// start an authorization_code grant.
type InitiateAuthorizationRequest struct {
	Endpoints *IssuerEndpoints
	Scope     string
	State     string

	// Presentation, when the wallet already holds a matching OID4VP
	// presentation for this issuer, is offered up front so a first request
	// can skip the insufficient_authorization round-trip entirely.
	Presentation string
}

// InitiateAuthorization starts an authorization_code grant, choosing among
// the authorization_challenge_endpoint extension (draft-ietf-oauth-
// first-party-apps), pushed authorization requests (RFC 9126), and a plain
// /authorize request, in that order of preference:
//
//  1. If the authorization server advertises an authorization_challenge_endpoint,
//     try it first. A 200 response short-circuits straight to an
//     authorization code. redirect_to_web falls through to the ordinary
//     redirect-based flow below, following RequestURI at /authorize if one
//     was given. insufficient_authorization returns an
//     AuthorizationFlowPresentationDuring result for the caller to resume
//     once it has satisfied Presentation.
//  2. Otherwise (or after a redirect_to_web with no RequestURI), push the
//     request to pushed_authorization_request_endpoint when advertised, then
//     call /authorize — with the resulting request_uri, or with the
//     parameters directly if PAR isn't offered.
func (c *Client) InitiateAuthorization(ctx context.Context, req *InitiateAuthorizationRequest) (*AuthorizationResult, error) {
	codeVerifier := oauth2.CreateCodeVerifier()
	codeChallenge, codeChallengeMethod := c.codeChallengeFor(req.Endpoints, codeVerifier)

	if req.Endpoints.AuthorizationChallengeEndpoint != "" {
		result, err := c.authorizationChallenge(ctx, req, codeChallenge, codeChallengeMethod, codeVerifier, "")
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
		// result == nil means redirect_to_web with no request_uri: fall
		// through to the ordinary PAR/plain authorization request below.
	}

	return c.authorizeViaParOrPlain(ctx, req, codeChallenge, codeChallengeMethod, codeVerifier)
}

// ResumeAuthorizationChallenge re-presents an authSession to the
// authorization_challenge_endpoint after the caller has satisfied the
// Presentation an earlier AuthorizationFlowPresentationDuring result named,
// completing the presentation-during-issuance path.
func (c *Client) ResumeAuthorizationChallenge(ctx context.Context, req *InitiateAuthorizationRequest, authSession, codeVerifier string) (*AuthorizationResult, error) {
	codeChallenge, codeChallengeMethod := c.codeChallengeFor(req.Endpoints, codeVerifier)

	result, err := c.authorizationChallenge(ctx, req, codeChallenge, codeChallengeMethod, codeVerifier, authSession)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("walletclient: authorization_challenge_endpoint sent redirect_to_web while resuming an auth_session")
	}
	return result, nil
}

// authorizationChallenge POSTs a single authorization_challenge_endpoint
// request and interprets its outcome. A nil *AuthorizationResult with a nil
// error means redirect_to_web with no request_uri: the caller should fall
// through to the ordinary authorization flow.
func (c *Client) authorizationChallenge(ctx context.Context, req *InitiateAuthorizationRequest, codeChallenge, codeChallengeMethod, codeVerifier, authSession string) (*AuthorizationResult, error) {
	form := url.Values{}
	form.Set("client_id", c.cfg.WalletClient.ClientID)
	if req.Scope != "" {
		form.Set("scope", req.Scope)
	}
	form.Set("code_challenge", codeChallenge)
	form.Set("code_challenge_method", codeChallengeMethod)
	if req.Presentation != "" {
		form.Set("presentation", req.Presentation)
	}
	if authSession != "" {
		form.Set("auth_session", authSession)
	}

	resp, err := c.callbacks.Fetch(ctx, callback.FetchRequest{
		Method: http.MethodPost,
		URL:    req.Endpoints.AuthorizationChallengeEndpoint,
		Header: http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}},
		Body:   []byte(form.Encode()),
	})
	if err != nil {
		return nil, fmt.Errorf("walletclient: posting to authorization_challenge_endpoint: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		var ok struct {
			AuthorizationCode string `json:"authorization_code"`
		}
		if err := json.Unmarshal(resp.Body, &ok); err != nil {
			return nil, fmt.Errorf("walletclient: decoding authorization challenge response: %w", err)
		}
		return &AuthorizationResult{Flow: AuthorizationFlowChallenge, Code: ok.AuthorizationCode, CodeVerifier: codeVerifier}, nil
	}

	var challengeErr oauth2.AuthorizationChallengeError
	if err := json.Unmarshal(resp.Body, &challengeErr); err != nil {
		return nil, fmt.Errorf("walletclient: authorization_challenge_endpoint returned status %d: %s", resp.StatusCode, string(resp.Body))
	}

	switch challengeErr.Err {
	case oauth2.ErrRedirectToWeb:
		if challengeErr.RequestURI != "" {
			return c.authorizeViaRequestURI(ctx, req.Endpoints, challengeErr.RequestURI, codeVerifier)
		}
		return nil, nil

	case oauth2.ErrInsufficientAuthorization:
		return &AuthorizationResult{
			Flow:         AuthorizationFlowPresentationDuring,
			AuthSession:  challengeErr.AuthSession,
			Presentation: challengeErr.Presentation,
			CodeVerifier: codeVerifier,
		}, nil

	default:
		return nil, fmt.Errorf("walletclient: authorization_challenge_endpoint error: %s", challengeErr.Error())
	}
}

// authorizeViaParOrPlain pushes the authorization request out of band first
// when the authorization server advertises a pushed_authorization_request_endpoint,
// then calls /authorize with the resulting request_uri or, if PAR isn't
// offered, with the parameters directly.
func (c *Client) authorizeViaParOrPlain(ctx context.Context, req *InitiateAuthorizationRequest, codeChallenge, codeChallengeMethod, codeVerifier string) (*AuthorizationResult, error) {
	if req.Endpoints.PushedAuthorizationRequestEndpoint != "" {
		requestURI, err := c.pushAuthorizationRequest(ctx, req, codeChallenge, codeChallengeMethod)
		if err != nil {
			return nil, err
		}
		return c.authorizeViaRequestURI(ctx, req.Endpoints, requestURI, codeVerifier)
	}

	q := url.Values{}
	q.Set("client_id", c.cfg.WalletClient.ClientID)
	q.Set("response_type", "code")
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", codeChallengeMethod)
	if c.cfg.WalletClient.RedirectURI != "" {
		q.Set("redirect_uri", c.cfg.WalletClient.RedirectURI)
	}
	if req.Scope != "" {
		q.Set("scope", req.Scope)
	}
	if req.State != "" {
		q.Set("state", req.State)
	}

	return c.callAuthorize(ctx, req.Endpoints.AuthorizationEndpoint+"?"+q.Encode(), codeVerifier)
}

// pushAuthorizationRequest implements RFC 9126's client side: POST the
// authorization parameters to pushed_authorization_request_endpoint and
// return the request_uri the authorization endpoint will redeem them under.
func (c *Client) pushAuthorizationRequest(ctx context.Context, req *InitiateAuthorizationRequest, codeChallenge, codeChallengeMethod string) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.cfg.WalletClient.ClientID)
	form.Set("code_challenge", codeChallenge)
	form.Set("code_challenge_method", codeChallengeMethod)
	if c.cfg.WalletClient.RedirectURI != "" {
		form.Set("redirect_uri", c.cfg.WalletClient.RedirectURI)
	}
	if req.Scope != "" {
		form.Set("scope", req.Scope)
	}
	if req.State != "" {
		form.Set("state", req.State)
	}

	resp, err := c.callbacks.Fetch(ctx, callback.FetchRequest{
		Method: http.MethodPost,
		URL:    req.Endpoints.PushedAuthorizationRequestEndpoint,
		Header: http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}},
		Body:   []byte(form.Encode()),
	})
	if err != nil {
		return "", fmt.Errorf("walletclient: posting to pushed_authorization_request_endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("walletclient: pushed_authorization_request_endpoint returned status %d: %s", resp.StatusCode, string(resp.Body))
	}

	var parResp struct {
		RequestURI string `json:"request_uri"`
	}
	if err := json.Unmarshal(resp.Body, &parResp); err != nil {
		return "", fmt.Errorf("walletclient: decoding pushed authorization response: %w", err)
	}
	return parResp.RequestURI, nil
}

// authorizeViaRequestURI calls /authorize with a request_uri obtained either
// from PAR or from an authorization_challenge_endpoint's redirect_to_web
// response.
func (c *Client) authorizeViaRequestURI(ctx context.Context, endpoints *IssuerEndpoints, requestURI, codeVerifier string) (*AuthorizationResult, error) {
	q := url.Values{"request_uri": {requestURI}, "client_id": {c.cfg.WalletClient.ClientID}}
	return c.callAuthorize(ctx, endpoints.AuthorizationEndpoint+"?"+q.Encode(), codeVerifier)
}

func (c *Client) callAuthorize(ctx context.Context, authorizeURL, codeVerifier string) (*AuthorizationResult, error) {
	resp, err := c.callbacks.Fetch(ctx, callback.FetchRequest{Method: http.MethodGet, URL: authorizeURL})
	if err != nil {
		return nil, fmt.Errorf("walletclient: calling authorization endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("walletclient: authorization endpoint returned status %d: %s", resp.StatusCode, string(resp.Body))
	}

	var out struct {
		RedirectURI string `json:"redirect_uri"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("walletclient: decoding authorize response: %w", err)
	}
	redirect, err := url.Parse(out.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("walletclient: parsing redirect_uri: %w", err)
	}
	code := redirect.Query().Get("code")
	if code == "" {
		return nil, fmt.Errorf("walletclient: redirect_uri carries no authorization code")
	}

	return &AuthorizationResult{Flow: AuthorizationFlowRedirect, Code: code, CodeVerifier: codeVerifier}, nil
}

// codeChallengeFor picks S256 when the authorization server advertises
// support for it, falls back to plain when S256 isn't listed but plain is,
// and otherwise omits PKCE's method negotiation entirely by defaulting to
// S256 anyway, since every server this wallet talks to is assumed to support
// PKCE even when it doesn't advertise code_challenge_methods_supported.
func (c *Client) codeChallengeFor(endpoints *IssuerEndpoints, codeVerifier string) (challenge, method string) {
	method = oauth2.CodeChallengeMethodS256
	if len(endpoints.CodeChallengeMethodsSupported) > 0 {
		method = ""
		for _, m := range endpoints.CodeChallengeMethodsSupported {
			if m == oauth2.CodeChallengeMethodS256 {
				method = oauth2.CodeChallengeMethodS256
				break
			}
		}
		if method == "" {
			for _, m := range endpoints.CodeChallengeMethodsSupported {
				if m == oauth2.CodeChallengeMethodPlain {
					method = oauth2.CodeChallengeMethodPlain
					break
				}
			}
		}
		if method == "" {
			method = oauth2.CodeChallengeMethodS256
		}
	}

	challenge = oauth2.CreateCodeChallenge(method, codeVerifier)
	return challenge, method
}
