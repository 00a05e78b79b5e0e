package apiv1

import (
	"context"
	"fmt"
	"slices"

	"vc/pkg/oauth2"

	"github.com/jellydator/ttlcache/v3"
)

// AuthorizationChallengeRequest is the apiv1-level view of an OAuth 2.0
// Authorization Challenge request (draft-ietf-oauth-first-party-apps): a
// client_id/scope/PKCE challenge much like PushedAuthorizationRequest, plus
// an optional presentation the wallet already holds and an auth_session when
// resuming after a prior insufficient_authorization response.
type AuthorizationChallengeRequest struct {
	ClientID            string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	Presentation        string
	AuthSession         string
}

// AuthorizationChallenge implements the authorization_challenge_endpoint. A
// client this issuer does not recognize, or whose requested scope it does
// not allow, is sent back to the ordinary browser-redirect flow
// (redirect_to_web). A recognized client configured with RequirePresentation
// that has not yet supplied a presentation gets insufficient_authorization
// with an auth_session to resume with once it has one. Any other recognized,
// sufficiently-authorized request is granted an authorization code
// immediately, with no redirect at all.
func (c *Client) AuthorizationChallenge(ctx context.Context, req *AuthorizationChallengeRequest) (authorizationCode string, oerr *oauth2.AuthorizationChallengeError, err error) {
	clientID := req.ClientID
	scope := req.Scope
	codeChallenge := req.CodeChallenge
	codeChallengeMethod := req.CodeChallengeMethod

	if req.AuthSession != "" {
		item := c.authSessions.Get(req.AuthSession)
		if item == nil {
			return "", &oauth2.AuthorizationChallengeError{Err: oauth2.ErrInsufficientAuthorization, ErrorDescription: "unknown or expired auth_session"}, nil
		}
		session := item.Value()
		clientID = session.clientID
		scope = session.scope
		codeChallenge = session.codeChallenge
		codeChallengeMethod = session.codeChallengeMethod
	}

	client, ok := c.cfg.IssuerServer.Clients[clientID]
	if !ok {
		return "", &oauth2.AuthorizationChallengeError{Err: oauth2.ErrRedirectToWeb, ErrorDescription: "client not found in config"}, nil
	}
	if scope != "" && !slices.Contains(client.Scopes, scope) {
		return "", &oauth2.AuthorizationChallengeError{Err: oauth2.ErrRedirectToWeb, ErrorDescription: "requested scope is not allowed for this client"}, nil
	}
	if codeChallenge == "" {
		return "", &oauth2.AuthorizationChallengeError{Err: oauth2.ErrRedirectToWeb, ErrorDescription: "code_challenge is required"}, nil
	}
	if codeChallengeMethod == "" {
		codeChallengeMethod = oauth2.CodeChallengeMethodS256
	}

	if client.RequirePresentation && req.Presentation == "" && req.AuthSession == "" {
		authSessionBytes, err := c.generateRandom(ctx, 16)
		if err != nil {
			return "", nil, fmt.Errorf("apiv1: generating auth_session: %w", err)
		}
		authSession := fmt.Sprintf("%x", authSessionBytes)
		c.authSessions.Set(authSession, &authChallengeSession{
			clientID:            clientID,
			scope:               scope,
			codeChallenge:       codeChallenge,
			codeChallengeMethod: codeChallengeMethod,
		}, ttlcache.DefaultTTL)

		return "", &oauth2.AuthorizationChallengeError{
			Err:          oauth2.ErrInsufficientAuthorization,
			AuthSession:  authSession,
			Presentation: c.cfg.IssuerServer.Identifier + "/presentation-request/" + authSession,
		}, nil
	}

	if req.AuthSession != "" {
		c.authSessions.Delete(req.AuthSession)
	}

	codeBytes, err := c.generateRandom(ctx, 32)
	if err != nil {
		return "", nil, fmt.Errorf("apiv1: generating authorization code: %w", err)
	}
	code := fmt.Sprintf("%x", codeBytes)

	c.authCodes.Set(code, &authCodeState{
		clientID:            clientID,
		redirectURI:         client.RedirectURI,
		codeChallenge:       codeChallenge,
		codeChallengeMethod: codeChallengeMethod,
	}, ttlcache.DefaultTTL)

	return code, nil, nil
}
