package httpserver

import (
	"context"
	"fmt"
	"strings"

	"vc/internal/issuerserver/apiv1"
	"vc/pkg/openid4vci"

	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v3"
)

func (s *Service) endpointCredentialIssuerMetadata(ctx context.Context, c *gin.Context) (any, error) {
	return s.apiv1.CredentialIssuerMetadata(ctx)
}

func (s *Service) endpointAuthorizationServerMetadata(ctx context.Context, c *gin.Context) (any, error) {
	return s.apiv1.AuthorizationServerMetadata(ctx)
}

// endpointPushedAuthorizationRequest implements the PAR endpoint (RFC 9126):
// a client pushes its authorization parameters out of band and gets back a
// request_uri to present at /authorize instead.
func (s *Service) endpointPushedAuthorizationRequest(ctx context.Context, c *gin.Context) (any, error) {
	req := &apiv1.PushedAuthorizationRequest{
		ClientID:            c.PostForm("client_id"),
		RedirectURI:         c.PostForm("redirect_uri"),
		Scope:               c.PostForm("scope"),
		State:               c.PostForm("state"),
		CodeChallenge:       c.PostForm("code_challenge"),
		CodeChallengeMethod: c.PostForm("code_challenge_method"),
	}

	resp, oerr, err := s.apiv1.PushedAuthorizationRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if oerr != nil {
		return nil, oerr
	}
	return resp, nil
}

// endpointAuthorizationChallenge implements the OAuth 2.0 Authorization
// Challenge extension's endpoint (draft-ietf-oauth-first-party-apps): a
// first-party wallet app posts its client/PKCE parameters here instead of
// opening a browser, and either gets an authorization code straight back or
// is told to fall back to a redirect (redirect_to_web) or to complete a
// presentation first (insufficient_authorization).
func (s *Service) endpointAuthorizationChallenge(ctx context.Context, c *gin.Context) (any, error) {
	req := &apiv1.AuthorizationChallengeRequest{
		ClientID:            c.PostForm("client_id"),
		Scope:               c.PostForm("scope"),
		CodeChallenge:       c.PostForm("code_challenge"),
		CodeChallengeMethod: c.PostForm("code_challenge_method"),
		Presentation:        c.PostForm("presentation"),
		AuthSession:         c.PostForm("auth_session"),
	}

	code, oerr, err := s.apiv1.AuthorizationChallenge(ctx, req)
	if err != nil {
		return nil, err
	}
	if oerr != nil {
		return nil, oerr
	}

	return gin.H{"authorization_code": code}, nil
}

// endpointAuthorize implements the authorization endpoint. The
// demo trio has no login UI, so every request is granted immediately; the
// result is returned as JSON (redirect_uri for the caller to follow) rather
// than an HTTP redirect, since this is a test harness endpoint, not a
// browser-facing one.
func (s *Service) endpointAuthorize(ctx context.Context, c *gin.Context) (any, error) {
	req := &apiv1.AuthorizeRequest{
		RequestURI:          c.Query("request_uri"),
		ClientID:            c.Query("client_id"),
		RedirectURI:         c.Query("redirect_uri"),
		Scope:               c.Query("scope"),
		State:               c.Query("state"),
		CodeChallenge:       c.Query("code_challenge"),
		CodeChallengeMethod: c.Query("code_challenge_method"),
	}

	redirectURL, oerr, err := s.apiv1.Authorize(ctx, req)
	if err != nil {
		return nil, err
	}
	if oerr != nil {
		return nil, oerr
	}
	return gin.H{"redirect_uri": redirectURL}, nil
}

// endpointToken implements the token endpoint. Form parameters are read
// directly rather than through gin's binding tags since their presence
// depends on grant_type, a cross-field rule binding:"required" cannot
// express cleanly.
func (s *Service) endpointToken(ctx context.Context, c *gin.Context) (any, error) {
	// tx_code is the form field a draft-14 wallet posts back the end-user's
	// transaction code in; a draft-11 wallet instead posts the same value as
	// user_pin. Both are accepted here, with tx_code taking precedence if
	// somehow both are set.
	txCode := c.PostForm("tx_code")
	if txCode == "" {
		txCode = c.PostForm("user_pin")
	}

	req := &apiv1.TokenRequest{
		GrantType:         c.PostForm("grant_type"),
		PreAuthorizedCode: c.PostForm("pre-authorized_code"),
		TXCode:            txCode,
		Code:              c.PostForm("code"),
		RedirectURI:       c.PostForm("redirect_uri"),
		ClientID:          c.PostForm("client_id"),
		CodeVerifier:      c.PostForm("code_verifier"),
		DPoPProof:         c.GetHeader("DPoP"),
		HTU:               s.requestURL("/token"),
	}

	resp, oerr, err := s.apiv1.Token(ctx, req)
	if err != nil {
		return nil, err
	}
	if oerr != nil {
		if oerr.Err == "use_dpop_nonce" {
			c.Header("DPoP-Nonce", fmt.Sprint(oerr.ErrorDescription))
			oerr.ErrorDescription = nil
		}
		return nil, oerr
	}

	return resp, nil
}

// endpointCredential implements the resource-server credential endpoint.
func (s *Service) endpointCredential(ctx context.Context, c *gin.Context) (any, error) {
	authz := c.GetHeader("Authorization")
	scheme := ""
	accessToken := authz
	switch {
	case strings.HasPrefix(authz, "DPoP "):
		scheme = "DPoP"
		accessToken = strings.TrimPrefix(authz, "DPoP ")
	case strings.HasPrefix(authz, "Bearer "):
		scheme = "Bearer"
		accessToken = strings.TrimPrefix(authz, "Bearer ")
	}

	var body openid4vci.CredentialRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, &openid4vci.Error{Err: openid4vci.ErrInvalidCredentialRequest, ErrorDescription: err.Error()}
	}

	resp, oerr, err := s.apiv1.Credential(ctx, &apiv1.CredentialRequestInput{
		AccessToken: accessToken,
		Scheme:      scheme,
		Request:     &body,
		DPoPProof:   c.GetHeader("DPoP"),
		HTU:         s.requestURL("/credential"),
	})
	if err != nil {
		return nil, err
	}
	if oerr != nil {
		return nil, oerr
	}

	return resp, nil
}

func (s *Service) endpointNotification(ctx context.Context, c *gin.Context) (any, error) {
	var body openid4vci.NotificationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, &openid4vci.Error{Err: openid4vci.InvalidNotificationRequest, ErrorDescription: err.Error()}
	}

	if oerr := s.apiv1.Notification(ctx, &body); oerr != nil {
		return nil, oerr
	}

	return nil, nil
}

// createOfferRequest is the demo-only body for minting a credential offer.
type createOfferRequest struct {
	CredentialConfigurationIDs []string `json:"credential_configuration_ids" binding:"required"`
	TXCode                     string   `json:"tx_code"`
	ByReference                bool     `json:"by_reference"`
}

func (s *Service) endpointCreateOffer(ctx context.Context, c *gin.Context) (any, error) {
	var body createOfferRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, &openid4vci.Error{Err: openid4vci.ErrInvalidRequest, ErrorDescription: err.Error()}
	}

	reply, err := s.apiv1.CreateOffer(ctx, &apiv1.CreateOfferRequest{
		CredentialConfigurationIDs: body.CredentialConfigurationIDs,
		TXCode:                     body.TXCode,
	})
	if err != nil {
		return nil, err
	}

	if !body.ByReference {
		offerValue, err := reply.Offer.CredentialOffer()
		if err != nil {
			return nil, err
		}
		qr, err := offerValue.QR(-1, 256, "")
		if err != nil {
			return nil, err
		}
		return gin.H{"credential_offer": reply.Offer, "credential_offer_url": qr.CredentialOfferURL, "qr": qr.QRBase64}, nil
	}

	offerURI, err := reply.Offer.CredentialOfferURI()
	if err != nil {
		return nil, err
	}
	uuid, err := offerURI.UUID()
	if err != nil {
		return nil, err
	}
	s.offersByReference.Set(uuid, reply.Offer, ttlcache.DefaultTTL)

	qr, err := offerURI.QR(-1, 256, "", s.cfg.IssuerServer.Identifier)
	if err != nil {
		return nil, err
	}

	return gin.H{"credential_offer_uri": offerURI.String(), "credential_offer_url": qr.CredentialOfferURL, "qr": qr.QRBase64}, nil
}

func (s *Service) endpointGetOfferByReference(ctx context.Context, c *gin.Context) (any, error) {
	id := c.Param("id")
	item := s.offersByReference.Get(id)
	if item == nil {
		return nil, &openid4vci.Error{Err: openid4vci.ErrInvalidRequest, ErrorDescription: "unknown or expired credential offer"}
	}
	return item.Value(), nil
}

// requestURL builds this endpoint's canonical URL from the configured
// issuer identifier, for DPoP htu binding: this is the same value the
// wallet resolves from credential-issuer/authorization-server metadata, so
// htu comparisons on both sides agree.
func (s *Service) requestURL(path string) string {
	return strings.TrimSuffix(s.cfg.IssuerServer.Identifier, "/") + path
}
