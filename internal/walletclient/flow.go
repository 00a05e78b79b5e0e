package walletclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vc/pkg/callback"
	"vc/pkg/oauth2"
	"vc/pkg/openid4vci"
)

// IssuerEndpoints is the subset of credential-issuer / authorization-server
// metadata the flow needs, resolved once by FetchMetadata and threaded
// through every later call rather than re-fetched per request.
type IssuerEndpoints struct {
	CredentialIssuer     string
	CredentialEndpoint   string
	NotificationEndpoint string

	TokenEndpoint                      string
	AuthorizationEndpoint              string
	PushedAuthorizationRequestEndpoint string
	AuthorizationChallengeEndpoint     string
	CodeChallengeMethodsSupported      []string

	ASIssuer      string
	DPoPSupported bool
	PARRequired   bool
}

// ResolveCredentialOffer parses a credential_offer_uri-or-raw-offer string
// the way a wallet's QR scanner would: openid-credential-offer://
// by-value URIs are handled directly by pkg/openid4vci; a
// credential_offer_uri reference is fetched through the wallet's own Fetch
// callback since pkg/openid4vci does not do I/O itself.
func (c *Client) ResolveCredentialOffer(ctx context.Context, offerURI string) (*openid4vci.CredentialOfferParameters, error) {
	u, err := url.Parse(offerURI)
	if err != nil {
		return nil, fmt.Errorf("walletclient: invalid credential offer uri: %w", err)
	}

	if ref := u.Query().Get("credential_offer_uri"); ref != "" {
		return c.fetchOfferByReference(ctx, ref)
	}

	return openid4vci.ParseCredentialOfferURI(offerURI)
}

func (c *Client) fetchOfferByReference(ctx context.Context, ref string) (*openid4vci.CredentialOfferParameters, error) {
	resp, err := c.callbacks.Fetch(ctx, callback.FetchRequest{Method: http.MethodGet, URL: ref})
	if err != nil {
		return nil, fmt.Errorf("walletclient: fetching credential_offer_uri: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("walletclient: credential_offer_uri returned status %d", resp.StatusCode)
	}

	var raw any
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, fmt.Errorf("walletclient: decoding credential offer: %w", err)
	}
	if err := openid4vci.ValidateCredentialOfferSchema(raw); err != nil {
		return nil, err
	}

	var offer openid4vci.CredentialOfferParameters
	if err := json.Unmarshal(resp.Body, &offer); err != nil {
		return nil, fmt.Errorf("walletclient: decoding credential offer: %w", err)
	}
	return &offer, nil
}

// FetchMetadata resolves the credential-issuer well-known document for
// credentialIssuer, confirms it actually describes that issuer, determines
// which authorization server it relies on, and resolves that server's own
// well-known document (RFC 8414). authorizationServer, when given, pins the
// credential offer's own "authorization_server" hint; it is checked against
// the issuer's advertised authorization_servers rather than trusted blindly.
func (c *Client) FetchMetadata(ctx context.Context, credentialIssuer string, authorizationServer ...string) (*IssuerEndpoints, error) {
	var pinnedAS string
	if len(authorizationServer) > 0 {
		pinnedAS = authorizationServer[0]
	}

	base := strings.TrimSuffix(credentialIssuer, "/")

	var rawIssuerMD any
	if err := c.fetchJSON(ctx, base+"/.well-known/openid-credential-issuer", &rawIssuerMD); err != nil {
		return nil, fmt.Errorf("walletclient: fetching credential-issuer metadata: %w", err)
	}
	if err := openid4vci.ValidateCredentialIssuerMetadataSchema(rawIssuerMD); err != nil {
		return nil, err
	}

	var issuerMD openid4vci.CredentialIssuerMetadataParameters
	if err := c.fetchJSON(ctx, base+"/.well-known/openid-credential-issuer", &issuerMD); err != nil {
		return nil, fmt.Errorf("walletclient: fetching credential-issuer metadata: %w", err)
	}

	if !canonicalIssuerEqual(issuerMD.CredentialIssuer, credentialIssuer) {
		return nil, fmt.Errorf("walletclient: credential-issuer metadata identifies itself as %q, not the requested issuer %q", issuerMD.CredentialIssuer, credentialIssuer)
	}

	asIdentifier, err := determineAuthorizationServer(issuerMD.AuthorizationServers, pinnedAS, credentialIssuer)
	if err != nil {
		return nil, err
	}

	asMD, err := c.discoverAuthorizationServerMetadata(ctx, asIdentifier)
	if err != nil {
		return nil, err
	}

	return &IssuerEndpoints{
		CredentialIssuer:                   issuerMD.CredentialIssuer,
		CredentialEndpoint:                 issuerMD.CredentialEndpoint,
		NotificationEndpoint:               issuerMD.NotificationEndpoint,
		TokenEndpoint:                      asMD.TokenEndpoint,
		AuthorizationEndpoint:              asMD.AuthorizationEndpoint,
		PushedAuthorizationRequestEndpoint: asMD.PushedAuthorizationRequestEndpoint,
		AuthorizationChallengeEndpoint:     asMD.AuthorizationChallengeEndpoint,
		CodeChallengeMethodsSupported:      asMD.CodeChallengeMethodsSupported,
		ASIssuer:                           asMD.Issuer,
		DPoPSupported:                      len(asMD.DPOPSigningALGValuesSupported) > 0,
		PARRequired:                        asMD.RequiredPushedAuthorizationRequests,
	}, nil
}

// canonicalIssuerEqual compares two issuer identifiers the way RFC 8414
// comparisons should: case-insensitively on scheme and host, ignoring a
// trailing slash on the path, so "https://Issuer.example.com/" and
// "https://issuer.example.com" are the same issuer.
func canonicalIssuerEqual(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) &&
		strings.EqualFold(ua.Host, ub.Host) &&
		strings.TrimSuffix(ua.Path, "/") == strings.TrimSuffix(ub.Path, "/")
}

// determineAuthorizationServer picks which authorization server to use from
// a credential-issuer's advertised authorization_servers list (RFC 8414),
// honoring a pinned identifier from the credential offer's grant if one was
// given: servers is empty means the issuer acts as its own authorization
// server; a pinned identifier not present among servers is
// unknown_authorization_server; more than one server with nothing pinned is
// ambiguous_authorization_server.
func determineAuthorizationServer(servers []string, pinned, credentialIssuer string) (string, error) {
	if len(servers) == 0 {
		return credentialIssuer, nil
	}

	if pinned != "" {
		for _, s := range servers {
			if canonicalIssuerEqual(s, pinned) {
				return s, nil
			}
		}
		return "", fmt.Errorf("walletclient: unknown_authorization_server: %q is not among the credential issuer's advertised authorization servers", pinned)
	}

	if len(servers) == 1 {
		return servers[0], nil
	}

	return "", fmt.Errorf("walletclient: ambiguous_authorization_server: issuer advertises %d authorization servers and no authorization_server hint pinned one", len(servers))
}

// discoverAuthorizationServerMetadata fetches an authorization server's
// metadata, trying the OAuth 2.0 well-known path (RFC 8414) and the OpenID
// Connect Discovery one concurrently and keeping whichever responds with a
// usable document first; it only reports authorization_server_not_found once
// both have failed.
func (c *Client) discoverAuthorizationServerMetadata(ctx context.Context, asIdentifier string) (*oauth2.AuthorizationServerMetadata, error) {
	base := strings.TrimSuffix(asIdentifier, "/")
	paths := []string{"/.well-known/oauth-authorization-server", "/.well-known/openid-configuration"}

	type outcome struct {
		md  *oauth2.AuthorizationServerMetadata
		err error
	}
	results := make(chan outcome, len(paths))
	for _, p := range paths {
		go func(p string) {
			md := &oauth2.AuthorizationServerMetadata{}
			err := c.fetchJSON(ctx, base+p, md)
			results <- outcome{md: md, err: err}
		}(p)
	}

	var lastErr error
	for range paths {
		r := <-results
		if r.err == nil {
			return r.md, nil
		}
		lastErr = r.err
	}

	return nil, fmt.Errorf("walletclient: authorization_server_not_found for %s: %w", asIdentifier, lastErr)
}

func (c *Client) fetchJSON(ctx context.Context, endpointURL string, out any) error {
	resp, err := c.callbacks.Fetch(ctx, callback.FetchRequest{Method: http.MethodGet, URL: endpointURL})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d from %s", resp.StatusCode, endpointURL)
	}
	return json.Unmarshal(resp.Body, out)
}

// AcquireTokenRequest names the grant to redeem and its inputs.
type AcquireTokenRequest struct {
	Endpoints *IssuerEndpoints

	// PreAuthorizedCode and TXCode drive the pre-authorized_code grant;
	// Code/CodeVerifier drive the authorization_code grant.
	PreAuthorizedCode string
	TXCode            string

	// Legacy marks an offer whose pre-authorized_code grant arrived in the
	// draft-11 shape (see openid4vci.GrantPreAuthorizedCode.Legacy): TXCode
	// is then posted back as the legacy user_pin form field instead of
	// tx_code.
	Legacy bool

	Code         string
	CodeVerifier string
}

// AcquireToken implements the token endpoint's client side for both grant
// types, including the DPoP nonce-retry handshake: the first POST carries
// the DPoP nonce last remembered for the token endpoint, if any (none on
// first contact), and on a use_dpop_nonce response the call transparently
// retries once with the server-issued nonce included.
func (c *Client) AcquireToken(ctx context.Context, req *AcquireTokenRequest) (*openid4vci.TokenResponse, error) {
	form := url.Values{}
	if req.PreAuthorizedCode != "" {
		form.Set("grant_type", "urn:ietf:params:oauth:grant-type:pre-authorized_code")
		form.Set("pre-authorized_code", req.PreAuthorizedCode)
		if req.TXCode != "" {
			if req.Legacy {
				form.Set("user_pin", req.TXCode)
			} else {
				form.Set("tx_code", req.TXCode)
			}
		}
	} else {
		form.Set("grant_type", "authorization_code")
		form.Set("code", req.Code)
		form.Set("client_id", c.cfg.WalletClient.ClientID)
		if c.cfg.WalletClient.RedirectURI != "" {
			form.Set("redirect_uri", c.cfg.WalletClient.RedirectURI)
		}
		if req.CodeVerifier != "" {
			form.Set("code_verifier", req.CodeVerifier)
		}
	}

	nonce := c.dpopNonceFor(req.Endpoints.TokenEndpoint)
	resp, tokenResp, err := c.postToken(ctx, req.Endpoints.TokenEndpoint, form, nonce)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusBadRequest {
		var oerr openid4vci.Error
		if jsonErr := json.Unmarshal(resp.Body, &oerr); jsonErr == nil && oerr.Err == "use_dpop_nonce" {
			c.rememberDPoPNonce(req.Endpoints.TokenEndpoint, resp.Header.Get("DPoP-Nonce"))
			resp, tokenResp, err = c.postToken(ctx, req.Endpoints.TokenEndpoint, form, resp.Header.Get("DPoP-Nonce"))
			if err != nil {
				return nil, err
			}
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("walletclient: token endpoint returned status %d: %s", resp.StatusCode, string(resp.Body))
	}

	return tokenResp, nil
}

func (c *Client) postToken(ctx context.Context, tokenEndpoint string, form url.Values, nonce string) (*callback.FetchResponse, *openid4vci.TokenResponse, error) {
	header := http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}}

	if c.cfg.WalletClient.PreferDPoP {
		proof, err := oauth2.CreateDPoPProof(ctx, c.callbacks, oauth2.CreateDPoPProofRequest{
			Signer: callback.Signer{PublicJWK: c.holderPublicJWK, Alg: "ES256"},
			HTM:    http.MethodPost,
			HTU:    tokenEndpoint,
			Nonce:  nonce,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("walletclient: creating dpop proof: %w", err)
		}
		header.Set("DPoP", proof)
	}

	resp, err := c.callbacks.Fetch(ctx, callback.FetchRequest{
		Method: http.MethodPost,
		URL:    tokenEndpoint,
		Header: header,
		Body:   []byte(form.Encode()),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walletclient: posting to token endpoint: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return resp, nil, nil
	}

	var tokenResp openid4vci.TokenResponse
	if err := json.Unmarshal(resp.Body, &tokenResp); err != nil {
		return nil, nil, fmt.Errorf("walletclient: decoding token response: %w", err)
	}
	return resp, &tokenResp, nil
}

// RequestCredentialRequest carries what RequestCredential needs beyond the
// token response it already has: which credential to ask for and the
// cnf.jkt binding state from AcquireToken, which decides whether a DPoP
// proof must ride along with this request too.
type RequestCredentialRequest struct {
	Endpoints                  *IssuerEndpoints
	Token                      *openid4vci.TokenResponse
	CredentialConfigurationID  string
	DPoPBound                  bool
}

// RequestCredential implements the credential endpoint's client side: it
// builds a fresh proof-of-possession JWT over the access token's c_nonce,
// attaches a DPoP proof bound to the same access token when the token is
// DPoP-bound, and POSTs the credential request.
func (c *Client) RequestCredential(ctx context.Context, req *RequestCredentialRequest) (*openid4vci.CredentialResponse, error) {
	proofJWT, err := c.buildProofOfPossession(ctx, req.Endpoints.CredentialIssuer, req.Token.CNonce)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(&openid4vci.CredentialRequest{
		CredentialConfigurationID: req.CredentialConfigurationID,
		Proof: &openid4vci.Proof{
			ProofType: "jwt",
			JWT:       openid4vci.ProofJWTToken(proofJWT),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("walletclient: encoding credential request: %w", err)
	}

	tokenType := "Bearer"
	if req.DPoPBound {
		tokenType = "DPoP"
	}
	header := http.Header{
		"Content-Type":  []string{"application/json"},
		"Authorization": []string{tokenType + " " + req.Token.AccessToken},
	}

	if req.DPoPBound {
		proof, err := oauth2.CreateDPoPProof(ctx, c.callbacks, oauth2.CreateDPoPProofRequest{
			Signer:      callback.Signer{PublicJWK: c.holderPublicJWK, Alg: "ES256"},
			HTM:         http.MethodPost,
			HTU:         req.Endpoints.CredentialEndpoint,
			Nonce:       c.dpopNonceFor(req.Endpoints.CredentialEndpoint),
			AccessToken: req.Token.AccessToken,
		})
		if err != nil {
			return nil, fmt.Errorf("walletclient: creating dpop proof: %w", err)
		}
		header.Set("DPoP", proof)
	}

	resp, err := c.callbacks.Fetch(ctx, callback.FetchRequest{
		Method: http.MethodPost,
		URL:    req.Endpoints.CredentialEndpoint,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return nil, fmt.Errorf("walletclient: posting to credential endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("walletclient: credential endpoint returned status %d: %s", resp.StatusCode, string(resp.Body))
	}

	var credResp openid4vci.CredentialResponse
	if err := json.Unmarshal(resp.Body, &credResp); err != nil {
		return nil, fmt.Errorf("walletclient: decoding credential response: %w", err)
	}
	return &credResp, nil
}

func (c *Client) buildProofOfPossession(ctx context.Context, audience, cNonce string) (string, error) {
	return c.signJWT(ctx, callback.SignRequest{
		Header: map[string]any{
			"typ": "openid4vci-proof+jwt",
			"jwk": c.holderPublicJWK,
		},
		Payload: map[string]any{
			"aud":   audience,
			"iat":   time.Now().Unix(),
			"nonce": cNonce,
			"iss":   c.cfg.WalletClient.ClientID,
		},
	})
}

// Notify implements the notification endpoint's client side: reporting whether a credential
// was accepted, deleted, or failed so the issuer can retire its notification
// state for it.
func (c *Client) Notify(ctx context.Context, endpoints *IssuerEndpoints, notificationID, event, description string) error {
	if endpoints.NotificationEndpoint == "" {
		return nil
	}

	body, err := json.Marshal(&openid4vci.NotificationRequest{
		NotificationID:   notificationID,
		Event:            event,
		EventDescription: description,
	})
	if err != nil {
		return fmt.Errorf("walletclient: encoding notification request: %w", err)
	}

	resp, err := c.callbacks.Fetch(ctx, callback.FetchRequest{
		Method: http.MethodPost,
		URL:    endpoints.NotificationEndpoint,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("walletclient: posting notification: %w", err)
	}
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("walletclient: notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
