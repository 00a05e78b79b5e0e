package walletclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"vc/pkg/oauth2"
	"vc/pkg/openid4vci"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestIssuer spins up an in-memory stand-in for the issuer/AS/RS trio so
// flow.go's HTTP calls have something to land on without a real network.
func newTestIssuer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	var issuerURL string

	mux.HandleFunc("/.well-known/openid-credential-issuer", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(&openid4vci.CredentialIssuerMetadataParameters{
			CredentialIssuer:     issuerURL,
			CredentialEndpoint:   issuerURL + "/credential",
			NotificationEndpoint: issuerURL + "/notify",
			CredentialConfigurationsSupported: map[string]openid4vci.CredentialConfigurationsSupported{
				"example_credential": {},
			},
		})
	})
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(&oauth2.AuthorizationServerMetadata{
			Issuer:                 issuerURL,
			AuthorizationEndpoint:  issuerURL + "/authorize",
			TokenEndpoint:          issuerURL + "/token",
			ResponseTypesSupported: []string{"code"},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(&openid4vci.TokenResponse{
			AccessToken: "a-test-access-token",
			TokenType:   "Bearer",
			ExpiresIn:   300,
			CNonce:      "a-test-c-nonce",
		})
	})
	mux.HandleFunc("/credential", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(&openid4vci.CredentialResponse{
			Credential:     "a-test-credential",
			NotificationID: "a-test-notification-id",
		})
	})
	mux.HandleFunc("/notify", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/offer", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(&openid4vci.CredentialOfferParameters{
			CredentialIssuer:           issuerURL,
			CredentialConfigurationIDs: []string{"example_credential"},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	issuerURL = srv.URL

	return srv
}

func TestResolveCredentialOfferByValue(t *testing.T) {
	c := newTestClient(t)

	offer := &openid4vci.CredentialOfferParameters{
		CredentialIssuer:           "https://issuer.example.com",
		CredentialConfigurationIDs: []string{"example_credential"},
	}
	offerBytes, err := offer.Marshal()
	require.NoError(t, err)

	rawURI := "openid-credential-offer://?" + (url.Values{"credential_offer": {string(offerBytes)}}).Encode()

	resolved, err := c.ResolveCredentialOffer(context.Background(), rawURI)
	require.NoError(t, err)
	assert.Equal(t, "https://issuer.example.com", resolved.CredentialIssuer)
	assert.Equal(t, []string{"example_credential"}, resolved.CredentialConfigurationIDs)
}

func TestResolveCredentialOfferByReference(t *testing.T) {
	c := newTestClient(t)
	srv := newTestIssuer(t)

	rawURI := "openid-credential-offer://?" + (url.Values{"credential_offer_uri": {srv.URL + "/offer"}}).Encode()

	resolved, err := c.ResolveCredentialOffer(context.Background(), rawURI)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, resolved.CredentialIssuer)
	assert.Equal(t, []string{"example_credential"}, resolved.CredentialConfigurationIDs)
}

func TestFetchMetadata(t *testing.T) {
	c := newTestClient(t)
	srv := newTestIssuer(t)

	endpoints, err := c.FetchMetadata(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, endpoints.CredentialIssuer)
	assert.Equal(t, srv.URL+"/credential", endpoints.CredentialEndpoint)
	assert.Equal(t, srv.URL+"/notify", endpoints.NotificationEndpoint)
	assert.Equal(t, srv.URL+"/token", endpoints.TokenEndpoint)
	assert.False(t, endpoints.DPoPSupported)
	assert.False(t, endpoints.PARRequired)
}

func TestAcquireTokenPreAuthorizedCode(t *testing.T) {
	c := newTestClient(t)
	srv := newTestIssuer(t)

	endpoints, err := c.FetchMetadata(context.Background(), srv.URL)
	require.NoError(t, err)

	resp, err := c.AcquireToken(context.Background(), &AcquireTokenRequest{
		Endpoints:         endpoints,
		PreAuthorizedCode: "a-pre-authorized-code",
	})
	require.NoError(t, err)
	assert.Equal(t, "a-test-access-token", resp.AccessToken)
	assert.Equal(t, "a-test-c-nonce", resp.CNonce)
}

func TestRequestCredentialAndNotify(t *testing.T) {
	c := newTestClient(t)
	srv := newTestIssuer(t)

	endpoints, err := c.FetchMetadata(context.Background(), srv.URL)
	require.NoError(t, err)

	token, err := c.AcquireToken(context.Background(), &AcquireTokenRequest{
		Endpoints:         endpoints,
		PreAuthorizedCode: "a-pre-authorized-code",
	})
	require.NoError(t, err)

	credResp, err := c.RequestCredential(context.Background(), &RequestCredentialRequest{
		Endpoints:                 endpoints,
		Token:                     token,
		CredentialConfigurationID: "example_credential",
	})
	require.NoError(t, err)
	assert.Equal(t, "a-test-credential", credResp.Credential)
	assert.Equal(t, "a-test-notification-id", credResp.NotificationID)

	err = c.Notify(context.Background(), endpoints, credResp.NotificationID, "credential_accepted", "")
	require.NoError(t, err)
}

func TestFetchMetadataRejectsMalformedIssuerDocument(t *testing.T) {
	c := newTestClient(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-credential-issuer", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"credential_endpoint": "https://issuer.example.com/credential"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	_, err := c.FetchMetadata(context.Background(), srv.URL)
	require.Error(t, err)
}
