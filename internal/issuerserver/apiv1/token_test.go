package apiv1

import (
	"context"
	"net/url"
	"testing"

	"vc/pkg/oauth2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractQueryParam(t *testing.T, rawURL, key string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Query().Get(key)
}

func TestTokenPreAuthorizedCode(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	offer, err := c.CreateOffer(ctx, &CreateOfferRequest{
		CredentialConfigurationIDs: []string{"example_credential"},
	})
	require.NoError(t, err)

	resp, oerr, err := c.Token(ctx, &TokenRequest{
		GrantType:         grantTypePreAuthorizedCode,
		PreAuthorizedCode: offer.PreAuthorizedCode,
	})
	require.NoError(t, err)
	require.Nil(t, oerr)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.CNonce)

	// redeeming the same code a second time must fail
	_, oerr, err = c.Token(ctx, &TokenRequest{
		GrantType:         grantTypePreAuthorizedCode,
		PreAuthorizedCode: offer.PreAuthorizedCode,
	})
	require.NoError(t, err)
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_grant", oerr.Err)
}

func TestTokenPreAuthorizedCodeWithTXCode(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	offer, err := c.CreateOffer(ctx, &CreateOfferRequest{
		CredentialConfigurationIDs: []string{"example_credential"},
		TXCode:                     "1234",
	})
	require.NoError(t, err)

	_, oerr, err := c.Token(ctx, &TokenRequest{
		GrantType:         grantTypePreAuthorizedCode,
		PreAuthorizedCode: offer.PreAuthorizedCode,
		TXCode:            "wrong",
	})
	require.NoError(t, err)
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_grant", oerr.Err)

	resp, oerr, err := c.Token(ctx, &TokenRequest{
		GrantType:         grantTypePreAuthorizedCode,
		PreAuthorizedCode: offer.PreAuthorizedCode,
		TXCode:            "1234",
	})
	require.NoError(t, err)
	require.Nil(t, oerr)
	assert.NotEmpty(t, resp.AccessToken)
}

func TestTokenUnknownGrantType(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, oerr, err := c.Token(ctx, &TokenRequest{GrantType: "client_credentials"})
	require.NoError(t, err)
	require.NotNil(t, oerr)
	assert.Equal(t, "unauthorized_client", oerr.Err)
}

func TestTokenAuthorizationCodeWithPKCE(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	verifier := "a-code-verifier-that-is-long-enough-for-pkce"
	challenge := oauth2.CreateCodeChallenge(oauth2.CodeChallengeMethodS256, verifier)

	redirectURL, oerr, err := c.Authorize(ctx, &AuthorizeRequest{
		ClientID:            "wallet-1",
		RedirectURI:         "https://wallet.example.com/callback",
		Scope:               "example_credential",
		State:               "xyz",
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	})
	require.NoError(t, err)
	require.Nil(t, oerr)
	assert.Contains(t, redirectURL, "code=")
	assert.Contains(t, redirectURL, "state=xyz")

	code := extractQueryParam(t, redirectURL, "code")

	resp, oerr, err := c.Token(ctx, &TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  "https://wallet.example.com/callback",
		ClientID:     "wallet-1",
		CodeVerifier: verifier,
	})
	require.NoError(t, err)
	require.Nil(t, oerr)
	assert.NotEmpty(t, resp.AccessToken)

	// the same code cannot be redeemed twice
	_, oerr, err = c.Token(ctx, &TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  "https://wallet.example.com/callback",
		ClientID:     "wallet-1",
		CodeVerifier: verifier,
	})
	require.NoError(t, err)
	require.NotNil(t, oerr)
}

func TestTokenAuthorizationCodeWrongVerifier(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	challenge := oauth2.CreateCodeChallenge(oauth2.CodeChallengeMethodS256, "the-real-verifier")

	redirectURL, oerr, err := c.Authorize(ctx, &AuthorizeRequest{
		ClientID:            "wallet-1",
		RedirectURI:         "https://wallet.example.com/callback",
		Scope:               "example_credential",
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	})
	require.NoError(t, err)
	require.Nil(t, oerr)
	code := extractQueryParam(t, redirectURL, "code")

	_, oerr, err = c.Token(ctx, &TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		ClientID:     "wallet-1",
		CodeVerifier: "not-the-real-verifier",
	})
	require.NoError(t, err)
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_grant", oerr.Err)
}
