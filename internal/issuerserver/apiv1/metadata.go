package apiv1

import (
	"context"

	"vc/pkg/oauth2"
	"vc/pkg/openid4vci"
)

// CredentialIssuerMetadata returns a static view of this process's
// credential-issuer metadata, served at
// /.well-known/openid-credential-issuer.
func (c *Client) CredentialIssuerMetadata(ctx context.Context) (*openid4vci.CredentialIssuerMetadataParameters, error) {
	identifier := c.cfg.IssuerServer.Identifier

	return &openid4vci.CredentialIssuerMetadataParameters{
		CredentialIssuer:     identifier,
		AuthorizationServers: []string{identifier},
		CredentialEndpoint:   identifier + "/credential",
		NotificationEndpoint: identifier + "/notification",
		BatchCredentialIssuance: &openid4vci.BatchCredentialIssuance{
			BatchSize: 10,
		},
		CredentialConfigurationsSupported: map[string]openid4vci.CredentialConfigurationsSupported{
			"example_credential": {
				Format:                               "vc+sd-jwt",
				Scope:                                 "example_credential",
				CryptographicBindingMethodsSupported:  []string{"jwk"},
				CredentialSigningAlgValuesSupported:   []string{c.signingMethod.Alg()},
				ProofTypesSupported: map[string]openid4vci.ProofsTypesSupported{
					"jwt": {ProofSigningAlgValuesSupported: []string{"ES256", "ES384", "RS256"}},
				},
				CredentialDefinition: openid4vci.CredentialDefinition{
					Type:              []string{"VerifiableCredential", "ExampleCredential"},
					CredentialSubject: map[string]openid4vci.CredentialSubject{},
				},
			},
		},
	}, nil
}

// AuthorizationServerMetadata returns the RFC 8414 view of this process's
// authorization-server metadata, including its DPoP/PAR/Authorization
// Challenge extensions, served at /.well-known/oauth-authorization-server.
func (c *Client) AuthorizationServerMetadata(ctx context.Context) (*oauth2.AuthorizationServerMetadata, error) {
	identifier := c.cfg.IssuerServer.Identifier

	return &oauth2.AuthorizationServerMetadata{
		Issuer:                              identifier,
		AuthorizationEndpoint:               identifier + "/authorize",
		TokenEndpoint:                       identifier + "/token",
		PushedAuthorizationRequestEndpoint:  identifier + "/par",
		RequiredPushedAuthorizationRequests: c.cfg.IssuerServer.RequirePushedAuthorizationRequests,
		AuthorizationChallengeEndpoint:      identifier + "/authorization-challenge",
		GrantTypesSupported: []string{
			"authorization_code",
			"urn:ietf:params:oauth:grant-type:pre-authorized_code",
		},
		ResponseTypesSupported:        []string{"code"},
		CodeChallengeMethodsSupported: []string{oauth2.CodeChallengeMethodS256},
		DPOPSigningALGValuesSupported: []string{"ES256", "ES384", "RS256"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
	}, nil
}
