package configuration

import "vc/pkg/oauth2"

// Cfg is the root configuration for the demo binaries built on top of the
// openid4vci/oauth2 core (cmd/issuerserver, cmd/walletclient). It is
// intentionally narrow: the core packages themselves take no configuration
// at all, they only take callbacks and explicit arguments.
type Cfg struct {
	Common       Common       `yaml:"common"`
	IssuerServer IssuerServer `yaml:"issuer_server"`
	WalletClient WalletClient `yaml:"wallet_client"`
}

// Common carries the ambient, cross-cutting settings every binary needs.
type Common struct {
	Production bool   `yaml:"production" default:"false"`
	LogLevel   string `yaml:"log_level" default:"debug" validate:"omitempty,oneof=trace debug info error"`
	LogPath    string `yaml:"log_path"`
}

// IssuerServer configures the demo issuer / authorization-server / resource-
// server trio (internal/issuerserver).
type IssuerServer struct {
	APIServer APIServer `yaml:"api_server"`

	// Identifier is this process's credential-issuer identifier, also used
	// as the authorization-server issuer identifier, since the demo trio
	// runs both roles in one process.
	Identifier string `yaml:"identifier" validate:"required"`

	// AccessTokenTTLSeconds is expires_in for minted access tokens.
	AccessTokenTTLSeconds int `yaml:"access_token_ttl_seconds" default:"300"`

	// CNonceTTLSeconds is the lifetime handed out as c_nonce_expires_in.
	CNonceTTLSeconds int `yaml:"c_nonce_ttl_seconds" default:"300"`

	// ClockSkewSeconds bounds DPoP proof iat and access-token iat checks.
	ClockSkewSeconds int `yaml:"clock_skew_seconds" default:"60"`

	// RequireDPoPNonce, when true, makes the token endpoint answer a DPoP
	// proof with use_dpop_nonce while it has no nonce outstanding, so the
	// first DPoP-bound token request completes the retry handshake. The
	// credential endpoint does not consult it.
	RequireDPoPNonce bool `yaml:"require_dpop_nonce" default:"false"`

	// RequirePushedAuthorizationRequests mirrors the authorization-server
	// metadata field of the same name.
	RequirePushedAuthorizationRequests bool `yaml:"require_pushed_authorization_requests" default:"false"`

	SigningKeyPath string `yaml:"signing_key_path" validate:"required"`

	// Clients is the statically-configured registry the authorize and PAR
	// endpoints check client_id/redirect_uri/scope against; the demo trio
	// has no dynamic client registration of its own.
	Clients oauth2.Clients `yaml:"clients"`

	// PARRequestURITTLSeconds bounds how long a pushed authorization request
	// stays redeemable at the authorize endpoint.
	PARRequestURITTLSeconds int `yaml:"par_request_uri_ttl_seconds" default:"60"`

	// AuthorizationCodeTTLSeconds bounds how long an authorization code
	// stays redeemable at the token endpoint.
	AuthorizationCodeTTLSeconds int `yaml:"authorization_code_ttl_seconds" default:"60"`
}

// WalletClient configures the demo wallet-side test harness
// (internal/walletclient).
type WalletClient struct {
	APIServer APIServer `yaml:"api_server"`

	ClientID    string `yaml:"client_id" validate:"required"`
	RedirectURI string `yaml:"redirect_uri"`

	// PreferDPoP attaches a DPoP proof to every token request, asking for a
	// DPoP-bound access token; whether the authorization server advertises
	// DPoP support is not checked.
	PreferDPoP bool `yaml:"prefer_dpop" default:"true"`
}

// APIServer is a familiar listen/TLS block, trimmed to what an in-process
// demo server actually needs.
type APIServer struct {
	Addr string `yaml:"addr" default:"0.0.0.0:8080"`
}
