// Package walletclient is the wallet-side counterpart of
// internal/issuerserver: it resolves a credential offer, acquires an access
// token (pre-authorized_code or authorization_code+PKCE), proves possession
// of its own DPoP/holder key, and requests a credential. It is a thin
// orchestrator over callback.Callbacks, not a wallet UI.
package walletclient

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"vc/pkg/callback"
	"vc/pkg/configuration"
	"vc/pkg/jose"
	"vc/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"
)

// Client holds the wallet's own holder/DPoP key pair, its outbound HTTP
// client, and the callback.Callbacks wiring every pkg/oauth2 and
// pkg/openid4vci call goes through. Unlike internal/issuerserver's Client it
// is not a server: Fetch is populated since the wallet is the caller making
// outbound requests, not the one answering them.
type Client struct {
	cfg *configuration.Cfg
	log *logger.Log

	holderKey       *ecdsa.PrivateKey
	holderPublicJWK *jose.JWK

	httpClient *http.Client
	callbacks  *callback.Callbacks

	// dpopNonces remembers the last DPoP-Nonce an authorization/resource
	// server handed back per endpoint URL, so CreateDPoPProof can include it
	// on the next try without the caller re-plumbing it through by hand.
	dpopNonces *ttlcache.Cache[string, string]
}

// New generates a fresh P-256 holder key for this process and wires a
// callback.Callbacks backed by it plus a plain net/http client.
func New(ctx context.Context, cfg *configuration.Cfg, log *logger.Log) (*Client, error) {
	holderKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("walletclient: generating holder key: %w", err)
	}

	c := &Client{
		cfg: cfg,
		log: log,
		holderKey: holderKey,
		holderPublicJWK: &jose.JWK{
			Kty: "EC",
			Crv: "P-256",
			X:   base64.RawURLEncoding.EncodeToString(holderKey.X.Bytes()),
			Y:   base64.RawURLEncoding.EncodeToString(holderKey.Y.Bytes()),
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		dpopNonces: ttlcache.New[string, string](ttlcache.WithTTL[string, string](5 * time.Minute)),
	}

	thumbprint, err := c.holderPublicJWK.Thumbprint("sha-256")
	if err != nil {
		return nil, fmt.Errorf("walletclient: computing holder key thumbprint: %w", err)
	}
	c.holderPublicJWK.Kid = thumbprint
	c.holderPublicJWK.Alg = "ES256"

	c.callbacks = &callback.Callbacks{
		Hash:           c.hash,
		GenerateRandom: c.generateRandom,
		SignJWT:        c.signJWT,
		VerifyJWT:      c.verifyJWT,
		Fetch:          c.fetch,
	}

	go c.dpopNonces.Start()

	c.log.Info("initialized", "kid", c.holderPublicJWK.Kid, "client_id", cfg.WalletClient.ClientID)

	return c, nil
}

// Close stops the background ttlcache janitor.
func (c *Client) Close(ctx context.Context) error {
	c.dpopNonces.Stop()
	return nil
}

func (c *Client) hash(ctx context.Context, data []byte, alg callback.HashAlg) ([]byte, error) {
	switch alg {
	case callback.HashSHA384:
		sum := sha512.Sum384(data)
		return sum[:], nil
	case callback.HashSHA512:
		sum := sha512.Sum512(data)
		return sum[:], nil
	default:
		sum := sha256.Sum256(data)
		return sum[:], nil
	}
}

func (c *Client) generateRandom(ctx context.Context, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// signJWT always signs with the wallet's own holder key: this process has
// exactly one key, used both for DPoP proofs and for credential-request
// proof-of-possession JWTs.
func (c *Client) signJWT(ctx context.Context, req callback.SignRequest) (string, error) {
	header := map[string]any{}
	for k, v := range req.Header {
		header[k] = v
	}
	return jose.MakeJWT(header, req.Payload, jwt.SigningMethodES256, c.holderKey)
}

// verifyJWT is only ever asked to check signatures the issuer itself makes
// (e.g. signed metadata); the wallet resolves the issuer's public key from
// whatever channel handed it the JOSE header's embedded "jwk", mirroring
// apiv1.Client.verifyJWT's embedded-jwk branch but without a process key of
// its own to fall back to.
func (c *Client) verifyJWT(ctx context.Context, req callback.VerifyRequest) (callback.VerifyResult, error) {
	jwkRaw, ok := req.Header["jwk"]
	if !ok {
		return callback.VerifyResult{}, fmt.Errorf("walletclient: cannot verify a jwt without an embedded jwk header")
	}

	jwk, err := decodeHeaderJWK(jwkRaw)
	if err != nil {
		return callback.VerifyResult{}, err
	}
	publicKey, err := publicKeyFromJWK(jwk)
	if err != nil {
		return callback.VerifyResult{}, err
	}

	_, err = jwt.Parse(req.Compact, func(t *jwt.Token) (any, error) {
		return publicKey, nil
	})
	if err != nil {
		return callback.VerifyResult{Valid: false}, nil
	}

	return callback.VerifyResult{Valid: true, SignerJWK: jwk}, nil
}

// fetch is the Fetch callback: a thin net/http adapter the core's PAR/token/
// metadata-resolution helpers call through to reach the network (the core
// itself never opens a socket).
func (c *Client) fetch(ctx context.Context, req callback.FetchRequest) (*callback.FetchResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("walletclient: building request: %w", err)
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("walletclient: %s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("walletclient: reading response body: %w", err)
	}

	return &callback.FetchResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// dpopNonceFor returns the last DPoP-Nonce the server at url handed back, if any.
func (c *Client) dpopNonceFor(url string) string {
	if item := c.dpopNonces.Get(url); item != nil {
		return item.Value()
	}
	return ""
}

func (c *Client) rememberDPoPNonce(url, nonce string) {
	if nonce != "" {
		c.dpopNonces.Set(url, nonce, ttlcache.DefaultTTL)
	}
}
