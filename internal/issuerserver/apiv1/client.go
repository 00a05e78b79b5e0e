// Package apiv1 is the business-logic layer of the demo issuer / authorization
// server / resource server trio built on top of pkg/openid4vci and
// pkg/oauth2. It owns the one process-lifetime signing key, the in-memory
// state a stateless core explicitly pushes back onto its caller (issued
// codes, c_nonces, DPoP-nonce bookkeeping), and the callback.Callbacks
// wiring every core call goes through.
package apiv1

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"vc/pkg/callback"
	"vc/pkg/configuration"
	"vc/pkg/jose"
	"vc/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"
)

// offerState is what the issuer remembers about a credential offer it
// minted until the wallet redeems it at the token endpoint. The core keeps
// no session state of its own; this is exactly the caller-held state
// whoever plays the issuer role is expected to hold.
type offerState struct {
	credentialConfigurationIDs []string
	txCode                     string
	redeemed                   bool
}

// tokenState is what the authorization-server role records about an
// access token it minted. Entries are written when a token is issued; the
// resource-server role does not read them back and checks a Credential
// Request from the access token JWT itself.
type tokenState struct {
	clientID    string
	cnfJKT      string
	cNonce      string
	consumedAt  *time.Time
	credentials []string
}

// parState is what the authorize endpoint finds again by request_uri once a
// pushed authorization request (RFC 9126) has been accepted.
type parState struct {
	clientID            string
	redirectURI         string
	scope               string
	state               string
	codeChallenge       string
	codeChallengeMethod string
}

// authCodeState is what the token endpoint's authorization_code grant
// checks a redeemed code against: the PKCE parameters bound to it at
// authorize time.
type authCodeState struct {
	clientID            string
	redirectURI         string
	codeChallenge       string
	codeChallengeMethod string
	redeemed            bool
}

// authChallengeSession is what an insufficient_authorization response from
// AuthorizationChallenge remembers under its auth_session, so a later
// request presenting that same auth_session can pick the original
// client_id/scope/PKCE parameters back up once the presentation is done.
type authChallengeSession struct {
	clientID            string
	scope               string
	codeChallenge       string
	codeChallengeMethod string
}

// Client bundles the signing key, the callback.Callbacks wiring, and the
// caller-held stores the demo issuer/AS/RS trio needs.
type Client struct {
	cfg *configuration.Cfg
	log *logger.Log

	privateKey    any
	publicKey     any
	publicJWK     *jose.JWK
	signingMethod jwt.SigningMethod
	kid           string

	callbacks *callback.Callbacks

	offers      *ttlcache.Cache[string, *offerState]
	cNonces     *ttlcache.Cache[string, string]
	dpopNonces  *ttlcache.Cache[string, string]
	tokens      *ttlcache.Cache[string, *tokenState]
	dpopJTIs    *ttlcache.Cache[string, struct{}]
	replayGuard *ttlcache.Cache[string, struct{}]
	pars         *ttlcache.Cache[string, *parState]
	authCodes    *ttlcache.Cache[string, *authCodeState]
	authSessions *ttlcache.Cache[string, *authChallengeSession]
}

// New loads the signing key configured at cfg.IssuerServer.SigningKeyPath,
// derives its public JWK, and wires a callback.Callbacks backed entirely by
// this process's own crypto/rand, crypto/sha256 and crypto/sha512, and
// github.com/golang-jwt/jwt/v5 (a PKCS#11 HSM signer is not implemented;
// see DESIGN.md).
func New(ctx context.Context, cfg *configuration.Cfg, log *logger.Log) (*Client, error) {
	c := &Client{cfg: cfg, log: log}

	if err := c.initSoftwareSigner(); err != nil {
		return nil, err
	}

	c.callbacks = &callback.Callbacks{
		Hash:           c.hash,
		GenerateRandom: c.generateRandom,
		SignJWT:        c.signJWT,
		VerifyJWT:      c.verifyJWT,
	}

	ttl := time.Duration(cfg.IssuerServer.CNonceTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c.offers = ttlcache.New[string, *offerState](ttlcache.WithTTL[string, *offerState](30 * time.Minute))
	c.cNonces = ttlcache.New[string, string](ttlcache.WithTTL[string, string](ttl))
	c.dpopNonces = ttlcache.New[string, string](ttlcache.WithTTL[string, string](5 * time.Minute))
	c.tokens = ttlcache.New[string, *tokenState](ttlcache.WithTTL[string, *tokenState](time.Duration(cfg.IssuerServer.AccessTokenTTLSeconds) * time.Second))
	c.dpopJTIs = ttlcache.New[string, struct{}](ttlcache.WithTTL[string, struct{}](5 * time.Minute))
	c.replayGuard = ttlcache.New[string, struct{}](ttlcache.WithTTL[string, struct{}](ttl))

	parTTL := time.Duration(cfg.IssuerServer.PARRequestURITTLSeconds) * time.Second
	if parTTL <= 0 {
		parTTL = 60 * time.Second
	}
	codeTTL := time.Duration(cfg.IssuerServer.AuthorizationCodeTTLSeconds) * time.Second
	if codeTTL <= 0 {
		codeTTL = 60 * time.Second
	}
	c.pars = ttlcache.New[string, *parState](ttlcache.WithTTL[string, *parState](parTTL))
	c.authCodes = ttlcache.New[string, *authCodeState](ttlcache.WithTTL[string, *authCodeState](codeTTL))
	c.authSessions = ttlcache.New[string, *authChallengeSession](ttlcache.WithTTL[string, *authChallengeSession](5 * time.Minute))

	go c.offers.Start()
	go c.cNonces.Start()
	go c.dpopNonces.Start()
	go c.tokens.Start()
	go c.dpopJTIs.Start()
	go c.replayGuard.Start()
	go c.pars.Start()
	go c.authCodes.Start()
	go c.authSessions.Start()

	c.log.Info("initialized", "kid", c.kid, "identifier", cfg.IssuerServer.Identifier)

	return c, nil
}

// Close stops the background ttlcache janitors.
func (c *Client) Close(ctx context.Context) error {
	c.offers.Stop()
	c.cNonces.Stop()
	c.dpopNonces.Stop()
	c.tokens.Stop()
	c.dpopJTIs.Stop()
	c.replayGuard.Stop()
	c.pars.Stop()
	c.authCodes.Stop()
	c.authSessions.Stop()
	return nil
}

func (c *Client) initSoftwareSigner() error {
	keyBytes, err := os.ReadFile(c.cfg.IssuerServer.SigningKeyPath)
	if err != nil {
		return fmt.Errorf("apiv1: reading signing key: %w", err)
	}

	privateKey, err := parsePrivateKey(keyBytes)
	if err != nil {
		return fmt.Errorf("apiv1: parsing signing key: %w", err)
	}
	c.privateKey = privateKey

	switch key := privateKey.(type) {
	case *ecdsa.PrivateKey:
		c.publicKey = &key.PublicKey
		c.publicJWK = &jose.JWK{
			Kty: "EC",
			Crv: key.Curve.Params().Name,
			X:   base64.RawURLEncoding.EncodeToString(key.X.Bytes()),
			Y:   base64.RawURLEncoding.EncodeToString(key.Y.Bytes()),
		}
	case *rsa.PrivateKey:
		c.publicKey = &key.PublicKey
		c.publicJWK = &jose.JWK{
			Kty: "RSA",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}
	default:
		return fmt.Errorf("apiv1: unsupported signing key type %T", privateKey)
	}

	c.signingMethod = jose.GetSigningMethodFromKey(privateKey)

	thumbprint, err := c.publicJWK.Thumbprint("sha-256")
	if err != nil {
		return fmt.Errorf("apiv1: computing signing key thumbprint: %w", err)
	}
	c.kid = thumbprint
	c.publicJWK.Kid = c.kid
	c.publicJWK.Alg = c.signingMethod.Alg()

	return nil
}

// parsePrivateKey attempts every common PEM private-key encoding in turn:
// PKCS8 first since it covers both RSA and ECDSA, then the format-specific
// fallbacks.
func parsePrivateKey(keyBytes []byte) (any, error) {
	block, _ := pem.Decode(keyBytes)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := jwt.ParseECPrivateKeyFromPEM(keyBytes); err == nil {
		return key, nil
	}
	if key, err := jwt.ParseRSAPrivateKeyFromPEM(keyBytes); err == nil {
		return key, nil
	}

	return nil, errors.New("unable to parse private key in any supported format")
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

// signJWT signs with this process's own key, regardless of the requested
// Signer.Kind — this process is the only signer in the demo trio.
func (c *Client) signJWT(ctx context.Context, req callback.SignRequest) (string, error) {
	header := map[string]any{"kid": c.kid}
	for k, v := range req.Header {
		header[k] = v
	}
	return jose.MakeJWT(header, req.Payload, c.signingMethod, c.privateKey)
}

// verifyJWT checks a JWT signed by this same process's key (access tokens,
// signed metadata) or, when the JOSE header carries an embedded "jwk"
// (DPoP proofs, proof-of-possession JWTs), by that embedded public key.
func (c *Client) verifyJWT(ctx context.Context, req callback.VerifyRequest) (callback.VerifyResult, error) {
	var publicKey any
	var signerJWK *jose.JWK

	if jwkRaw, ok := req.Header["jwk"]; ok {
		parsed, err := decodeHeaderJWK(jwkRaw)
		if err != nil {
			return callback.VerifyResult{}, err
		}
		signerJWK = parsed
		switch parsed.Kty {
		case "RSA":
			key, err := rsaPublicKeyFromJWK(parsed)
			if err != nil {
				return callback.VerifyResult{}, err
			}
			publicKey = key
		default:
			key, err := ecdsaPublicKeyFromJWK(parsed)
			if err != nil {
				return callback.VerifyResult{}, err
			}
			publicKey = key
		}
	} else {
		publicKey = c.publicKey
	}

	_, err := jwt.Parse(req.Compact, func(t *jwt.Token) (any, error) {
		return publicKey, nil
	})
	if err != nil {
		return callback.VerifyResult{Valid: false}, nil
	}

	return callback.VerifyResult{Valid: true, SignerJWK: signerJWK}, nil
}
