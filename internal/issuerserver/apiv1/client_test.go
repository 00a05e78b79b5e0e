package apiv1

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"vc/pkg/configuration"
	"vc/pkg/logger"
	"vc/pkg/oauth2"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	dir := t.TempDir()
	keyPath := filepath.Join(dir, "signing_key.pem")
	require.NoError(t, os.WriteFile(keyPath, pemBytes, 0o600))

	cfg := &configuration.Cfg{
		IssuerServer: configuration.IssuerServer{
			Identifier:                  "https://issuer.example.com",
			SigningKeyPath:              keyPath,
			AccessTokenTTLSeconds:       300,
			CNonceTTLSeconds:            300,
			ClockSkewSeconds:            60,
			PARRequestURITTLSeconds:     60,
			AuthorizationCodeTTLSeconds: 60,
			Clients: oauth2.Clients{
				"wallet-1": {
					Type:        "public",
					RedirectURI: "https://wallet.example.com/callback",
					Scopes:      []string{"example_credential"},
				},
			},
		},
	}

	log := logger.NewSimple("apiv1_test")
	client, err := New(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	return client
}
