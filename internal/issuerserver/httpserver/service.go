// Package httpserver exposes internal/issuerserver/apiv1 over HTTP: the
// credential-issuer and authorization-server well-known endpoints, PAR,
// token, credential, notification, and a demo-only offer endpoint that
// hands out a CredentialOfferParameters by value or by reference.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"vc/internal/issuerserver/apiv1"
	"vc/pkg/configuration"
	"vc/pkg/httphelpers"
	"vc/pkg/logger"
	"vc/pkg/openid4vci"

	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v3"
)

// Service is the HTTP front end of the demo issuer / AS / RS trio.
type Service struct {
	cfg    *configuration.Cfg
	log    *logger.Log
	apiv1  *apiv1.Client
	helper *httphelpers.Client
	gin    *gin.Engine
	server *http.Server

	// offersByReference hosts credential offers minted with by_reference so
	// a wallet can resolve credential_offer_uri, supplementing the by-value
	// construction endpointCreateOffer also supports.
	offersByReference *ttlcache.Cache[string, *openid4vci.CredentialOfferParameters]
}

// New wires routes and starts listening in the background, mirroring the
// teacher's httpserver.New.
func New(ctx context.Context, cfg *configuration.Cfg, api *apiv1.Client, log *logger.Log) (*Service, error) {
	helper, err := httphelpers.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		log:    log,
		apiv1:  api,
		helper: helper,
		gin:    gin.New(),
		server: &http.Server{},
		offersByReference: ttlcache.New[string, *openid4vci.CredentialOfferParameters](
			ttlcache.WithTTL[string, *openid4vci.CredentialOfferParameters](30 * time.Minute),
		),
	}
	go s.offersByReference.Start()

	rgRoot, err := helper.Server.Default(ctx, s.server, s.gin, cfg.IssuerServer.APIServer)
	if err != nil {
		return nil, err
	}

	reg := func(method, path string, status int, handler func(context.Context, *gin.Context) (any, error)) {
		helper.Server.RegEndpoint(ctx, rgRoot, method, path, status, handler)
	}

	reg(http.MethodGet, "/.well-known/openid-credential-issuer", http.StatusOK, s.endpointCredentialIssuerMetadata)
	reg(http.MethodGet, "/.well-known/oauth-authorization-server", http.StatusOK, s.endpointAuthorizationServerMetadata)
	reg(http.MethodPost, "/par", http.StatusCreated, s.endpointPushedAuthorizationRequest)
	reg(http.MethodPost, "/authorization-challenge", http.StatusOK, s.endpointAuthorizationChallenge)
	reg(http.MethodGet, "/authorize", http.StatusOK, s.endpointAuthorize)
	reg(http.MethodPost, "/token", http.StatusOK, s.endpointToken)
	reg(http.MethodPost, "/credential", http.StatusOK, s.endpointCredential)
	reg(http.MethodPost, "/notification", http.StatusNoContent, s.endpointNotification)
	reg(http.MethodPost, "/offer", http.StatusCreated, s.endpointCreateOffer)
	reg(http.MethodGet, "/credential-offer/:id", http.StatusOK, s.endpointGetOfferByReference)

	go func() {
		if err := helper.Server.ListenAndServe(ctx, s.server); err != nil && err != http.ErrServerClosed {
			s.log.Error(err, "listen_and_serve")
		}
	}()

	s.log.Info("started", "addr", cfg.IssuerServer.APIServer.Addr)

	return s, nil
}

// Close shuts the HTTP server down.
func (s *Service) Close(ctx context.Context) error {
	s.offersByReference.Stop()
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
