// Command walletclient drives internal/walletclient's flow end to end
// against a credential offer: resolve, fetch metadata, acquire a token, and
// request a credential, printing the outcome to stdout. It is a test
// harness for internal/issuerserver, not a wallet UI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"vc/internal/walletclient"
	"vc/pkg/configuration"
	"vc/pkg/logger"
	"vc/pkg/openid4vci"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: walletclient <credential-offer-uri> [tx_code]")
		os.Exit(2)
	}
	offerURI := os.Args[1]
	var txCode string
	if len(os.Args) > 2 {
		txCode = os.Args[2]
	}

	cfg, err := configuration.New(ctx)
	if err != nil {
		panic(err)
	}

	log, err := logger.New("walletclient", cfg.Common.LogPath, cfg.Common.Production)
	if err != nil {
		panic(err)
	}

	client, err := walletclient.New(ctx, cfg, log.New("walletclient"))
	if err != nil {
		panic(err)
	}
	defer client.Close(ctx)

	offer, err := client.ResolveCredentialOffer(ctx, offerURI)
	if err != nil {
		panic(err)
	}

	endpoints, err := client.FetchMetadata(ctx, offer.CredentialIssuer)
	if err != nil {
		panic(err)
	}

	preAuthGrant, usesPreAuth := offer.Grants["urn:ietf:params:oauth:grant-type:pre-authorized_code"]
	var tokenReq walletclient.AcquireTokenRequest
	tokenReq.Endpoints = endpoints
	if usesPreAuth {
		code, legacy, err := preAuthorizedCodeFromGrant(preAuthGrant)
		if err != nil {
			panic(err)
		}
		tokenReq.PreAuthorizedCode = code
		tokenReq.TXCode = txCode
		tokenReq.Legacy = legacy
	} else {
		result, err := client.InitiateAuthorization(ctx, &walletclient.InitiateAuthorizationRequest{Endpoints: endpoints})
		if err != nil {
			panic(err)
		}
		if result.Flow == walletclient.AuthorizationFlowPresentationDuring {
			panic(fmt.Sprintf("authorization requires a presentation at %s (auth_session=%s) before a code is available; this CLI does not drive presentations", result.Presentation, result.AuthSession))
		}
		tokenReq.Code = result.Code
		tokenReq.CodeVerifier = result.CodeVerifier
	}

	token, err := client.AcquireToken(ctx, &tokenReq)
	if err != nil {
		panic(err)
	}

	if len(offer.CredentialConfigurationIDs) == 0 {
		panic("credential offer carries no credential_configuration_ids")
	}

	credential, err := client.RequestCredential(ctx, &walletclient.RequestCredentialRequest{
		Endpoints:                 endpoints,
		Token:                     token,
		CredentialConfigurationID: offer.CredentialConfigurationIDs[0],
		DPoPBound:                 token.TokenType == "DPoP",
	})
	if err != nil {
		panic(err)
	}

	if err := client.Notify(ctx, endpoints, credential.NotificationID, "credential_accepted", ""); err != nil {
		log.Error(err, "notification")
	}

	out, err := json.MarshalIndent(credential, "", "  ")
	if err != nil {
		panic(err)
	}
	fmt.Println(string(out))
}

// preAuthorizedCodeFromGrant reads the pre-authorized_code value and the
// draft-11 Legacy marker out of a CredentialOfferParameters.Grants entry,
// which arrives as a concrete *openid4vci.GrantPreAuthorizedCode when the
// offer came from ParseCredentialOfferURI, or as a generic map[string]any
// when it came from json.Unmarshal'ing a fetched credential_offer_uri
// reference directly.
func preAuthorizedCodeFromGrant(grant any) (code string, legacy bool, err error) {
	switch g := grant.(type) {
	case *openid4vci.GrantPreAuthorizedCode:
		return g.PreAuthorizedCode, g.Legacy, nil
	case openid4vci.GrantPreAuthorizedCode:
		return g.PreAuthorizedCode, g.Legacy, nil
	case map[string]any:
		code, _ := g["pre-authorized_code"].(string)
		if code == "" {
			return "", false, fmt.Errorf("malformed pre-authorized_code grant")
		}
		legacy, _ := g["user_pin_required"].(bool)
		return code, legacy, nil
	default:
		return "", false, fmt.Errorf("unrecognized pre-authorized_code grant type %T", grant)
	}
}
