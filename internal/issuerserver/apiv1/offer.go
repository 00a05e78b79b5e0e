package apiv1

import (
	"context"
	"fmt"

	"vc/pkg/openid4vci"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// CreateOfferRequest describes what an out-of-band caller (a demo UI, a
// test) wants offered to a wallet.
type CreateOfferRequest struct {
	CredentialConfigurationIDs []string
	TXCode                     string // empty means no transaction code required
}

// CreateOfferReply carries the offer, ready to be QR-encoded or hosted
// by reference.
type CreateOfferReply struct {
	Offer               *openid4vci.CredentialOfferParameters
	PreAuthorizedCode   string
	CredentialOfferUUID string
}

// CreateOffer mints a pre-authorized_code grant and stores the associated
// offer state until it is redeemed at the token endpoint or expires.
func (c *Client) CreateOffer(ctx context.Context, req *CreateOfferRequest) (*CreateOfferReply, error) {
	if len(req.CredentialConfigurationIDs) == 0 {
		return nil, fmt.Errorf("apiv1: at least one credential_configuration_id is required")
	}

	codeBytes, err := c.generateRandom(ctx, 32)
	if err != nil {
		return nil, fmt.Errorf("apiv1: generating pre-authorized_code: %w", err)
	}
	preAuthorizedCode := fmt.Sprintf("%x", codeBytes)

	grant := openid4vci.GrantPreAuthorizedCode{
		PreAuthorizedCode: preAuthorizedCode,
	}
	if req.TXCode != "" {
		grant.TXCode = openid4vci.TXCode{InputMode: "numeric", Length: len(req.TXCode), Description: "Enter the code shown on screen"}
	}

	offer := &openid4vci.CredentialOfferParameters{
		CredentialIssuer:           c.cfg.IssuerServer.Identifier,
		CredentialConfigurationIDs: req.CredentialConfigurationIDs,
		Grants: map[string]any{
			"urn:ietf:params:oauth:grant-type:pre-authorized_code": grant,
		},
	}

	c.offers.Set(preAuthorizedCode, &offerState{
		credentialConfigurationIDs: req.CredentialConfigurationIDs,
		txCode:                     req.TXCode,
	}, ttlcache.DefaultTTL)

	return &CreateOfferReply{
		Offer:               offer,
		PreAuthorizedCode:   preAuthorizedCode,
		CredentialOfferUUID: uuid.NewString(),
	}, nil
}
