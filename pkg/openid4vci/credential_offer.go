package openid4vci

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

// CredentialOfferParameters https://openid.net/specs/openid-4-verifiable-credential-issuance-1_0.html#name-credential-offer-parameters
type CredentialOfferParameters struct {
	CredentialIssuer           string         `json:"credential_issuer" bson:"credential_issuer" validate:"required"`
	CredentialConfigurationIDs []string       `json:"credential_configuration_ids" bson:"credential_configuration_ids" validate:"required"`
	Grants                     map[string]any `json:"grants"`
}

// Marshal marshals the CredentialOffer
func (c *CredentialOfferParameters) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// GrantAuthorizationCode authorization code grant
type GrantAuthorizationCode struct {
	IssuerState         string `json:"issuer_state" bson:"issuer_state"`
	AuthorizationServer string `json:"authorization_server,omitempty" bson:"authorization_server,omitempty"`
}

// GrantPreAuthorizedCode pre-authorized code grant
type GrantPreAuthorizedCode struct {
	PreAuthorizedCode   string `json:"pre-authorized_code" bson:"pre-authorized_code" validate:"required"`
	TXCode              TXCode `json:"tx_code,omitempty" bson:"tx_code,omitempty"`
	AuthorizationServer string `json:"authorization_server,omitempty" bson:"authorization_server,omitempty"`

	// Legacy records that this grant arrived in the draft-11 shape (a bare
	// user_pin_required boolean, normalized here into TXCode) rather than
	// draft-14's tx_code object. A wallet redeeming this grant must send the
	// end-user's code back in the legacy user_pin form field instead of
	// tx_code.
	Legacy bool `json:"-" bson:"-"`
}

// TXCode Transaction Code
type TXCode struct {
	InputMode   string `json:"input_mode" bson:"input_mode" validate:"oneof=numeric text"`
	Length      int    `json:"length"`
	Description string `json:"description"`
}

type CredentialOfferURIRequest struct {
	CredentialOfferUUID string `uri:"credential_offer_uuid" binding:"required"`
}

type CredentialOfferURIResponse struct{}

type CredentialOfferURI string

func (c *CredentialOfferURI) String() string {
	return string(*c)
}

func (c *CredentialOfferURI) QR(recoveryLevel, size int, walletURL, issuerURL string) (*QR, error) {
	u, err := url.Parse(issuerURL)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("credential_offer_uri", c.String())

	if walletURL == "" {
		walletURL = "openid-credential-offer://"
	}

	credentialOfferURL := fmt.Sprintf("%s?%s", walletURL, q.Encode())

	qrPNG, err := qrcode.Encode(credentialOfferURL, qrcode.RecoveryLevel(recoveryLevel), size)
	if err != nil {
		return nil, err
	}

	qrBase64 := base64.StdEncoding.EncodeToString(qrPNG)

	qr := &QR{
		QRBase64:           qrBase64,
		CredentialOfferURL: credentialOfferURL,
	}

	return qr, nil
}

// CredentialOffer URI
type CredentialOffer string

func (c *CredentialOffer) String() string {
	return string(*c)
}

// Unpack unpacks the CredentialOffer string into a CredentialOfferParameters
func (c *CredentialOffer) Unpack(ctx context.Context) (*CredentialOfferParameters, error) {
	_, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	u, err := url.Parse(c.String())
	if err != nil {
		return nil, err
	}

	return parseOfferPayload([]byte(u.Query().Get("credential_offer")))
}

// QR not part of the spec, for convenience
type QR struct {
	QRBase64           string `json:"qr_base64" bson:"qr_base64"`
	CredentialOfferURL string `json:"credential_offer_url" bson:"credential_offer_url"`
}

// QR returns a base64 encoded QR code, for convenience not part of the spec
func (c *CredentialOffer) QR(recoveryLevel, size int, walletURL string) (*QR, error) {
	if walletURL == "" {
		walletURL = "openid-credential-offer://"
	}

	qrURL := fmt.Sprintf("%s?%s", walletURL, c.String())

	qrPNG, err := qrcode.Encode(qrURL, qrcode.RecoveryLevel(recoveryLevel), size)
	if err != nil {
		return nil, err
	}

	qrBase64 := base64.StdEncoding.EncodeToString(qrPNG)

	qr := &QR{
		QRBase64:           qrBase64,
		CredentialOfferURL: qrURL,
	}

	return qr, nil

}

// CredentialOfferURI https://openid.net/specs/openid-4-verifiable-credential-issuance-1_0.html#name-sending-credential-offer-by-uri
func (c *CredentialOfferParameters) CredentialOfferURI() (CredentialOfferURI, error) {
	u, err := url.Parse(c.CredentialIssuer)
	if err != nil {
		return "", err
	}

	q := u.JoinPath("credential-offer", uuid.NewString())

	return CredentialOfferURI(q.String()), nil
}

func (c *CredentialOfferURI) UUID() (string, error) {
	u, err := url.Parse(c.String())
	if err != nil {
		return "", err
	}

	credentialOfferUUID := u.Path[len("/credential-offer/"):]

	return credentialOfferUUID, nil
}

// CredentialOffer creates a credential offer
func (c *CredentialOfferParameters) CredentialOffer() (CredentialOffer, error) {
	credentialOfferByte, err := c.Marshal()
	if err != nil {
		return "", err
	}

	urlValues := url.Values{
		"credential_offer": {string(credentialOfferByte)},
	}

	credentialOfferURL := urlValues.Encode()

	return CredentialOffer(credentialOfferURL), nil
}

// ParseCredentialOfferURI parses a credential offer URI to a CredentialOfferParameters
func ParseCredentialOfferURI(credentialOfferURI string) (*CredentialOfferParameters, error) {
	u, err := url.Parse(credentialOfferURI)
	if err != nil {
		return nil, err
	}

	return parseOfferPayload([]byte(u.Query().Get("credential_offer")))
}

// parseOfferPayload decodes a credential_offer JSON payload, normalizing its
// grant sub-objects from dynamic maps into typed structs, and upgrading a
// draft-11-shaped payload to the draft-14 shape the rest of this package
// assumes: a bare top-level "credentials" string array becomes
// CredentialConfigurationIDs, and a pre-authorized_code grant's legacy
// "user_pin_required" boolean becomes a TXCode (see GrantPreAuthorizedCode.Legacy).
// Ambiguous or unrecognized shapes are left as-is rather than guessed at.
func parseOfferPayload(raw []byte) (*CredentialOfferParameters, error) {
	var rawFields map[string]any
	if err := json.Unmarshal(raw, &rawFields); err != nil {
		return nil, err
	}

	offer := &CredentialOfferParameters{}
	if err := json.Unmarshal(raw, offer); err != nil {
		return nil, err
	}

	if len(offer.CredentialConfigurationIDs) == 0 {
		if credentials, ok := rawFields["credentials"].([]any); ok {
			for _, v := range credentials {
				if id, ok := v.(string); ok {
					offer.CredentialConfigurationIDs = append(offer.CredentialConfigurationIDs, id)
				}
			}
		}
	}

	if authorizationCodeGrant, ok := offer.Grants["authorization_code"]; ok {
		b, err := json.Marshal(authorizationCodeGrant)
		if err != nil {
			return nil, err
		}
		grant := &GrantAuthorizationCode{}
		if err := json.Unmarshal(b, grant); err != nil {
			return nil, err
		}
		offer.Grants["authorization_code"] = grant
	}

	if preAuthorizedCodeGrant, ok := offer.Grants["urn:ietf:params:oauth:grant-type:pre-authorized_code"]; ok {
		b, err := json.Marshal(preAuthorizedCodeGrant)
		if err != nil {
			return nil, err
		}
		grant, err := normalizePreAuthorizedCodeGrant(b)
		if err != nil {
			return nil, err
		}
		offer.Grants["urn:ietf:params:oauth:grant-type:pre-authorized_code"] = grant
	}

	return offer, nil
}

// normalizePreAuthorizedCodeGrant decodes a pre-authorized_code grant,
// translating its draft-11 "user_pin_required" boolean into the draft-14
// tx_code shape when no tx_code object was already present.
func normalizePreAuthorizedCodeGrant(raw []byte) (*GrantPreAuthorizedCode, error) {
	grant := &GrantPreAuthorizedCode{}
	if err := json.Unmarshal(raw, grant); err != nil {
		return nil, err
	}

	if grant.TXCode.InputMode != "" {
		return grant, nil
	}

	var legacy struct {
		UserPinRequired bool `json:"user_pin_required"`
	}
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, err
	}
	if legacy.UserPinRequired {
		grant.TXCode = TXCode{InputMode: "text"}
		grant.Legacy = true
	}

	return grant, nil
}
