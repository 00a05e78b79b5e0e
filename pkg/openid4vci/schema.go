package openid4vci

import (
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

// credentialOfferSchema is a minimal JSON Schema for CredentialOfferParameters,
// requiring credential_issuer and credential_configuration_ids. An offer in
// the draft-11 shape, which lists its credentials under "credentials"
// instead, does not pass it. grants is only checked to be an object or null
// (what a nil Grants map marshals to), since its shape is grant-specific and
// callers type-switch on it already.
const credentialOfferSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["credential_issuer", "credential_configuration_ids"],
  "properties": {
    "credential_issuer": {"type": "string", "minLength": 1},
    "credential_configuration_ids": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string"}
    },
    "grants": {"type": ["object", "null"]}
  }
}`

// credentialIssuerMetadataSchema covers the credential-issuer metadata
// fields this module reads (see metadata.go); display and
// credential_configurations_supported are left untyped since their shape
// depends on the credential format being described.
const credentialIssuerMetadataSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["credential_issuer", "credential_endpoint"],
  "properties": {
    "credential_issuer": {"type": "string", "minLength": 1},
    "credential_endpoint": {"type": "string", "minLength": 1},
    "notification_endpoint": {"type": "string"},
    "deferred_credential_endpoint": {"type": "string"},
    "authorization_servers": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	schemaOnce       sync.Once
	compiledOffer    *jsonschema.Schema
	compiledMetadata *jsonschema.Schema
	schemaInitErr    error
)

func compileSchemas() {
	compiler := jsonschema.NewCompiler()

	offer, err := compiler.Compile([]byte(credentialOfferSchema))
	if err != nil {
		schemaInitErr = fmt.Errorf("openid4vci: compiling credential offer schema: %w", err)
		return
	}
	compiledOffer = offer

	metadata, err := compiler.Compile([]byte(credentialIssuerMetadataSchema))
	if err != nil {
		schemaInitErr = fmt.Errorf("openid4vci: compiling credential issuer metadata schema: %w", err)
		return
	}
	compiledMetadata = metadata
}

// ValidateCredentialOfferSchema checks a raw, already json.Unmarshal'd
// credential offer document (map[string]any or a struct round-tripped
// through json) against credentialOfferSchema, catching malformed
// by-reference offers before a direct json.Unmarshal is trusted with them.
func ValidateCredentialOfferSchema(instance any) error {
	schemaOnce.Do(compileSchemas)
	if schemaInitErr != nil {
		return schemaInitErr
	}

	result := compiledOffer.Validate(instance)
	if !result.IsValid() {
		return fmt.Errorf("openid4vci: credential offer failed schema validation: %v", result.Errors)
	}
	return nil
}

// ValidateCredentialIssuerMetadataSchema checks a raw credential-issuer
// metadata document the same way.
func ValidateCredentialIssuerMetadataSchema(instance any) error {
	schemaOnce.Do(compileSchemas)
	if schemaInitErr != nil {
		return schemaInitErr
	}

	result := compiledMetadata.Validate(instance)
	if !result.IsValid() {
		return fmt.Errorf("openid4vci: credential issuer metadata failed schema validation: %v", result.Errors)
	}
	return nil
}
