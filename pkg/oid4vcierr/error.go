// Package oid4vcierr implements a structured error taxonomy: structured
// values for every failure the demo issuer/wallet adapters surface, plus an
// RFC 7807 problem+json rendering of transport-level failures the
// openid4vci/oauth2 core itself never produces.
package oid4vcierr

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/moogar0880/problems"
)

// Error is the generic structured error carried by the demo HTTP adapters,
// with an explicit HTTPStatus so StatusCode doesn't need to re-infer it from
// Title.
type Error struct {
	Title      string `json:"title"`
	Err        any    `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("error: [%s] %+v", e.Title, e.Err)
	}
	return fmt.Sprintf("error: [%s]", e.Title)
}

// NewError builds an Error carrying only a title.
func NewError(title string) *Error {
	return &Error{Title: title}
}

// NewErrorDetails builds an Error carrying a title and arbitrary details.
func NewErrorDetails(title string, details any) *Error {
	return &Error{Title: title, Err: details}
}

// NewErrorWithStatus builds an Error with an explicit HTTP status.
func NewErrorWithStatus(title string, status int) *Error {
	return &Error{Title: title, HTTPStatus: status}
}

// NewErrorDetailsWithStatus builds an Error with details and an explicit HTTP status.
func NewErrorDetailsWithStatus(title string, details any, status int) *Error {
	return &Error{Title: title, Err: details, HTTPStatus: status}
}

// NewErrorFromError converts an arbitrary error into an *Error, recognizing
// json and go-playground/validator failures; there are no persistence-layer
// cases to recognize since this library has no storage layer of its own.
func NewErrorFromError(err error) *Error {
	if err == nil {
		return nil
	}

	if e, ok := err.(*Error); ok {
		return e
	}

	if jsonUnmarshalTypeError, ok := err.(*json.UnmarshalTypeError); ok {
		return &Error{Title: "json_type_error", Err: formatJSONUnmarshalTypeError(jsonUnmarshalTypeError), HTTPStatus: 400}
	}
	if jsonSyntaxError, ok := err.(*json.SyntaxError); ok {
		return &Error{Title: "json_syntax_error", Err: map[string]any{"position": jsonSyntaxError.Offset, "error": jsonSyntaxError.Error()}, HTTPStatus: 400}
	}
	if validatorErr, ok := err.(validator.ValidationErrors); ok {
		return &Error{Title: "validation_error", Err: formatValidationErrors(validatorErr), HTTPStatus: 400}
	}

	return &Error{Title: "internal_server_error", Err: err.Error(), HTTPStatus: 500}
}

func formatValidationErrors(err validator.ValidationErrors) []map[string]any {
	v := make([]map[string]any, 0, len(err))
	for _, e := range err {
		field := e.Namespace()
		if splits := strings.SplitN(field, ".", 2); len(splits) == 2 {
			field = splits[1]
		}
		v = append(v, map[string]any{
			"field":           e.Field(),
			"namespace":       field,
			"type":            e.Kind().String(),
			"validation":      e.Tag(),
			"validationParam": e.Param(),
			"value":           e.Value(),
		})
	}
	return v
}

func formatJSONUnmarshalTypeError(err *json.UnmarshalTypeError) []map[string]any {
	return []map[string]any{
		{
			"field":    err.Field,
			"expected": err.Type.Kind().String(),
			"actual":   err.Value,
		},
	}
}

// Problem404 renders an RFC 7807 problem+json body for unmatched routes.
func Problem404() *problems.Problem {
	return problems.NewStatusProblem(404)
}

// Problem renders an RFC 7807 problem+json body for an arbitrary HTTP status.
func Problem(status int) *problems.Problem {
	return problems.NewStatusProblem(status)
}
