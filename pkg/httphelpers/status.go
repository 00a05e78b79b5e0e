package httphelpers

import (
	"context"
	"net/http"
	"strings"
	"time"
	"vc/pkg/oauth2"
	"vc/pkg/oid4vcierr"
	"vc/pkg/openid4vci"
)

// StatusCode maps an error returned by a handler to an HTTP status code.
func StatusCode(ctx context.Context, err error) int {
	_, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	switch e := err.(type) {
	case *openid4vci.Error:
		return openid4vci.StatusCode(e)
	case *oid4vcierr.Error:
		if e.HTTPStatus != 0 {
			return e.HTTPStatus
		}
		return inferStatusFromErrorTitle(e.Title)
	case *oauth2.AuthorizationChallengeError:
		switch e.Err {
		case oauth2.ErrInsufficientAuthorization:
			return http.StatusUnauthorized
		default:
			return http.StatusBadRequest
		}
	}

	return inferStatusFromErrorString(err.Error())
}

// inferStatusFromErrorTitle maps error titles to HTTP status codes
func inferStatusFromErrorTitle(title string) int {
	title = strings.ToLower(title)

	switch {
	case contains(title, "not_found"):
		return http.StatusNotFound
	case contains(title, "unauthorized", "authentication"):
		return http.StatusUnauthorized
	case contains(title, "forbidden", "access_denied"):
		return http.StatusForbidden
	case contains(title, "invalid", "validation", "bad_request", "malformed"):
		return http.StatusBadRequest
	case contains(title, "conflict", "already_exists", "duplicate"):
		return http.StatusConflict
	case contains(title, "internal_server_error", "server_error"):
		return http.StatusInternalServerError
	case contains(title, "not_implemented", "unsupported"):
		return http.StatusNotImplemented
	case contains(title, "timeout", "unavailable"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// inferStatusFromErrorString infers HTTP status code from error message
func inferStatusFromErrorString(errStr string) int {
	switch {
	case contains(errStr, "not found", "missing"):
		return http.StatusNotFound
	case contains(errStr, "unauthorized", "authentication", "token"):
		return http.StatusUnauthorized
	case contains(errStr, "forbidden", "access denied", "permission"):
		return http.StatusForbidden
	case contains(errStr, "invalid", "validation", "malformed", "bad request"):
		return http.StatusBadRequest
	case contains(errStr, "conflict", "already exists", "duplicate"):
		return http.StatusConflict
	case contains(errStr, "unsupported", "not implemented"):
		return http.StatusNotImplemented
	case contains(errStr, "timeout", "deadline"):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// contains checks if any of the substrings appear in the error string (case-insensitive)
func contains(errStr string, substrings ...string) bool {
	errLower := strings.ToLower(errStr)
	for _, substr := range substrings {
		if strings.Contains(errLower, strings.ToLower(substr)) {
			return true
		}
	}
	return false
}
