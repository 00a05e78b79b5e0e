package oauth2

// Authorization Challenge error codes (draft-ietf-oauth-first-party-apps).
const (
	// ErrRedirectToWeb tells the client this request cannot be completed
	// without a browser: follow AuthorizationChallengeError.RequestURI to
	// the authorization endpoint if present, otherwise fall back to a
	// regular PAR/plain authorization request.
	ErrRedirectToWeb = "redirect_to_web"

	// ErrInsufficientAuthorization tells the client to first complete the
	// OID4VP presentation named in AuthorizationChallengeError.Presentation,
	// then retry the authorization_challenge_endpoint with the same
	// AuthSession to redeem an authorization_code.
	ErrInsufficientAuthorization = "insufficient_authorization"
)

// AuthorizationChallengeError is the error response body of the
// authorization_challenge_endpoint. Beyond the usual OAuth2 error/
// error_description pair, it carries the extra fields redirect_to_web and
// insufficient_authorization add: a request_uri to redirect the user agent
// to, or a presentation request plus the auth_session that resumes once
// that presentation completes.
type AuthorizationChallengeError struct {
	Err              string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`

	// RequestURI accompanies ErrRedirectToWeb: the PAR request_uri to
	// present at the authorization endpoint. Absent, it means the client
	// should build its own authorization request instead (PAR or plain).
	RequestURI string `json:"request_uri,omitempty"`

	// Presentation and AuthSession accompany ErrInsufficientAuthorization:
	// an OID4VP request URL the wallet must present against, and the
	// session identifier to present back to this same endpoint afterward.
	Presentation string `json:"presentation,omitempty"`
	AuthSession  string `json:"auth_session,omitempty"`
}

func (e *AuthorizationChallengeError) Error() string {
	return e.Err
}
