package authenticator

import "errors"

var (
	// ErrDiscovery means the provider's discovery document could not be
	// fetched or parsed, or is missing a required endpoint. Fatal at
	// startup: the process must not serve traffic without it.
	ErrDiscovery = errors.New("provider discovery failed")

	// ErrTokenExchange means the code-for-token exchange was rejected or
	// returned a malformed response. The session is left unmodified.
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrMissingAuthorizationCode means the callback was invoked without a
	// code query parameter.
	ErrMissingAuthorizationCode = errors.New("authorization code is missing")

	// ErrMissingIDToken means verification was requested for a session that
	// never received an id_token.
	ErrMissingIDToken = errors.New("id_token is missing")

	// ErrVerification means the id_token failed signature, issuer or
	// audience checks.
	ErrVerification = errors.New("id_token verification failed")
)
