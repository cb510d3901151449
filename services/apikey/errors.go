package apikey

import "errors"

// Reject reasons for the verification pipeline. Callers must collapse the
// unauthenticated group into one externally visible result; the reasons stay
// distinguishable internally for logs and metrics only.
var (
	// Unauthenticated group: indistinguishable to an external observer.
	ErrKeyNotProvided = errors.New("api key not provided")
	ErrMalformedKey   = errors.New("api key is malformed")
	ErrKeyNotFound    = errors.New("api key not found")
	ErrSecretMismatch = errors.New("api key secret mismatch")

	// Forbidden group: surfaced only after the secret matched.
	ErrKeyInactive   = errors.New("api key is inactive")
	ErrKeyExpired    = errors.New("api key is expired")
	ErrMissingScopes = errors.New("api key missing required scopes")
)

// Infrastructure-class errors, never part of the verification reject
// taxonomy.
var (
	// ErrDuplicateKey reports an id or key_id collision on create.
	ErrDuplicateKey = errors.New("api key already exists")

	// ErrInvalidInput reports invalid creation or update parameters.
	ErrInvalidInput = errors.New("invalid api key input")
)

// IsUnauthenticated reports whether err belongs to the reject group that maps
// to a 401-equivalent result.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrKeyNotProvided) ||
		errors.Is(err, ErrMalformedKey) ||
		errors.Is(err, ErrKeyNotFound) ||
		errors.Is(err, ErrSecretMismatch)
}

// IsForbidden reports whether err belongs to the reject group that maps to a
// 403-equivalent result.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrKeyInactive) ||
		errors.Is(err, ErrKeyExpired) ||
		errors.Is(err, ErrMissingScopes)
}

// IsReject reports whether err is any verification reject reason, as opposed
// to an infrastructure failure.
func IsReject(err error) bool {
	return IsUnauthenticated(err) || IsForbidden(err)
}
