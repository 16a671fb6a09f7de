/*
Package errs provides custom error types and application-level error code
constants.

The codes identify specific business or system failures both inside the server
and in responses to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body is not valid JSON.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates the request rate exceeded the set limit.
	ErrRateLimitExceeded = 1005
)

// 2xxx: Chat Business Logic Errors
const (
	// ErrUsernameTaken indicates that another registered user already holds
	// the requested username (AlreadyExists).
	ErrUsernameTaken = 2101

	// ErrNotJoined indicates an action that requires an active joined session
	// when none exists for the caller (FailedPrecondition).
	ErrNotJoined = 2102
)

// 3xxx: Identity Errors
const (
	// ErrUnauthenticated indicates a unary call arrived without caller identity.
	ErrUnauthenticated = 3001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal server error.
	ErrUnknown = 5000
)
