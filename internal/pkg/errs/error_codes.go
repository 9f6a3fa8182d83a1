/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1002
)

// 2xxx: Room and Directory Errors
const (
	// ErrRoomNotFound indicates that the referenced room id does not exist in the catalog.
	ErrRoomNotFound = 2001

	// ErrUserNotFound indicates that the referenced user id does not exist in the directory.
	ErrUserNotFound = 2002
)

// 3xxx: Authentication Errors
const (
	// ErrInvalidCredentials indicates that login failed. It deliberately does not
	// distinguish between an unknown username and a wrong credential.
	ErrInvalidCredentials = 3001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
