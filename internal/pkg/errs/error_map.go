/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Room and Directory Errors
	ErrRoomNotFound: {Code: ErrRoomNotFound, Message: "Room not found", Status: http.StatusNotFound},
	ErrUserNotFound: {Code: ErrUserNotFound, Message: "User not found", Status: http.StatusNotFound},

	// 3xxx: Authentication Errors
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Invalid credentials"},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
