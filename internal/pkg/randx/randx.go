/*
Package randx provides functions for generating unique identifiers.

It is used to mint user ids, message ids, and connection ids, all standard
UUID v4 strings.
*/
package randx

import (
	"github.com/google/uuid"
)

// UserID generates a unique identifier for a newly registered user.
func UserID() string {
	return uuid.New().String()
}

// MessageID generates a unique identifier for a message.
func MessageID() string {
	return uuid.New().String()
}

// ConnID generates a unique identifier for a live connection.
func ConnID() string {
	return uuid.New().String()
}
