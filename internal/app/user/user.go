/*
Package user contains the core data structures for user identity and presence.

It defines the User profile kept by the directory, the online/offline presence
flag, and the finer-grained status enum users can set themselves.
*/
package user

import "time"

// Status is the user-selectable availability state. It is distinct from the
// Online flag: Online is presence (set only on connect/disconnect), Status is
// what the user chooses to display.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// User represents a registered chat participant. Users are never deleted;
// presence fields are mutated on connect, disconnect, and status updates.
type User struct {
	// ID is the unique, generated identifier for the user.
	ID string `json:"id"`

	// Username is the display name. Uniqueness is not enforced, so two users
	// may share a display name.
	Username string `json:"username"`

	// CredentialHash is the opaque hashed credential. It is never serialized.
	CredentialHash string `json:"-"`

	// Online reports whether at least one session is currently bound to the user.
	Online bool `json:"online"`

	// Status is the user-selected availability state.
	Status Status `json:"status"`

	// LastSeen is stamped on every connect and disconnect.
	LastSeen time.Time `json:"lastSeen"`

	// Avatar is the URL of the user's avatar image.
	Avatar string `json:"avatar"`
}
