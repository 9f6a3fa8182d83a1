package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the JWT claims issued to authenticated chat users.
// It carries the standard claims required by the JWT specification plus the
// identity fields the client presents when reconnecting.
type Payload struct {
	// StandardClaims embeds the standard JWT fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer), used for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// UserID is the unique identifier of the authenticated user.
	UserID string `json:"userId"`

	// Username is the display name bound to the token at issue time.
	Username string `json:"username"`
}
