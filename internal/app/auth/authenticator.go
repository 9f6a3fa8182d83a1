/*
Package auth implements credential hashing and token issuance for the chat server.

Credentials are hashed with bcrypt and identity tokens are signed JWTs. The
coordination core consumes this package through the chat.Authenticator
interface and never inspects hashes or tokens itself.
*/
package auth

import (
	"golang.org/x/crypto/bcrypt"

	"pulsechat/internal/pkg/auth/jwt"
)

// Service hashes credentials and issues signed identity tokens.
type Service struct {
	secret string
}

// NewService returns a Service signing tokens with the given secret.
func NewService(secret string) *Service {
	return &Service{secret: secret}
}

// Hash returns the bcrypt hash of the given credential.
func (s *Service) Hash(credential string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare checks the given credential against a stored hash. A non-nil error
// means the credential does not match.
func (s *Service) Compare(hash, credential string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(credential))
}

// IssueToken generates a signed identity token for the given user.
func (s *Service) IssueToken(userID, username string) (string, error) {
	payload := &jwt.Payload{
		UserID:   userID,
		Username: username,
	}

	return jwt.GenerateToken(payload, s.secret, jwt.IdentityExpiration)
}
