// ABOUTME: Signed OAuth state parameter for the Google connect flow
// ABOUTME: Issues and verifies short-lived HS256 tokens that bind the callback to a user
package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

const (
	// StateTTL bounds how long a user has to finish the consent screen.
	StateTTL = 10 * time.Minute

	stateIssuer     = "dayplan"
	minSecretLength = 32
)

// StateSigner issues and verifies OAuth state values.
type StateSigner struct {
	secret []byte
	clock  func() time.Time
}

// NewStateSigner creates a signer. The secret must be at least 32 bytes.
func NewStateSigner(secret []byte, clock func() time.Time) (*StateSigner, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("state secret must be at least %d bytes", minSecretLength)
	}
	if clock == nil {
		clock = time.Now
	}
	return &StateSigner{secret: secret, clock: clock}, nil
}

// Issue returns a signed state carrying userID.
func (s *StateSigner) Issue(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user id cannot be empty")
	}

	now := s.clock()
	claims := jwt.RegisteredClaims{
		Issuer:    stateIssuer,
		Subject:   userID,
		ID:        ulid.Make().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(StateTTL)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// Verify checks a state's signature and expiry and returns its user id.
func (s *StateSigner) Verify(state string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(state, &claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidState
	}
	return claims.Subject, nil
}
