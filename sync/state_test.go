// ABOUTME: Tests for the signed OAuth state parameter
// ABOUTME: Round trip, expiry, tampering, and algorithm pinning
package sync

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestStateRoundTrip(t *testing.T) {
	s, err := NewStateSigner(testSecret, fixedClock(testNow))
	require.NoError(t, err)

	state, err := s.Issue("user-1")
	require.NoError(t, err)

	userID, err := s.Verify(state)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	other, err := s.Issue("user-1")
	require.NoError(t, err)
	assert.NotEqual(t, state, other, "each state carries a unique id")
}

func TestStateExpires(t *testing.T) {
	now := testNow
	s, err := NewStateSigner(testSecret, func() time.Time { return now })
	require.NoError(t, err)

	state, err := s.Issue("user-1")
	require.NoError(t, err)

	now = now.Add(StateTTL + time.Second)
	_, err = s.Verify(state)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateRejectsTampering(t *testing.T) {
	s, err := NewStateSigner(testSecret, fixedClock(testNow))
	require.NoError(t, err)
	other, err := NewStateSigner([]byte(strings.Repeat("x", 32)), fixedClock(testNow))
	require.NoError(t, err)

	forged, err := other.Issue("user-1")
	require.NoError(t, err)

	_, err = s.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = s.Verify("")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = s.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateRejectsUnsignedToken(t *testing.T) {
	s, err := NewStateSigner(testSecret, fixedClock(testNow))
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    "dayplan",
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Minute)),
	})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = s.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateSignerRequiresLongSecret(t *testing.T) {
	_, err := NewStateSigner([]byte("short"), nil)
	assert.Error(t, err)
}
