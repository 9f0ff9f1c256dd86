package crossapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	s := NewSigner("shared-secret")
	token, err := s.Mint("uid-1", "fitness")
	require.NoError(t, err)

	uid, app, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", uid)
	assert.Equal(t, "fitness", app)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	s := NewSigner("shared-secret")
	token, err := s.Mint("uid-1", "fitness")
	require.NoError(t, err)

	_, _, err = s.Verify(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a := NewSigner("secret-a")
	b := NewSigner("secret-b")
	token, err := a.Mint("uid-1", "fitness")
	require.NoError(t, err)

	_, _, err = b.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	now := time.Now()
	s := NewSigner("shared-secret")
	s.clock = func() time.Time { return now }
	token, err := s.Mint("uid-1", "fitness")
	require.NoError(t, err)

	s.clock = func() time.Time { return now.Add(DefaultTTL + time.Minute) }
	_, _, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
