package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("secret", 6*time.Hour)
	p := &Principal{ID: "u1", Role: RoleAdmin, Username: "alice", FullName: "Alice A"}

	tok, err := m.Issue(p)
	require.NoError(t, err)

	got, err := m.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestTokenExpiry(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewTokenManager("secret", 6*time.Hour)
	m.Now = func() time.Time { return issued }

	tok, err := m.Issue(&Principal{ID: "u1", Role: RoleUser})
	require.NoError(t, err)

	m.Now = func() time.Time { return issued.Add(5 * time.Hour) }
	_, err = m.Verify(tok)
	assert.NoError(t, err)

	m.Now = func() time.Time { return issued.Add(7 * time.Hour) }
	_, err = m.Verify(tok)
	assert.Error(t, err, "token past its TTL must be rejected")
}

func TestTokenWrongSecret(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	tok, err := m.Issue(&Principal{ID: "u1", Role: RoleUser})
	require.NoError(t, err)

	other := NewTokenManager("different", time.Hour)
	_, err = other.Verify(tok)
	assert.Error(t, err)
}

func TestTokenGarbage(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	_, err := m.Verify("not-a-token")
	assert.Error(t, err)
}
