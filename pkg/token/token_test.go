package token

import (
	"testing"
	"time"

	"go-screening-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerixRoundTrip(t *testing.T) {
	m := NewManager("verix-secret", "app-secret")
	id := uuid.New()

	tok, err := m.IssueVerix(id, 3, time.Now().Add(time.Hour))
	require.NoError(t, err)

	gotID, ver, err := m.ParseVerix(tok)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, 3, ver)
}

func TestVerixExpiredKeepsClaims(t *testing.T) {
	m := NewManager("verix-secret", "app-secret")
	id := uuid.New()
	tok, err := m.IssueVerix(id, 1, time.Now().Add(time.Hour))
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	gotID, ver, err := m.ParseVerix(tok)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
	assert.Equal(t, id, gotID)
	assert.Equal(t, 1, ver)
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	m := NewManager("shared", "shared")

	appTok, err := m.IssueApplication(42, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, _, err = m.ParseVerix(appTok)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	verixTok, err := m.IssueVerix(uuid.New(), 1, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = m.ParseApplication(verixTok)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	jobID, err := m.ParseApplication(appTok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), jobID)
}

func TestTamperedToken(t *testing.T) {
	tok, err := NewManager("a", "a").IssueVerix(uuid.New(), 1, time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, _, err = NewManager("b", "b").ParseVerix(tok)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	_, _, err = NewManager("a", "a").ParseVerix(tok + "x")
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestMissingSecret(t *testing.T) {
	_, err := NewManager("", "").IssueApplication(1, time.Now().Add(time.Hour))
	assert.Error(t, err)
}
