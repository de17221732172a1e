package auth

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAuth(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService("Victor", "VictorVic", "test-secret", true, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestLoginWithSeededCredential(t *testing.T) {
	svc := newTestAuth(t)

	user, token, err := svc.Login("Victor", "VictorVic")
	require.NoError(t, err)
	assert.Equal(t, "Victor", user.Username)
	assert.True(t, user.IsAdmin)
	assert.Equal(t, StartingBalance, user.Balance)
	assert.NotEmpty(t, token)
}

func TestLoginRejectsWrongCredentials(t *testing.T) {
	svc := newTestAuth(t)

	_, _, err := svc.Login("Victor", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login("Mallory", "VictorVic")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestDeriveUserIDIsStableAndV4Shaped(t *testing.T) {
	first := DeriveUserID("Victor")
	second := DeriveUserID("Victor")
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, DeriveUserID("victor"))

	v4 := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	assert.Regexp(t, v4, first)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTestAuth(t)
	user, token, err := svc.Login("Victor", "VictorVic")
	require.NoError(t, err)

	subject, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, subject)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	svc := newTestAuth(t)
	_, token, err := svc.Login("Victor", "VictorVic")
	require.NoError(t, err)

	other, err := NewService("Victor", "VictorVic", "other-secret", true, zap.NewNop())
	require.NoError(t, err)

	_, err = other.ParseToken(token)
	assert.Error(t, err)
}
