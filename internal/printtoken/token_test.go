package printtoken

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParse(t *testing.T) {
	svc, err := NewService("secret", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := svc.Sign("42", map[string]string{"amount": "250,000"}, false)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.TemplateID)
	assert.Equal(t, "250,000", claims.Data["amount"])
	assert.False(t, claims.Sample)
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	svc, err := NewService("secret", time.Minute)
	require.NoError(t, err)
	token, _, err := svc.Sign("42", nil, true)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Parse(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	other, err := NewService("other", time.Minute)
	require.NoError(t, err)
	_, err = other.Parse(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	_, err = other.Parse("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewServiceValidatesInput(t *testing.T) {
	_, err := NewService(" ", time.Minute)
	assert.Error(t, err)
	_, err = NewService("secret", 0)
	assert.Error(t, err)
}
