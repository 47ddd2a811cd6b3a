package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pesio-ai/be-dms-workflow/internal/platform/errors"
)

func TestHashAndVerify(t *testing.T) {
	svc := NewCredentialService(bcrypt.MinCost)

	hash, err := svc.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, svc.Verify(hash, "correct horse battery staple"))
	assert.False(t, svc.Verify(hash, "wrong password"))
	assert.False(t, svc.Verify("not-a-bcrypt-hash", "correct horse battery staple"))
}

func TestHashRejectsShortPasswords(t *testing.T) {
	svc := NewCredentialService(bcrypt.MinCost)

	_, err := svc.Hash("short")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

func TestInvalidCostFallsBackToDefault(t *testing.T) {
	svc := NewCredentialService(-1)
	assert.Equal(t, bcrypt.DefaultCost, svc.cost)
}
