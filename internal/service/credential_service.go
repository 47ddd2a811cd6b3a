package service

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/pesio-ai/be-dms-workflow/internal/platform/errors"
)

const minPasswordLength = 8

// CredentialService hashes and verifies user credentials. It replaces the
// save-hooks the legacy data model carried; the user-management collaborator
// calls it explicitly.
type CredentialService struct {
	cost int
}

// NewCredentialService creates a CredentialService with the given bcrypt
// cost; values below the bcrypt minimum fall back to the default cost.
func NewCredentialService(cost int) *CredentialService {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &CredentialService{cost: cost}
}

// Hash derives a storable hash from a plaintext password.
func (s *CredentialService) Hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", errors.InvalidInput("password", "must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to hash password")
	}
	return string(hash), nil
}

// Verify reports whether password matches the stored hash.
func (s *CredentialService) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
