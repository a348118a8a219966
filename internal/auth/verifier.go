// Package auth contains the credential verifier and the identity resolver:
// the only code that turns login input into a canonical identity, and the
// only code allowed to create identity records.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/authsite/authsite/internal/store"
)

// ErrInvalidCredentials is returned when a password does not match. The web
// layer collapses it with store.ErrNotFound into one generic message so the
// response never reveals whether the email exists.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Verifier checks an email/password pair against the stored bcrypt hash.
type Verifier struct {
	Store store.Store
}

// Verify returns the identity on a match, store.ErrNotFound when no identity
// has the email, or ErrInvalidCredentials on a mismatch. An identity without
// a password hash (OAuth-only record sharing nothing with local auth) also
// fails with ErrInvalidCredentials.
func (v *Verifier) Verify(ctx context.Context, email, password string) (*store.Identity, error) {
	identity, err := v.Store.ByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if identity.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return identity, nil
}

// HashPassword derives the stored verifier for a password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
