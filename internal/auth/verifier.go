// Package auth decides whether an inbound bearer credential may use the
// gateway. A token is accepted when it equals the configured static
// secret, or when a delegated identity verifier vouches for it.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthorized is the only error Authorize returns. Causes are
	// wrapped for logging but never change the outcome.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMissingCredential means the header was absent or not "Bearer <token>".
	ErrMissingCredential = errors.New("missing bearer credential")
	// ErrNoIdentityBackend is returned by Deny for every token.
	ErrNoIdentityBackend = errors.New("no identity verifier configured")
)

// IdentityVerifier checks a token against an external identity service.
// No claims are consumed; success or failure is all that matters.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) error
}

// Deny rejects every token. It stands in when no identity backend is set.
type Deny struct{}

func (Deny) Verify(context.Context, string) error {
	return ErrNoIdentityBackend
}

// Verifier authorizes bearer credentials against a static secret and a delegated verifier.
type Verifier struct {
	staticSecret string
	delegated    IdentityVerifier
}

// NewVerifier builds a verifier. An empty staticSecret disables the
// shared-secret path; a nil delegated verifier rejects everything else.
func NewVerifier(staticSecret string, delegated IdentityVerifier) *Verifier {
	if delegated == nil {
		delegated = Deny{}
	}
	return &Verifier{staticSecret: staticSecret, delegated: delegated}
}

// Authorize validates a raw Authorization header value. It returns nil or
// an error matching ErrUnauthorized.
func (v *Verifier) Authorize(ctx context.Context, header string) error {
	token, ok := BearerToken(header)
	if !ok {
		return fmt.Errorf("%w: %w", ErrUnauthorized, ErrMissingCredential)
	}

	// trusted service-to-service traffic never reaches the identity backend
	if v.staticSecret != "" && subtle.ConstantTimeCompare([]byte(token), []byte(v.staticSecret)) == 1 {
		return nil
	}

	if err := v.delegated.Verify(ctx, token); err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return nil
}

// BearerToken extracts the token from "Bearer <token>".
func BearerToken(header string) (string, bool) {
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
