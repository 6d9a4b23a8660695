package model

import (
	"context"

	"github.com/google/uuid"
)

// SignatureVerifier checks a signature over a challenge against a public key.
// Implementations must treat a malformed key as an error, not as invalid.
type SignatureVerifier interface {
	Verify(publicKey, challenge, signature []byte) (bool, error)
}

// AttemptLimiter counts authorization attempts per key within a fixed window.
type AttemptLimiter interface {
	// Hit registers one attempt for key and returns the attempt count inside
	// the current window, including this one.
	Hit(ctx context.Context, key string) (int64, error)
	// Reset clears the counter for key.
	Reset(ctx context.Context, key string) error
}

// TokenManager issues and validates bearer access tokens.
type TokenManager interface {
	GenerateAccessToken(userID uuid.UUID) (string, error)
	ParseAccessToken(token string) (uuid.UUID, error)
}
