package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Policy constants for the migration protocol. These are deliberate fixed
// policy, not environment-tunable configuration.
const (
	// SessionCodeLength is the length of the human-enterable session code.
	SessionCodeLength = 10
	// SessionExpiry is the TTL of a migration session from creation.
	SessionExpiry = 15 * time.Minute
	// PayloadMaxAge bounds how long an attached payload stays retrievable.
	PayloadMaxAge = 5 * time.Minute
	// MaxActiveSessionsPerUser caps concurrently active sessions per user.
	MaxActiveSessionsPerUser = 3
	// MaxAttemptsPerSession caps authorization attempts per session within
	// AttemptWindow.
	MaxAttemptsPerSession = 5
	// AttemptWindow is the rate-limit window for authorization attempts.
	AttemptWindow = 15 * time.Minute
	// AuditRetention is how long terminal sessions are kept before the
	// sweeper hard-deletes them.
	AuditRetention = 24 * time.Hour
)

// SessionStatus enumerates migration session states.
type SessionStatus string

const (
	// StatusPending is the initial state after initiation.
	StatusPending SessionStatus = "PENDING"
	// StatusAwaitingConfirmation is set once the target device registered.
	StatusAwaitingConfirmation SessionStatus = "AWAITING_CONFIRMATION"
	// StatusTransferring is set once the source attached the payload.
	StatusTransferring SessionStatus = "TRANSFERRING"
	// StatusCompleted is the terminal state after target confirmation.
	StatusCompleted SessionStatus = "COMPLETED"
	// StatusExpired is the terminal state after the TTL elapsed.
	StatusExpired SessionStatus = "EXPIRED"
	// StatusCancelled is the terminal state after explicit cancellation.
	StatusCancelled SessionStatus = "CANCELLED"
)

// MigrationSession binds one source device and one target device for a single
// identity migration attempt.
type MigrationSession struct {
	ID                uuid.UUID
	SessionCode       string
	UserID            *uuid.UUID
	SourceDeviceID    *string
	SourceDeviceKeyID *string
	SourcePublicKey   []byte
	TargetDeviceID    *string
	TargetDeviceKeyID *string
	TargetPublicKey   []byte
	Status            SessionStatus
	Payload           *PayloadEnvelope
	AttemptCount      int
	CreatedAt         time.Time
	ExpiresAt         time.Time
	CompletedAt       *time.Time
}

// PayloadEnvelope describes an attached encrypted payload. The ciphertext
// itself lives in object storage under ObjectKey; the envelope carries the
// key-exchange material the target needs to decrypt it.
type PayloadEnvelope struct {
	ObjectKey          string
	EphemeralPublicKey []byte
	Signature          []byte
	SourceDeviceID     string
	TargetDeviceID     string
	SigningKeyID       *string
	KeyVersion         int
	CreatedAt          time.Time
}

// IsStale reports whether the payload is older than PayloadMaxAge.
func (p *PayloadEnvelope) IsStale(now time.Time) bool {
	return now.Sub(p.CreatedAt) > PayloadMaxAge
}

// IsExpired reports whether the session TTL has elapsed.
func (s *MigrationSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsActive reports whether the session can still progress through the
// protocol: non-terminal status and not past its TTL.
func (s *MigrationSession) IsActive(now time.Time) bool {
	switch s.Status {
	case StatusPending, StatusAwaitingConfirmation, StatusTransferring:
		return !s.IsExpired(now)
	default:
		return false
	}
}

// IsTerminal reports whether the session reached a terminal state.
func (s *MigrationSession) IsTerminal() bool {
	switch s.Status {
	case StatusCompleted, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsPlaceholder reports whether the session was created by the
// backward-compatibility path and its owner is not yet resolved.
func (s *MigrationSession) IsPlaceholder() bool {
	return s.UserID == nil
}

// ClaimTargetParams carries the write-once target registration fields.
type ClaimTargetParams struct {
	TargetDeviceID    string
	TargetDeviceKeyID *string
	TargetPublicKey   []byte
}

// ResolveSourceParams carries the fields that resolve a placeholder session
// to its owning user and source device.
type ResolveSourceParams struct {
	UserID            uuid.UUID
	SourceDeviceID    string
	SourceDeviceKeyID *string
	SourcePublicKey   []byte
}

// SessionStore defines persistence operations for migration sessions.
// Every mutation is a single atomic conditional update; a failed condition
// surfaces as ErrConflict so callers can distinguish races from absence.
type SessionStore interface {
	// Create inserts a new session. It fails with ErrQuotaExceeded when the
	// owning user already holds MaxActiveSessionsPerUser active sessions and
	// with ErrCodeTaken when the session code collides with an active one.
	// Placeholder sessions (nil UserID) bypass the quota guard.
	Create(ctx context.Context, session MigrationSession) (MigrationSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (MigrationSession, error)
	GetByCode(ctx context.Context, code string) (MigrationSession, error)
	// ClaimTarget sets the target fields exactly once and moves
	// PENDING -> AWAITING_CONFIRMATION. Fails with ErrConflict if the target
	// is already set or the session left PENDING.
	ClaimTarget(ctx context.Context, id uuid.UUID, params ClaimTargetParams) (MigrationSession, error)
	// AttachPayload stores the payload envelope and moves the session to
	// TRANSFERRING. Valid only from PENDING or AWAITING_CONFIRMATION.
	AttachPayload(ctx context.Context, id uuid.UUID, payload PayloadEnvelope) (MigrationSession, error)
	// ResolveSource fills in the owner fields of a placeholder session.
	// Fails with ErrConflict if the session is already resolved.
	ResolveSource(ctx context.Context, id uuid.UUID, params ResolveSourceParams) (MigrationSession, error)
	// Complete moves TRANSFERRING -> COMPLETED and records completedAt.
	Complete(ctx context.Context, id uuid.UUID, completedAt time.Time) (MigrationSession, error)
	// Cancel moves any non-terminal session to CANCELLED.
	Cancel(ctx context.Context, id uuid.UUID) (MigrationSession, error)
	// IncrementAttempts bumps the per-session authorization attempt counter
	// and returns the new value.
	IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)
	CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error)
	// MarkExpired transitions sessions past their TTL to EXPIRED and returns
	// the number of sessions touched.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	// DeleteTerminatedBefore hard-deletes terminal sessions created before
	// cutoff and returns the payload object keys of the deleted rows so the
	// caller can reap the blobs.
	DeleteTerminatedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}
