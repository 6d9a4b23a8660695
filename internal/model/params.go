package model

import (
	"time"

	"github.com/google/uuid"
)

// InitiateParams contains parameters to start a migration session from an
// authenticated source device.
type InitiateParams struct {
	UserID          uuid.UUID
	SourceDeviceID  string
	SourcePublicKey []byte
}

// InitiateResult is returned to the source device after initiation.
type InitiateResult struct {
	SessionCode string
	ExpiresAt   time.Time
}

// RegisterTargetParams contains the target device's registration fields.
// The session code is the only proof of possession available at this step.
type RegisterTargetParams struct {
	SessionCode       string
	TargetDeviceID    string
	TargetDeviceKeyID *string
	TargetPublicKey   []byte
}

// RegisterTargetResult echoes the source side of the session back to the
// target. Fields stay nil for placeholder sessions.
type RegisterTargetResult struct {
	SourceDeviceID       *string
	UserID               *uuid.UUID
	RequiresConfirmation bool
}

// SendPayloadParams carries the encrypted payload envelope from the source.
type SendPayloadParams struct {
	SessionCode        string
	UserID             uuid.UUID
	Ciphertext         []byte
	EphemeralPublicKey []byte
	Signature          []byte
	SourceDeviceID     string
	TargetDeviceID     string
	SigningKeyID       *string
	KeyVersion         int
}

// AuthProof is the challenge-response material an unregistered device
// presents when retrieving the payload.
type AuthProof struct {
	Timestamp string
	Signature []byte
	DeviceID  string
}

// RetrievedPayload is the payload envelope handed to the target device.
type RetrievedPayload struct {
	Ciphertext         []byte
	EphemeralPublicKey []byte
	Signature          []byte
	SourceDeviceID     string
	TargetDeviceID     string
	KeyVersion         int
	CreatedAt          time.Time
}

// ConfirmParams finalizes a migration. UserID is nil when the caller proves
// participation through the target device identifier alone.
type ConfirmParams struct {
	SessionCode    string
	TargetDeviceID string
	UserID         *uuid.UUID
}

// SessionStatusView is the externally visible projection of a session.
type SessionStatusView struct {
	Status          SessionStatus
	SourceDeviceID  *string
	TargetDeviceID  *string
	TargetPublicKey []byte
	CreatedAt       time.Time
	ExpiresAt       time.Time
}
