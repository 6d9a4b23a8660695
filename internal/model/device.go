package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Device represents a registered device with its long-term signing key.
type Device struct {
	ID        string
	UserID    uuid.UUID
	KeyID     string
	PublicKey []byte
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}

// IsRevoked reports whether the device key has been revoked.
func (d *Device) IsRevoked() bool {
	return d.RevokedAt != nil
}

// DeviceKeyRegistry defines persistence operations for per-device long-term
// signing keys.
type DeviceKeyRegistry interface {
	Register(ctx context.Context, device Device) (Device, error)
	GetByID(ctx context.Context, userID uuid.UUID, deviceID string) (Device, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Device, error)
	Revoke(ctx context.Context, userID uuid.UUID, deviceID string) error
	// MigrateKey replaces a device's signing key in place, keeping the
	// device identity.
	MigrateKey(ctx context.Context, userID uuid.UUID, deviceID, keyID string, publicKey []byte) (Device, error)
}
