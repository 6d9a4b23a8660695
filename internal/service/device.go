package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/keyrelay/migration-server/internal/apperrors"
	"github.com/keyrelay/migration-server/internal/logger"
	"github.com/keyrelay/migration-server/internal/model"
)

// Device manages the registry of per-device long-term signing keys.
type Device struct {
	registry model.DeviceKeyRegistry
	logger   *logger.Logger
}

func NewDevice(registry model.DeviceKeyRegistry, logger *logger.Logger) *Device {
	return &Device{
		registry: registry,
		logger:   logger,
	}
}

// Register stores a new device signing key for the user.
func (s *Device) Register(ctx context.Context, device model.Device) (model.Device, error) {
	if device.ID == "" {
		return model.Device{}, apperrors.NewErrInvalidRequest("device id is required")
	}
	if len(device.PublicKey) == 0 {
		return model.Device{}, apperrors.NewErrInvalidRequest("device public key is required")
	}

	saved, err := s.registry.Register(ctx, device)
	if errors.Is(err, model.ErrConflict) {
		return model.Device{}, apperrors.NewErrDeviceAlreadyRegistered(device.ID)
	}
	if err != nil {
		return model.Device{}, apperrors.NewErrInternal(fmt.Errorf("failed to register device: %w", err))
	}

	s.logger.Info("Device service: device registered",
		"user_id", device.UserID,
		"device_id", device.ID,
		"key_id", device.KeyID)

	return saved, nil
}

// List returns the user's non-revoked devices.
func (s *Device) List(ctx context.Context, userID uuid.UUID) ([]model.Device, error) {
	devices, err := s.registry.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewErrInternal(fmt.Errorf("failed to list devices: %w", err))
	}
	return devices, nil
}

// Revoke marks a device key as revoked.
func (s *Device) Revoke(ctx context.Context, userID uuid.UUID, deviceID string) error {
	err := s.registry.Revoke(ctx, userID, deviceID)
	if errors.Is(err, model.ErrNotFound) {
		return apperrors.NewErrDeviceNotFound(deviceID)
	}
	if err != nil {
		return apperrors.NewErrInternal(fmt.Errorf("failed to revoke device: %w", err))
	}

	s.logger.Info("Device service: device revoked",
		"user_id", userID,
		"device_id", deviceID)

	return nil
}

// MigrateKey replaces a device's signing key in place, keeping its identity.
func (s *Device) MigrateKey(ctx context.Context, userID uuid.UUID, deviceID, keyID string, publicKey []byte) (model.Device, error) {
	if len(publicKey) == 0 {
		return model.Device{}, apperrors.NewErrInvalidRequest("device public key is required")
	}

	device, err := s.registry.MigrateKey(ctx, userID, deviceID, keyID, publicKey)
	if errors.Is(err, model.ErrNotFound) {
		return model.Device{}, apperrors.NewErrDeviceNotFound(deviceID)
	}
	if err != nil {
		return model.Device{}, apperrors.NewErrInternal(fmt.Errorf("failed to migrate device key: %w", err))
	}

	s.logger.Info("Device service: device key migrated",
		"user_id", userID,
		"device_id", deviceID,
		"key_id", keyID)

	return device, nil
}
