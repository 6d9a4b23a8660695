package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/keyrelay/migration-server/internal/apperrors"
	"github.com/keyrelay/migration-server/internal/logger"
	servermocks "github.com/keyrelay/migration-server/internal/mocks"
	"github.com/keyrelay/migration-server/internal/model"
)

func TestDevice_Register_Success(t *testing.T) {
	ctx := context.Background()
	registry := &servermocks.DeviceKeyRegistry{}
	svc := NewDevice(registry, logger.New(0))

	device := model.Device{ID: "device-1", UserID: uuid.New(), KeyID: "key-1", PublicKey: []byte("pk")}
	registry.On("Register", mock.Anything, device).Return(device, nil)

	saved, err := svc.Register(ctx, device)
	require.NoError(t, err)
	assert.Equal(t, "device-1", saved.ID)
}

func TestDevice_Register_Validation(t *testing.T) {
	ctx := context.Background()
	svc := NewDevice(&servermocks.DeviceKeyRegistry{}, logger.New(0))

	tests := []struct {
		name   string
		device model.Device
	}{
		{name: "missing id", device: model.Device{PublicKey: []byte("pk")}},
		{name: "missing key", device: model.Device{ID: "device-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.device)
			require.Error(t, err)
			apiErr, ok := err.(*apperrors.APIError)
			require.True(t, ok)
			assert.Equal(t, apperrors.KindInvalidRequest, apiErr.Kind)
		})
	}
}

func TestDevice_Register_Duplicate(t *testing.T) {
	ctx := context.Background()
	registry := &servermocks.DeviceKeyRegistry{}
	svc := NewDevice(registry, logger.New(0))

	registry.On("Register", mock.Anything, mock.Anything).Return(model.Device{}, model.ErrConflict)

	_, err := svc.Register(ctx, model.Device{ID: "device-1", PublicKey: []byte("pk")})
	require.Error(t, err)
	apiErr, ok := err.(*apperrors.APIError)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindDeviceAlreadyRegistered, apiErr.Kind)
}

func TestDevice_Revoke_NotFound(t *testing.T) {
	ctx := context.Background()
	registry := &servermocks.DeviceKeyRegistry{}
	svc := NewDevice(registry, logger.New(0))

	userID := uuid.New()
	registry.On("Revoke", mock.Anything, userID, "ghost").Return(model.ErrNotFound)

	err := svc.Revoke(ctx, userID, "ghost")
	require.Error(t, err)
	apiErr, ok := err.(*apperrors.APIError)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindDeviceNotFound, apiErr.Kind)
}

func TestDevice_MigrateKey(t *testing.T) {
	ctx := context.Background()
	registry := &servermocks.DeviceKeyRegistry{}
	svc := NewDevice(registry, logger.New(0))

	userID := uuid.New()
	updated := model.Device{ID: "device-1", UserID: userID, KeyID: "key-2", PublicKey: []byte("new-pk")}
	registry.On("MigrateKey", mock.Anything, userID, "device-1", "key-2", []byte("new-pk")).Return(updated, nil)

	device, err := svc.MigrateKey(ctx, userID, "device-1", "key-2", []byte("new-pk"))
	require.NoError(t, err)
	assert.Equal(t, "key-2", device.KeyID)

	_, err = svc.MigrateKey(ctx, userID, "device-1", "key-2", nil)
	require.Error(t, err)
}
