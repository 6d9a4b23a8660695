package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/keyrelay/migration-server/internal/apperrors"
	"github.com/keyrelay/migration-server/internal/logger"
	servermocks "github.com/keyrelay/migration-server/internal/mocks"
	"github.com/keyrelay/migration-server/internal/model"
)

func TestLegacyAdapter_CreatePlaceholder(t *testing.T) {
	ctx := context.Background()
	sessions := &servermocks.SessionStore{}
	devices := &servermocks.DeviceKeyRegistry{}
	adapter := NewLegacyAdapter(sessions, devices, logger.New(0))

	sessions.On("Create", mock.Anything, mock.MatchedBy(func(s model.MigrationSession) bool {
		return s.SessionCode == "LEGACY2345" &&
			s.UserID == nil &&
			s.Status == model.StatusPending
	})).Return(func(_ context.Context, s model.MigrationSession) model.MigrationSession { return s }, nil)

	created, err := adapter.CreatePlaceholder(ctx, "LEGACY2345")
	require.NoError(t, err)
	assert.True(t, created.IsPlaceholder())
	assert.WithinDuration(t, time.Now().Add(model.SessionExpiry), created.ExpiresAt, time.Minute)
}

func TestLegacyAdapter_CreatePlaceholder_BadCodeLength(t *testing.T) {
	ctx := context.Background()
	adapter := NewLegacyAdapter(&servermocks.SessionStore{}, &servermocks.DeviceKeyRegistry{}, logger.New(0))

	_, err := adapter.CreatePlaceholder(ctx, "SHORT")
	require.Error(t, err)
	apiErr, ok := err.(*apperrors.APIError)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindInvalidRequest, apiErr.Kind)
}

func TestLegacyAdapter_CreatePlaceholder_RaceFallsBackToRead(t *testing.T) {
	ctx := context.Background()
	sessions := &servermocks.SessionStore{}
	adapter := NewLegacyAdapter(sessions, &servermocks.DeviceKeyRegistry{}, logger.New(0))

	existing := model.MigrationSession{
		ID:          uuid.New(),
		SessionCode: "LEGACY2345",
		Status:      model.StatusPending,
	}

	sessions.On("Create", mock.Anything, mock.Anything).Return(model.MigrationSession{}, model.ErrCodeTaken)
	sessions.On("GetByCode", mock.Anything, "LEGACY2345").Return(existing, nil)

	got, err := adapter.CreatePlaceholder(ctx, "LEGACY2345")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)
}

func TestLegacyAdapter_AdoptSource_PrefersRegisteredKey(t *testing.T) {
	ctx := context.Background()
	sessions := &servermocks.SessionStore{}
	devices := &servermocks.DeviceKeyRegistry{}
	adapter := NewLegacyAdapter(sessions, devices, logger.New(0))

	userID := uuid.New()
	session := model.MigrationSession{ID: uuid.New(), SessionCode: "LEGACY2345", Status: model.StatusPending}

	devices.On("GetByID", mock.Anything, userID, "source-device").
		Return(model.Device{ID: "source-device", KeyID: "registered-key-id", PublicKey: []byte("registered-key")}, nil)
	sessions.On("ResolveSource", mock.Anything, session.ID, mock.MatchedBy(func(p model.ResolveSourceParams) bool {
		return p.UserID == userID &&
			p.SourceDeviceID == "source-device" &&
			p.SourceDeviceKeyID != nil && *p.SourceDeviceKeyID == "registered-key-id" &&
			string(p.SourcePublicKey) == "registered-key"
	})).Return(session, nil)

	_, err := adapter.AdoptSource(ctx, session, model.SendPayloadParams{
		UserID:             userID,
		SourceDeviceID:     "source-device",
		EphemeralPublicKey: []byte("ephemeral"),
	})
	require.NoError(t, err)
}

func TestLegacyAdapter_AdoptSource_EphemeralFallback(t *testing.T) {
	ctx := context.Background()
	sessions := &servermocks.SessionStore{}
	devices := &servermocks.DeviceKeyRegistry{}
	adapter := NewLegacyAdapter(sessions, devices, logger.New(0))

	userID := uuid.New()
	session := model.MigrationSession{ID: uuid.New(), SessionCode: "LEGACY2345", Status: model.StatusPending}
	keyID := "client-supplied-key-id"

	devices.On("GetByID", mock.Anything, userID, "unregistered-device").Return(model.Device{}, model.ErrNotFound)
	sessions.On("ResolveSource", mock.Anything, session.ID, mock.MatchedBy(func(p model.ResolveSourceParams) bool {
		return string(p.SourcePublicKey) == "ephemeral" &&
			p.SourceDeviceKeyID != nil && *p.SourceDeviceKeyID == keyID
	})).Return(session, nil)

	_, err := adapter.AdoptSource(ctx, session, model.SendPayloadParams{
		UserID:             userID,
		SourceDeviceID:     "unregistered-device",
		EphemeralPublicKey: []byte("ephemeral"),
		SigningKeyID:       &keyID,
	})
	require.NoError(t, err)
}

func TestLegacyAdapter_AdoptSource_AlreadyResolved(t *testing.T) {
	ctx := context.Background()
	sessions := &servermocks.SessionStore{}
	devices := &servermocks.DeviceKeyRegistry{}
	adapter := NewLegacyAdapter(sessions, devices, logger.New(0))

	userID := uuid.New()
	otherUser := uuid.New()
	session := model.MigrationSession{ID: uuid.New(), SessionCode: "LEGACY2345", Status: model.StatusPending}
	resolved := session
	resolved.UserID = &otherUser

	devices.On("GetByID", mock.Anything, userID, "source-device").Return(model.Device{}, model.ErrNotFound)
	sessions.On("ResolveSource", mock.Anything, session.ID, mock.Anything).Return(model.MigrationSession{}, model.ErrConflict)
	sessions.On("GetByID", mock.Anything, session.ID).Return(resolved, nil)

	got, err := adapter.AdoptSource(ctx, session, model.SendPayloadParams{
		UserID:         userID,
		SourceDeviceID: "source-device",
	})
	require.NoError(t, err)
	require.NotNil(t, got.UserID)
	assert.Equal(t, otherUser, *got.UserID)
}
