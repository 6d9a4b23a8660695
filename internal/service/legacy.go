package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keyrelay/migration-server/internal/apperrors"
	"github.com/keyrelay/migration-server/internal/logger"
	"github.com/keyrelay/migration-server/internal/model"
)

// LegacyAdapter supports clients that never call Initiate: RegisterTarget on
// an unknown code creates a placeholder session, and the first authenticated
// SendPayload resolves the placeholder to its real owner and source device.
type LegacyAdapter struct {
	sessionStore   model.SessionStore
	deviceRegistry model.DeviceKeyRegistry
	logger         *logger.Logger
}

func NewLegacyAdapter(
	sessionStore model.SessionStore,
	deviceRegistry model.DeviceKeyRegistry,
	logger *logger.Logger,
) *LegacyAdapter {
	return &LegacyAdapter{
		sessionStore:   sessionStore,
		deviceRegistry: deviceRegistry,
		logger:         logger,
	}
}

// CreatePlaceholder creates a PENDING session with no owner for the given
// code. The prior lookup miss is logged, never silently absorbed.
func (a *LegacyAdapter) CreatePlaceholder(ctx context.Context, sessionCode string) (model.MigrationSession, error) {
	if len(sessionCode) != model.SessionCodeLength {
		return model.MigrationSession{}, apperrors.NewErrInvalidRequest(
			fmt.Sprintf("session code must be %d characters", model.SessionCodeLength))
	}

	a.logger.Info("Legacy adapter: no session matched code, creating placeholder",
		"session_code", sessionCode)

	now := time.Now()
	session := model.MigrationSession{
		ID:          uuid.New(),
		SessionCode: sessionCode,
		Status:      model.StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(model.SessionExpiry),
	}

	created, err := a.sessionStore.Create(ctx, session)
	if errors.Is(err, model.ErrCodeTaken) {
		// Another target raced us into creating the placeholder.
		return a.sessionStore.GetByCode(ctx, sessionCode)
	}
	if err != nil {
		return model.MigrationSession{}, fmt.Errorf("failed to create placeholder session: %w", err)
	}

	return created, nil
}

// AdoptSource resolves a placeholder session: the authenticated caller of
// SendPayload becomes the owner and source device. The registered long-term
// signing key is preferred over the ephemeral key for continuity with the
// pre-migration identity.
func (a *LegacyAdapter) AdoptSource(ctx context.Context, session model.MigrationSession, params model.SendPayloadParams) (model.MigrationSession, error) {
	sourceKey := params.EphemeralPublicKey
	var sourceKeyID *string

	if params.SourceDeviceID != "" {
		device, err := a.deviceRegistry.GetByID(ctx, params.UserID, params.SourceDeviceID)
		switch {
		case err == nil:
			sourceKey = device.PublicKey
			sourceKeyID = &device.KeyID
		case errors.Is(err, model.ErrNotFound):
			if params.SigningKeyID != nil {
				sourceKeyID = params.SigningKeyID
			}
		default:
			return model.MigrationSession{}, fmt.Errorf("failed to look up source device: %w", err)
		}
	}

	resolved, err := a.sessionStore.ResolveSource(ctx, session.ID, model.ResolveSourceParams{
		UserID:            params.UserID,
		SourceDeviceID:    params.SourceDeviceID,
		SourceDeviceKeyID: sourceKeyID,
		SourcePublicKey:   sourceKey,
	})
	if errors.Is(err, model.ErrConflict) {
		// Already resolved; the owner check upstream decides whether the
		// caller still qualifies.
		return a.sessionStore.GetByID(ctx, session.ID)
	}
	if err != nil {
		return model.MigrationSession{}, fmt.Errorf("failed to resolve placeholder session: %w", err)
	}

	a.logger.Info("Legacy adapter: placeholder session resolved",
		"session_id", resolved.ID,
		"user_id", params.UserID,
		"source_device_id", params.SourceDeviceID)

	return resolved, nil
}
