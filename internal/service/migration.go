package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyrelay/migration-server/internal/apperrors"
	"github.com/keyrelay/migration-server/internal/logger"
	"github.com/keyrelay/migration-server/internal/model"
)

// codeAlphabet excludes characters that are easy to misread when a user
// relays the code between devices (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeGenerationRetries = 3

// Migration sequences the five protocol operations against the session state
// machine, delegating persistence to the session store, recipient
// authorization to the Authorizer and legacy bootstrap to the LegacyAdapter.
type Migration struct {
	sessionStore   model.SessionStore
	deviceRegistry model.DeviceKeyRegistry
	storage        model.Storage
	verifier       model.SignatureVerifier
	authorizer     *Authorizer
	legacy         *LegacyAdapter
	logger         *logger.Logger
}

func NewMigration(
	sessionStore model.SessionStore,
	deviceRegistry model.DeviceKeyRegistry,
	storage model.Storage,
	verifier model.SignatureVerifier,
	authorizer *Authorizer,
	legacy *LegacyAdapter,
	logger *logger.Logger,
) *Migration {
	return &Migration{
		sessionStore:   sessionStore,
		deviceRegistry: deviceRegistry,
		storage:        storage,
		verifier:       verifier,
		authorizer:     authorizer,
		legacy:         legacy,
		logger:         logger,
	}
}

// Initiate creates a PENDING session for an authenticated source device.
func (s *Migration) Initiate(ctx context.Context, params model.InitiateParams) (model.InitiateResult, error) {
	s.logger.Debug("Migration service: initiating session",
		"user_id", params.UserID,
		"source_device_id", params.SourceDeviceID)

	device, err := s.deviceRegistry.GetByID(ctx, params.UserID, params.SourceDeviceID)
	if errors.Is(err, model.ErrNotFound) {
		return model.InitiateResult{}, apperrors.NewErrDeviceNotFound(params.SourceDeviceID)
	}
	if err != nil {
		return model.InitiateResult{}, apperrors.NewErrInternal(fmt.Errorf("failed to get source device: %w", err))
	}

	now := time.Now()
	for attempt := 0; attempt < codeGenerationRetries; attempt++ {
		code, err := generateSessionCode()
		if err != nil {
			return model.InitiateResult{}, apperrors.NewErrInternal(err)
		}

		session := model.MigrationSession{
			ID:                uuid.New(),
			SessionCode:       code,
			UserID:            &params.UserID,
			SourceDeviceID:    &params.SourceDeviceID,
			SourceDeviceKeyID: &device.KeyID,
			SourcePublicKey:   params.SourcePublicKey,
			Status:            model.StatusPending,
			CreatedAt:         now,
			ExpiresAt:         now.Add(model.SessionExpiry),
		}

		saved, err := s.sessionStore.Create(ctx, session)
		if errors.Is(err, model.ErrQuotaExceeded) {
			s.logger.Info("Migration service: active session quota exceeded",
				"user_id", params.UserID)
			return model.InitiateResult{}, apperrors.NewErrQuotaExceeded()
		}
		if errors.Is(err, model.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return model.InitiateResult{}, apperrors.NewErrInternal(fmt.Errorf("failed to create session: %w", err))
		}

		s.logger.Info("Migration service: session initiated",
			"session_id", saved.ID,
			"user_id", params.UserID,
			"source_device_id", params.SourceDeviceID,
			"expires_at", saved.ExpiresAt)

		return model.InitiateResult{SessionCode: saved.SessionCode, ExpiresAt: saved.ExpiresAt}, nil
	}

	return model.InitiateResult{}, apperrors.NewErrInternal(fmt.Errorf("session code collisions exhausted %d retries", codeGenerationRetries))
}

// RegisterTarget binds the target device to the session identified by the
// code. When no session matches the code, the legacy adapter creates a
// placeholder so clients that never call Initiate are not locked out.
func (s *Migration) RegisterTarget(ctx context.Context, params model.RegisterTargetParams) (model.RegisterTargetResult, error) {
	s.logger.Debug("Migration service: registering target",
		"session_code", params.SessionCode,
		"target_device_id", params.TargetDeviceID)

	session, err := s.sessionStore.GetByCode(ctx, params.SessionCode)
	if errors.Is(err, model.ErrNotFound) {
		session, err = s.legacy.CreatePlaceholder(ctx, params.SessionCode)
	}
	if err != nil {
		if apiErr := asAPIError(err); apiErr != nil {
			return model.RegisterTargetResult{}, apiErr
		}
		return model.RegisterTargetResult{}, apperrors.NewErrInternal(err)
	}

	if err := s.requireLive(&session); err != nil {
		return model.RegisterTargetResult{}, err
	}

	if session.TargetDeviceID != nil {
		// Write-once: the same device may repeat the call, anybody else is
		// trying to hijack the session.
		if *session.TargetDeviceID != params.TargetDeviceID {
			s.logger.Info("Migration service: rejected second target registration",
				"session_id", session.ID,
				"registered_target", *session.TargetDeviceID,
				"attempted_target", params.TargetDeviceID)
			return model.RegisterTargetResult{}, apperrors.NewErrTargetAlreadyRegistered()
		}
		return registerTargetResult(session), nil
	}

	claimed, err := s.sessionStore.ClaimTarget(ctx, session.ID, model.ClaimTargetParams{
		TargetDeviceID:    params.TargetDeviceID,
		TargetDeviceKeyID: params.TargetDeviceKeyID,
		TargetPublicKey:   params.TargetPublicKey,
	})
	if errors.Is(err, model.ErrConflict) {
		// Lost the race: re-read to decide whether the winner was this very
		// device retrying.
		current, getErr := s.sessionStore.GetByID(ctx, session.ID)
		if getErr != nil {
			return model.RegisterTargetResult{}, apperrors.NewErrInternal(getErr)
		}
		if current.TargetDeviceID != nil && *current.TargetDeviceID == params.TargetDeviceID {
			return registerTargetResult(current), nil
		}
		return model.RegisterTargetResult{}, apperrors.NewErrTargetAlreadyRegistered()
	}
	if err != nil {
		return model.RegisterTargetResult{}, apperrors.NewErrInternal(err)
	}

	s.logger.Info("Migration service: target registered",
		"session_id", claimed.ID,
		"target_device_id", params.TargetDeviceID,
		"placeholder", claimed.IsPlaceholder())

	return registerTargetResult(claimed), nil
}

// SendPayload attaches the encrypted payload to the session and moves it to
// TRANSFERRING. For placeholder sessions the authenticated caller is adopted
// as the session's source.
func (s *Migration) SendPayload(ctx context.Context, params model.SendPayloadParams) error {
	s.logger.Debug("Migration service: receiving payload",
		"session_code", params.SessionCode,
		"user_id", params.UserID)

	session, err := s.getByCode(ctx, params.SessionCode)
	if err != nil {
		return err
	}
	if err := s.requireLive(&session); err != nil {
		return err
	}

	if session.IsPlaceholder() {
		session, err = s.legacy.AdoptSource(ctx, session, params)
		if err != nil {
			if apiErr := asAPIError(err); apiErr != nil {
				return apiErr
			}
			return apperrors.NewErrInternal(err)
		}
	}

	if session.UserID == nil || *session.UserID != params.UserID {
		return apperrors.NewErrUnauthorized("caller is not the session owner")
	}
	if session.SourceDeviceID != nil && params.SourceDeviceID != "" && *session.SourceDeviceID != params.SourceDeviceID {
		return apperrors.NewErrUnauthorized("payload source device does not match the session source")
	}

	if err := s.verifyPayloadSignature(ctx, &session, params); err != nil {
		return err
	}

	switch session.Status {
	case model.StatusPending, model.StatusAwaitingConfirmation:
	default:
		return apperrors.NewErrSessionStateConflict(fmt.Sprintf("cannot attach payload in state %s", session.Status))
	}

	objectKey := fmt.Sprintf("session-%s/payload-%s", session.ID, uuid.New())
	if err := s.storage.Upload(ctx, objectKey, bytes.NewReader(params.Ciphertext)); err != nil {
		return apperrors.NewErrInternal(fmt.Errorf("failed to upload payload: %w", err))
	}

	envelope := model.PayloadEnvelope{
		ObjectKey:          objectKey,
		EphemeralPublicKey: params.EphemeralPublicKey,
		Signature:          params.Signature,
		SourceDeviceID:     params.SourceDeviceID,
		TargetDeviceID:     params.TargetDeviceID,
		SigningKeyID:       params.SigningKeyID,
		KeyVersion:         params.KeyVersion,
		CreatedAt:          time.Now(),
	}

	_, err = s.sessionStore.AttachPayload(ctx, session.ID, envelope)
	if err != nil {
		if delErr := s.storage.Delete(ctx, objectKey); delErr != nil {
			s.logger.Error("Migration service: failed to delete orphaned payload blob",
				"object_key", objectKey,
				"error", delErr)
		}
		if errors.Is(err, model.ErrConflict) {
			return apperrors.NewErrSessionStateConflict("session state changed while attaching payload")
		}
		return apperrors.NewErrInternal(err)
	}

	s.logger.Info("Migration service: payload attached",
		"session_id", session.ID,
		"object_key", objectKey,
		"ciphertext_bytes", len(params.Ciphertext))

	return nil
}

// RetrievePayload hands the encrypted payload to a caller that passes the
// tiered challenge-response authorization. The payload is not consumed on
// read; Confirm removes it.
func (s *Migration) RetrievePayload(ctx context.Context, sessionCode string, proof model.AuthProof) (model.RetrievedPayload, error) {
	session, err := s.getByCode(ctx, sessionCode)
	if err != nil {
		return model.RetrievedPayload{}, err
	}
	if session.Status == model.StatusCompleted {
		return model.RetrievedPayload{}, apperrors.NewErrSessionStateConflict("migration already completed")
	}
	if err := s.requireLive(&session); err != nil {
		return model.RetrievedPayload{}, err
	}

	if err := s.authorizer.AuthorizeRecipient(ctx, &session, proof); err != nil {
		if apiErr := asAPIError(err); apiErr != nil {
			return model.RetrievedPayload{}, apiErr
		}
		return model.RetrievedPayload{}, apperrors.NewErrInternal(err)
	}

	if session.Payload == nil {
		return model.RetrievedPayload{}, apperrors.NewErrPayloadNotFound()
	}
	if session.Payload.IsStale(time.Now()) {
		s.logger.Info("Migration service: refused stale payload",
			"session_id", session.ID,
			"payload_age", time.Since(session.Payload.CreatedAt))
		return model.RetrievedPayload{}, apperrors.NewErrPayloadNotFound()
	}

	reader, err := s.storage.Download(ctx, session.Payload.ObjectKey)
	if err != nil {
		return model.RetrievedPayload{}, apperrors.NewErrInternal(fmt.Errorf("failed to download payload: %w", err))
	}
	defer reader.Close()

	ciphertext, err := io.ReadAll(reader)
	if err != nil {
		return model.RetrievedPayload{}, apperrors.NewErrInternal(fmt.Errorf("failed to read payload: %w", err))
	}

	s.logger.Info("Migration service: payload retrieved",
		"session_id", session.ID,
		"ciphertext_bytes", len(ciphertext))

	return model.RetrievedPayload{
		Ciphertext:         ciphertext,
		EphemeralPublicKey: session.Payload.EphemeralPublicKey,
		Signature:          session.Payload.Signature,
		SourceDeviceID:     session.Payload.SourceDeviceID,
		TargetDeviceID:     session.Payload.TargetDeviceID,
		KeyVersion:         session.Payload.KeyVersion,
		CreatedAt:          session.Payload.CreatedAt,
	}, nil
}

// Confirm finalizes the migration. The target is expected to have completed
// normal device registration by now, so an authenticated call is accepted;
// knowledge of the recorded target device identifier alone also proves
// participation in the earlier protocol steps.
func (s *Migration) Confirm(ctx context.Context, params model.ConfirmParams) error {
	session, err := s.getByCode(ctx, params.SessionCode)
	if err != nil {
		return err
	}
	if err := s.requireLive(&session); err != nil {
		return err
	}

	if params.UserID != nil && session.UserID != nil && *params.UserID != *session.UserID {
		return apperrors.NewErrUnauthorized("caller is not the session owner")
	}
	if session.TargetDeviceID == nil || *session.TargetDeviceID != params.TargetDeviceID {
		return apperrors.NewErrSessionStateConflict("target device does not match the session record")
	}

	completed, err := s.sessionStore.Complete(ctx, session.ID, time.Now())
	if errors.Is(err, model.ErrConflict) {
		return apperrors.NewErrSessionStateConflict(fmt.Sprintf("cannot confirm in state %s", session.Status))
	}
	if err != nil {
		return apperrors.NewErrInternal(err)
	}

	// The ciphertext must not be replayable once the migration completed.
	if completed.Payload != nil {
		if err := s.storage.Delete(ctx, completed.Payload.ObjectKey); err != nil {
			s.logger.Error("Migration service: failed to delete payload blob after completion",
				"session_id", completed.ID,
				"object_key", completed.Payload.ObjectKey,
				"error", err)
		}
	}
	if err := s.authorizer.ResetAttempts(ctx, completed.ID); err != nil {
		s.logger.Error("Migration service: failed to reset attempt counter",
			"session_id", completed.ID,
			"error", err)
	}

	s.logger.Info("Migration service: migration completed",
		"session_id", completed.ID,
		"target_device_id", params.TargetDeviceID)

	return nil
}

// Cancel moves a non-terminal session to CANCELLED. Only the originating
// user may cancel.
func (s *Migration) Cancel(ctx context.Context, sessionID, userID uuid.UUID) error {
	session, err := s.sessionStore.GetByID(ctx, sessionID)
	if errors.Is(err, model.ErrNotFound) {
		return apperrors.NewErrSessionNotFound(sessionID.String())
	}
	if err != nil {
		return apperrors.NewErrInternal(err)
	}

	if session.UserID == nil || *session.UserID != userID {
		return apperrors.NewErrUnauthorized("caller is not the session owner")
	}

	cancelled, err := s.sessionStore.Cancel(ctx, sessionID)
	if errors.Is(err, model.ErrConflict) {
		return apperrors.NewErrSessionStateConflict(fmt.Sprintf("cannot cancel in state %s", session.Status))
	}
	if err != nil {
		return apperrors.NewErrInternal(err)
	}

	if cancelled.Payload != nil {
		if err := s.storage.Delete(ctx, cancelled.Payload.ObjectKey); err != nil {
			s.logger.Error("Migration service: failed to delete payload blob after cancellation",
				"session_id", cancelled.ID,
				"error", err)
		}
	}

	s.logger.Info("Migration service: session cancelled",
		"session_id", sessionID,
		"user_id", userID)

	return nil
}

// GetStatus reports the session state. Expiry is evaluated lazily so a
// session past its TTL reads as EXPIRED even before the sweeper ran.
// Authorization is relaxed for placeholder sessions, which have no owner yet.
func (s *Migration) GetStatus(ctx context.Context, sessionCode string, callerID *uuid.UUID) (model.SessionStatusView, error) {
	session, err := s.getByCode(ctx, sessionCode)
	if err != nil {
		return model.SessionStatusView{}, err
	}

	if session.UserID != nil {
		if callerID == nil {
			return model.SessionStatusView{}, apperrors.NewErrMissingAuthorizationToken()
		}
		if *callerID != *session.UserID {
			return model.SessionStatusView{}, apperrors.NewErrUnauthorized("caller is not the session owner")
		}
	}

	status := session.Status
	if !session.IsTerminal() && session.IsExpired(time.Now()) {
		status = model.StatusExpired
	}

	return model.SessionStatusView{
		Status:          status,
		SourceDeviceID:  session.SourceDeviceID,
		TargetDeviceID:  session.TargetDeviceID,
		TargetPublicKey: session.TargetPublicKey,
		CreatedAt:       session.CreatedAt,
		ExpiresAt:       session.ExpiresAt,
	}, nil
}

// GetPublicKey returns the ephemeral public key recorded for the given
// device in the session. Device identifiers may be base64 and arrive
// URL-encoded, so both raw and decoded forms are compared.
func (s *Migration) GetPublicKey(ctx context.Context, sessionCode, deviceID string) ([]byte, error) {
	session, err := s.getByCode(ctx, sessionCode)
	if err != nil {
		return nil, err
	}
	if err := s.requireLive(&session); err != nil {
		return nil, err
	}

	if session.SourceDeviceID != nil && deviceIDMatches(deviceID, *session.SourceDeviceID) && len(session.SourcePublicKey) > 0 {
		return session.SourcePublicKey, nil
	}
	if session.TargetDeviceID != nil && deviceIDMatches(deviceID, *session.TargetDeviceID) && len(session.TargetPublicKey) > 0 {
		return session.TargetPublicKey, nil
	}

	return nil, apperrors.NewErrDeviceNotFound(deviceID)
}

func (s *Migration) getByCode(ctx context.Context, sessionCode string) (model.MigrationSession, error) {
	session, err := s.sessionStore.GetByCode(ctx, sessionCode)
	if errors.Is(err, model.ErrNotFound) {
		return model.MigrationSession{}, apperrors.NewErrSessionNotFound(sessionCode)
	}
	if err != nil {
		return model.MigrationSession{}, apperrors.NewErrInternal(err)
	}
	return session, nil
}

// requireLive rejects sessions that cannot progress anymore. Expiry is
// checked lazily against the wall clock, not just the stored status.
func (s *Migration) requireLive(session *model.MigrationSession) error {
	switch session.Status {
	case model.StatusExpired:
		return apperrors.NewErrSessionExpired(session.SessionCode)
	case model.StatusCompleted, model.StatusCancelled:
		return apperrors.NewErrSessionStateConflict(fmt.Sprintf("session is %s", session.Status))
	}
	if session.IsExpired(time.Now()) {
		return apperrors.NewErrSessionExpired(session.SessionCode)
	}
	return nil
}

// verifyPayloadSignature checks the envelope signature as the
// authenticated-device proof of the source. The registered long-term key is
// preferred; sessions whose source never registered fall back to the
// session's ephemeral key.
func (s *Migration) verifyPayloadSignature(ctx context.Context, session *model.MigrationSession, params model.SendPayloadParams) error {
	var key []byte
	if params.SourceDeviceID != "" {
		device, err := s.deviceRegistry.GetByID(ctx, params.UserID, params.SourceDeviceID)
		if err == nil {
			key = device.PublicKey
		} else if !errors.Is(err, model.ErrNotFound) {
			return apperrors.NewErrInternal(err)
		}
	}
	if key == nil {
		key = session.SourcePublicKey
	}
	if key == nil {
		key = params.EphemeralPublicKey
	}
	if key == nil || len(params.Signature) == 0 {
		// Nothing to verify against; the bearer token already authenticated
		// the caller.
		return nil
	}

	ok, err := s.verifier.Verify(key, params.Ciphertext, params.Signature)
	if err != nil {
		return apperrors.NewErrInvalidRequest("payload signature key is malformed")
	}
	if !ok {
		return apperrors.NewErrUnauthorized("payload signature verification failed")
	}
	return nil
}

func registerTargetResult(session model.MigrationSession) model.RegisterTargetResult {
	return model.RegisterTargetResult{
		SourceDeviceID:       session.SourceDeviceID,
		UserID:               session.UserID,
		RequiresConfirmation: true,
	}
}

func generateSessionCode() (string, error) {
	buf := make([]byte, model.SessionCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// deviceIDMatches compares a caller-supplied device identifier against the
// recorded one, tolerating URL-encoding of identifiers that are themselves
// base64 ('+' arrives as a space after naive decoding).
func deviceIDMatches(candidate, recorded string) bool {
	if candidate == recorded {
		return true
	}
	if unescaped, err := url.QueryUnescape(candidate); err == nil && unescaped == recorded {
		return true
	}
	return strings.ReplaceAll(candidate, " ", "+") == recorded
}

func asAPIError(err error) *apperrors.APIError {
	var apiErr *apperrors.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
