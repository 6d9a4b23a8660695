package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/keyrelay/migration-server/internal/apperrors"
	"github.com/keyrelay/migration-server/internal/logger"
	"github.com/keyrelay/migration-server/internal/model"
)

// MigrationService defines the migration session lifecycle operations.
type MigrationService interface {
	Initiate(ctx context.Context, params model.InitiateParams) (model.InitiateResult, error)
	RegisterTarget(ctx context.Context, params model.RegisterTargetParams) (model.RegisterTargetResult, error)
	SendPayload(ctx context.Context, params model.SendPayloadParams) error
	RetrievePayload(ctx context.Context, sessionCode string, proof model.AuthProof) (model.RetrievedPayload, error)
	Confirm(ctx context.Context, params model.ConfirmParams) error
	Cancel(ctx context.Context, sessionID, userID uuid.UUID) error
	GetStatus(ctx context.Context, sessionCode string, callerID *uuid.UUID) (model.SessionStatusView, error)
	GetPublicKey(ctx context.Context, sessionCode, deviceID string) ([]byte, error)
}

// Migration handles HTTP endpoints for the migration session protocol.
type Migration struct {
	migrationService MigrationService
	contextManager   model.ContextManager
	logger           *logger.Logger
}

// NewMigration creates a new Migration handler.
func NewMigration(migrationService MigrationService, contextManager model.ContextManager, logger *logger.Logger) *Migration {
	return &Migration{
		migrationService: migrationService,
		contextManager:   contextManager,
		logger:           logger,
	}
}

type initiateRequest struct {
	SourceDeviceID  string `json:"sourceDeviceId"`
	SourcePublicKey []byte `json:"sourcePublicKey"`
}

type initiateResponse struct {
	SessionCode string    `json:"sessionCode"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Initiate starts a migration session for the authenticated user.
func (h *Migration) Initiate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.contextManager.GetUserIDFromContext(r.Context())
	if !ok {
		handleError(w, apperrors.NewErrMissingAuthorizationToken())
		return
	}

	var req initiateRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.SourceDeviceID == "" {
		handleError(w, apperrors.NewErrInvalidRequest("sourceDeviceId is required"))
		return
	}
	if len(req.SourcePublicKey) == 0 {
		handleError(w, apperrors.NewErrInvalidRequest("sourcePublicKey is required"))
		return
	}

	h.logger.Debug("Migration handler: processing initiate request",
		"user_id", userID,
		"source_device_id", req.SourceDeviceID)

	result, err := h.migrationService.Initiate(r.Context(), model.InitiateParams{
		UserID:          userID,
		SourceDeviceID:  req.SourceDeviceID,
		SourcePublicKey: req.SourcePublicKey,
	})
	if err != nil {
		h.logger.Error("Migration handler: initiate failed",
			"user_id", userID,
			"error", err.Error())
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, initiateResponse{
		SessionCode: result.SessionCode,
		ExpiresAt:   result.ExpiresAt,
	})
}

type registerTargetRequest struct {
	SessionCode       string  `json:"sessionCode"`
	TargetDeviceID    string  `json:"targetDeviceId"`
	TargetDeviceKeyID *string `json:"targetDeviceKeyId,omitempty"`
	TargetPublicKey   []byte  `json:"targetPublicKey"`
}

type registerTargetResponse struct {
	SourceDeviceID       *string    `json:"sourceDeviceId,omitempty"`
	UserID               *uuid.UUID `json:"userId,omitempty"`
	RequiresConfirmation bool       `json:"requiresConfirmation"`
}

// RegisterTarget binds the calling device as the session's target. The
// endpoint is unauthenticated: the session code is the only proof of
// possession a not-yet-registered device can present.
func (h *Migration) RegisterTarget(w http.ResponseWriter, r *http.Request) {
	var req registerTargetRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.SessionCode == "" || req.TargetDeviceID == "" {
		handleError(w, apperrors.NewErrInvalidRequest("sessionCode and targetDeviceId are required"))
		return
	}
	if len(req.TargetPublicKey) == 0 {
		handleError(w, apperrors.NewErrInvalidRequest("targetPublicKey is required"))
		return
	}

	h.logger.Debug("Migration handler: processing target registration",
		"session_code", req.SessionCode,
		"target_device_id", req.TargetDeviceID)

	result, err := h.migrationService.RegisterTarget(r.Context(), model.RegisterTargetParams{
		SessionCode:       req.SessionCode,
		TargetDeviceID:    req.TargetDeviceID,
		TargetDeviceKeyID: req.TargetDeviceKeyID,
		TargetPublicKey:   req.TargetPublicKey,
	})
	if err != nil {
		h.logger.Error("Migration handler: target registration failed",
			"session_code", req.SessionCode,
			"error", err.Error())
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, registerTargetResponse{
		SourceDeviceID:       result.SourceDeviceID,
		UserID:               result.UserID,
		RequiresConfirmation: result.RequiresConfirmation,
	})
}

type publicKeyResponse struct {
	PublicKey []byte `json:"publicKey"`
}

// GetPublicKey returns the ephemeral public key recorded for a device in a
// session, so each side can fetch the other's key-exchange key.
func (h *Migration) GetPublicKey(w http.ResponseWriter, r *http.Request) {
	sessionCode := r.URL.Query().Get("sessionCode")
	deviceID := r.URL.Query().Get("deviceId")
	if sessionCode == "" || deviceID == "" {
		handleError(w, apperrors.NewErrInvalidRequest("sessionCode and deviceId are required"))
		return
	}

	key, err := h.migrationService.GetPublicKey(r.Context(), sessionCode, deviceID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, publicKeyResponse{PublicKey: key})
}

type encryptedPayloadBody struct {
	Ciphertext         []byte  `json:"ciphertext"`
	EphemeralPublicKey []byte  `json:"ephemeralPublicKey"`
	Signature          []byte  `json:"signature"`
	SourceDeviceID     string  `json:"sourceDeviceId"`
	TargetDeviceID     string  `json:"targetDeviceId"`
	SigningKeyID       *string `json:"signingKeyId,omitempty"`
	KeyVersion         int     `json:"keyVersion"`
}

type sendPayloadRequest struct {
	SessionCode      string               `json:"sessionCode"`
	EncryptedPayload encryptedPayloadBody `json:"encryptedPayload"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// SendPayload stores the encrypted payload for the session's target.
func (h *Migration) SendPayload(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.contextManager.GetUserIDFromContext(r.Context())
	if !ok {
		handleError(w, apperrors.NewErrMissingAuthorizationToken())
		return
	}

	var req sendPayloadRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.SessionCode == "" {
		handleError(w, apperrors.NewErrInvalidRequest("sessionCode is required"))
		return
	}
	if len(req.EncryptedPayload.Ciphertext) == 0 {
		handleError(w, apperrors.NewErrInvalidRequest("encryptedPayload.ciphertext is required"))
		return
	}

	h.logger.Debug("Migration handler: processing payload upload",
		"session_code", req.SessionCode,
		"user_id", userID,
		"ciphertext_bytes", len(req.EncryptedPayload.Ciphertext))

	err := h.migrationService.SendPayload(r.Context(), model.SendPayloadParams{
		SessionCode:        req.SessionCode,
		UserID:             userID,
		Ciphertext:         req.EncryptedPayload.Ciphertext,
		EphemeralPublicKey: req.EncryptedPayload.EphemeralPublicKey,
		Signature:          req.EncryptedPayload.Signature,
		SourceDeviceID:     req.EncryptedPayload.SourceDeviceID,
		TargetDeviceID:     req.EncryptedPayload.TargetDeviceID,
		SigningKeyID:       req.EncryptedPayload.SigningKeyID,
		KeyVersion:         req.EncryptedPayload.KeyVersion,
	})
	if err != nil {
		h.logger.Error("Migration handler: payload upload failed",
			"session_code", req.SessionCode,
			"error", err.Error())
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

type retrievePayloadResponse struct {
	Ciphertext         []byte    `json:"ciphertext"`
	EphemeralPublicKey []byte    `json:"ephemeralPublicKey,omitempty"`
	Signature          []byte    `json:"signature,omitempty"`
	SourceDeviceID     string    `json:"sourceDeviceId,omitempty"`
	TargetDeviceID     string    `json:"targetDeviceId,omitempty"`
	KeyVersion         int       `json:"keyVersion"`
	CreatedAt          time.Time `json:"createdAt"`
}

// RetrievePayload hands the payload to a caller that passes the tiered
// challenge-response authorization carried in the X-Timestamp, X-Signature
// and X-Device-ID headers.
func (h *Migration) RetrievePayload(w http.ResponseWriter, r *http.Request) {
	sessionCode := r.URL.Query().Get("sessionCode")
	if sessionCode == "" {
		handleError(w, apperrors.NewErrInvalidRequest("sessionCode is required"))
		return
	}

	proof := model.AuthProof{
		Timestamp: r.Header.Get("X-Timestamp"),
		DeviceID:  r.Header.Get("X-Device-ID"),
	}
	if sig := r.Header.Get("X-Signature"); sig != "" {
		proof.Signature = []byte(sig)
	}

	payload, err := h.migrationService.RetrievePayload(r.Context(), sessionCode, proof)
	if err != nil {
		h.logger.Error("Migration handler: payload retrieval failed",
			"session_code", sessionCode,
			"error", err.Error())
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, retrievePayloadResponse{
		Ciphertext:         payload.Ciphertext,
		EphemeralPublicKey: payload.EphemeralPublicKey,
		Signature:          payload.Signature,
		SourceDeviceID:     payload.SourceDeviceID,
		TargetDeviceID:     payload.TargetDeviceID,
		KeyVersion:         payload.KeyVersion,
		CreatedAt:          payload.CreatedAt,
	})
}

type confirmRequest struct {
	SessionCode    string `json:"sessionCode"`
	TargetDeviceID string `json:"targetDeviceId"`
}

// Confirm finalizes a migration. A bearer token is accepted but not
// required: matching the recorded target device identifier already proves
// participation in the earlier protocol steps.
func (h *Migration) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.SessionCode == "" || req.TargetDeviceID == "" {
		handleError(w, apperrors.NewErrInvalidRequest("sessionCode and targetDeviceId are required"))
		return
	}

	params := model.ConfirmParams{
		SessionCode:    req.SessionCode,
		TargetDeviceID: req.TargetDeviceID,
	}
	if userID, ok := h.contextManager.GetUserIDFromContext(r.Context()); ok {
		params.UserID = &userID
	}

	if err := h.migrationService.Confirm(r.Context(), params); err != nil {
		h.logger.Error("Migration handler: confirm failed",
			"session_code", req.SessionCode,
			"error", err.Error())
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

type cancelRequest struct {
	SessionID uuid.UUID `json:"sessionId"`
}

// Cancel moves a non-terminal session to CANCELLED on behalf of its owner.
func (h *Migration) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.contextManager.GetUserIDFromContext(r.Context())
	if !ok {
		handleError(w, apperrors.NewErrMissingAuthorizationToken())
		return
	}

	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.SessionID == uuid.Nil {
		handleError(w, apperrors.NewErrInvalidRequest("sessionId is required"))
		return
	}

	if err := h.migrationService.Cancel(r.Context(), req.SessionID, userID); err != nil {
		h.logger.Error("Migration handler: cancel failed",
			"session_id", req.SessionID,
			"error", err.Error())
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

type statusResponse struct {
	Status          model.SessionStatus `json:"status"`
	SourceDeviceID  *string             `json:"sourceDeviceId,omitempty"`
	TargetDeviceID  *string             `json:"targetDeviceId,omitempty"`
	TargetPublicKey []byte              `json:"targetPublicKey,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	ExpiresAt       time.Time           `json:"expiresAt"`
}

// GetStatus reports the session's externally visible state. Authorization is
// relaxed for placeholder sessions, which have no owner to authenticate as.
func (h *Migration) GetStatus(w http.ResponseWriter, r *http.Request) {
	sessionCode := r.URL.Query().Get("sessionCode")
	if sessionCode == "" {
		handleError(w, apperrors.NewErrInvalidRequest("sessionCode is required"))
		return
	}

	var callerID *uuid.UUID
	if userID, ok := h.contextManager.GetUserIDFromContext(r.Context()); ok {
		callerID = &userID
	}

	view, err := h.migrationService.GetStatus(r.Context(), sessionCode, callerID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:          view.Status,
		SourceDeviceID:  view.SourceDeviceID,
		TargetDeviceID:  view.TargetDeviceID,
		TargetPublicKey: view.TargetPublicKey,
		CreatedAt:       view.CreatedAt,
		ExpiresAt:       view.ExpiresAt,
	})
}
