package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/keyrelay/migration-server/internal/apperrors"
	"github.com/keyrelay/migration-server/internal/logger"
	"github.com/keyrelay/migration-server/internal/model"
)

// DeviceService defines device key registry operations.
type DeviceService interface {
	Register(ctx context.Context, device model.Device) (model.Device, error)
	List(ctx context.Context, userID uuid.UUID) ([]model.Device, error)
	Revoke(ctx context.Context, userID uuid.UUID, deviceID string) error
	MigrateKey(ctx context.Context, userID uuid.UUID, deviceID, keyID string, publicKey []byte) (model.Device, error)
}

// Device handles HTTP endpoints for the device key registry.
type Device struct {
	deviceService  DeviceService
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewDevice creates a new Device handler.
func NewDevice(deviceService DeviceService, contextManager model.ContextManager, logger *logger.Logger) *Device {
	return &Device{
		deviceService:  deviceService,
		contextManager: contextManager,
		logger:         logger,
	}
}

type registerDeviceRequest struct {
	DeviceID  string `json:"deviceId"`
	KeyID     string `json:"keyId"`
	PublicKey []byte `json:"publicKey"`
	Name      string `json:"name"`
}

type deviceResponse struct {
	DeviceID  string    `json:"deviceId"`
	KeyID     string    `json:"keyId"`
	PublicKey []byte    `json:"publicKey"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func toDeviceResponse(device model.Device) deviceResponse {
	return deviceResponse{
		DeviceID:  device.ID,
		KeyID:     device.KeyID,
		PublicKey: device.PublicKey,
		Name:      device.Name,
		CreatedAt: device.CreatedAt,
	}
}

// Register stores a long-term signing key for a device of the authenticated
// user.
func (h *Device) Register(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.contextManager.GetUserIDFromContext(r.Context())
	if !ok {
		handleError(w, apperrors.NewErrMissingAuthorizationToken())
		return
	}

	var req registerDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}

	device, err := h.deviceService.Register(r.Context(), model.Device{
		ID:        req.DeviceID,
		UserID:    userID,
		KeyID:     req.KeyID,
		PublicKey: req.PublicKey,
		Name:      req.Name,
	})
	if err != nil {
		h.logger.Error("Device handler: registration failed",
			"user_id", userID,
			"device_id", req.DeviceID,
			"error", err.Error())
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDeviceResponse(device))
}

// List returns the authenticated user's non-revoked devices.
func (h *Device) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.contextManager.GetUserIDFromContext(r.Context())
	if !ok {
		handleError(w, apperrors.NewErrMissingAuthorizationToken())
		return
	}

	devices, err := h.deviceService.List(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	out := make([]deviceResponse, 0, len(devices))
	for _, device := range devices {
		out = append(out, toDeviceResponse(device))
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": out})
}

// Revoke marks a device key as revoked.
func (h *Device) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.contextManager.GetUserIDFromContext(r.Context())
	if !ok {
		handleError(w, apperrors.NewErrMissingAuthorizationToken())
		return
	}

	deviceID := mux.Vars(r)["deviceId"]
	if err := h.deviceService.Revoke(r.Context(), userID, deviceID); err != nil {
		h.logger.Error("Device handler: revocation failed",
			"user_id", userID,
			"device_id", deviceID,
			"error", err.Error())
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

type migrateKeyRequest struct {
	KeyID     string `json:"keyId"`
	PublicKey []byte `json:"publicKey"`
}

// MigrateKey replaces a device's signing key in place.
func (h *Device) MigrateKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.contextManager.GetUserIDFromContext(r.Context())
	if !ok {
		handleError(w, apperrors.NewErrMissingAuthorizationToken())
		return
	}

	deviceID := mux.Vars(r)["deviceId"]

	var req migrateKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}

	device, err := h.deviceService.MigrateKey(r.Context(), userID, deviceID, req.KeyID, req.PublicKey)
	if err != nil {
		h.logger.Error("Device handler: key migration failed",
			"user_id", userID,
			"device_id", deviceID,
			"error", err.Error())
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDeviceResponse(device))
}
