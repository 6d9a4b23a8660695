package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	httpctx "github.com/keyrelay/migration-server/internal/api/http/context"
	"github.com/keyrelay/migration-server/internal/apperrors"
	servermocks "github.com/keyrelay/migration-server/internal/mocks"
	"github.com/keyrelay/migration-server/internal/model"
	"github.com/keyrelay/migration-server/internal/testutil"
)

func newDeviceHandler(svc *servermocks.DeviceService) (*Device, *httpctx.Manager) {
	ctxMgr := httpctx.NewManager()
	return NewDevice(svc, ctxMgr, testutil.MakeNoopLogger()), ctxMgr
}

func TestDeviceHandler_Register(t *testing.T) {
	svc := &servermocks.DeviceService{}
	h, ctxMgr := newDeviceHandler(svc)
	userID := uuid.New()

	svc.On("Register", mock.Anything, model.Device{
		ID:        "device-1",
		UserID:    userID,
		KeyID:     "key-1",
		PublicKey: []byte("pk"),
		Name:      "Pixel 9",
	}).Return(model.Device{ID: "device-1", UserID: userID, KeyID: "key-1", PublicKey: []byte("pk"), Name: "Pixel 9"}, nil)

	body, _ := json.Marshal(map[string]any{
		"deviceId":  "device-1",
		"keyId":     "key-1",
		"publicKey": []byte("pk"),
		"name":      "Pixel 9",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/devices", bytes.NewReader(body))
	req = authenticated(req, ctxMgr, userID)
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		DeviceID string `json:"deviceId"`
		KeyID    string `json:"keyId"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "device-1", resp.DeviceID)
	assert.Equal(t, "key-1", resp.KeyID)
}

func TestDeviceHandler_Register_Duplicate(t *testing.T) {
	svc := &servermocks.DeviceService{}
	h, ctxMgr := newDeviceHandler(svc)

	svc.On("Register", mock.Anything, mock.Anything).
		Return(model.Device{}, apperrors.NewErrDeviceAlreadyRegistered("device-1"))

	body, _ := json.Marshal(map[string]any{"deviceId": "device-1", "publicKey": []byte("pk")})
	req := httptest.NewRequest(http.MethodPost, "/api/devices", bytes.NewReader(body))
	req = authenticated(req, ctxMgr, uuid.New())
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeviceHandler_List(t *testing.T) {
	svc := &servermocks.DeviceService{}
	h, ctxMgr := newDeviceHandler(svc)
	userID := uuid.New()

	svc.On("List", mock.Anything, userID).Return([]model.Device{
		{ID: "device-1", KeyID: "key-1"},
		{ID: "device-2", KeyID: "key-2"},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	req = authenticated(req, ctxMgr, userID)
	rec := httptest.NewRecorder()

	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Devices []struct {
			DeviceID string `json:"deviceId"`
		} `json:"devices"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Devices, 2)
	assert.Equal(t, "device-1", resp.Devices[0].DeviceID)
}

func TestDeviceHandler_Revoke(t *testing.T) {
	svc := &servermocks.DeviceService{}
	h, ctxMgr := newDeviceHandler(svc)
	userID := uuid.New()

	svc.On("Revoke", mock.Anything, userID, "device-1").Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/devices/device-1", nil)
	req = mux.SetURLVars(req, map[string]string{"deviceId": "device-1"})
	req = authenticated(req, ctxMgr, userID)
	rec := httptest.NewRecorder()

	h.Revoke(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestDeviceHandler_MigrateKey(t *testing.T) {
	svc := &servermocks.DeviceService{}
	h, ctxMgr := newDeviceHandler(svc)
	userID := uuid.New()

	svc.On("MigrateKey", mock.Anything, userID, "device-1", "key-2", []byte("new-pk")).
		Return(model.Device{ID: "device-1", KeyID: "key-2", PublicKey: []byte("new-pk")}, nil)

	body, _ := json.Marshal(map[string]any{"keyId": "key-2", "publicKey": []byte("new-pk")})
	req := httptest.NewRequest(http.MethodPut, "/api/devices/device-1/key", bytes.NewReader(body))
	req = mux.SetURLVars(req, map[string]string{"deviceId": "device-1"})
	req = authenticated(req, ctxMgr, userID)
	rec := httptest.NewRecorder()

	h.MigrateKey(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		KeyID string `json:"keyId"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "key-2", resp.KeyID)
}

func TestDeviceHandler_Unauthenticated(t *testing.T) {
	svc := &servermocks.DeviceService{}
	h, _ := newDeviceHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	rec := httptest.NewRecorder()

	h.List(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}
