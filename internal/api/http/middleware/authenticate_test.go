package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpctx "github.com/keyrelay/migration-server/internal/api/http/context"
	servermocks "github.com/keyrelay/migration-server/internal/mocks"
	"github.com/keyrelay/migration-server/internal/testutil"
	"github.com/keyrelay/migration-server/internal/token"
)

func TestAuthenticate_Require(t *testing.T) {
	manager := token.NewJWT("test-secret")
	ctxMgr := httpctx.NewManager()
	mw := NewAuthenticate(manager, ctxMgr, testutil.MakeNoopLogger())

	userID := uuid.New()
	tokenString, err := manager.GenerateAccessToken(userID)
	require.NoError(t, err)

	var gotUserID uuid.UUID
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotUserID, _ = ctxMgr.GetUserIDFromContext(r.Context())
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCalled bool
	}{
		{name: "valid token", header: "Bearer " + tokenString, wantStatus: http.StatusOK, wantCalled: true},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer garbage", wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + mustToken(t, "other-secret", userID), wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			mw.Require(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalled, called)
			if tt.wantCalled {
				assert.Equal(t, userID, gotUserID)
			}
		})
	}
}

func TestAuthenticate_Optional(t *testing.T) {
	manager := token.NewJWT("test-secret")
	ctxMgr := httpctx.NewManager()
	mw := NewAuthenticate(manager, ctxMgr, testutil.MakeNoopLogger())

	userID := uuid.New()
	tokenString, err := manager.GenerateAccessToken(userID)
	require.NoError(t, err)

	var gotUserID uuid.UUID
	var hadUserID bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, hadUserID = ctxMgr.GetUserIDFromContext(r.Context())
	})

	// With a token the user ID lands in the context.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	rec := httptest.NewRecorder()
	mw.Optional(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, hadUserID)
	assert.Equal(t, userID, gotUserID)

	// Without one the request passes through anonymously.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	mw.Optional(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, hadUserID)
}

func TestAuthenticate_Require_NilUserID(t *testing.T) {
	parser := &servermocks.TokenManager{}
	ctxMgr := httpctx.NewManager()
	mw := NewAuthenticate(parser, ctxMgr, testutil.MakeNoopLogger())

	parser.On("ParseAccessToken", "sneaky").Return(uuid.Nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer sneaky")
	rec := httptest.NewRecorder()

	mw.Require(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run for a nil user ID")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func mustToken(t *testing.T, secret string, userID uuid.UUID) string {
	t.Helper()
	s, err := token.NewJWT(secret).GenerateAccessToken(userID)
	require.NoError(t, err)
	return s
}
