package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/keyrelay/migration-server/internal/apperrors"
	"github.com/keyrelay/migration-server/internal/logger"
	"github.com/keyrelay/migration-server/internal/model"
)

// TokenParser resolves user IDs from bearer tokens.
type TokenParser interface {
	ParseAccessToken(token string) (uuid.UUID, error)
}

// Authenticate validates bearer tokens and injects the user ID into the
// request context.
type Authenticate struct {
	tokenParser    TokenParser
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(tokenParser TokenParser, contextManager model.ContextManager, logger *logger.Logger) *Authenticate {
	return &Authenticate{tokenParser: tokenParser, contextManager: contextManager, logger: logger}
}

// Require rejects requests without a valid bearer token.
func (m *Authenticate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.userIDFromRequest(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(m.contextManager.SetUserIDToContext(r.Context(), userID)))
	})
}

// Optional injects the user ID when a valid bearer token is present and
// passes the request through otherwise. Used by operations whose
// authorization is relaxed for devices that have no registered key yet.
func (m *Authenticate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.userIDFromRequest(r)
		if err == nil {
			r = r.WithContext(m.contextManager.SetUserIDToContext(r.Context(), userID))
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Authenticate) userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return uuid.Nil, apperrors.NewErrMissingAuthorizationToken()
	}

	tokenString := strings.TrimPrefix(header, "Bearer ")
	userID, err := m.tokenParser.ParseAccessToken(tokenString)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, apperrors.NewErrInvalidAuthorizationToken()
	}

	return userID, nil
}

func writeAuthError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*apperrors.APIError)
	if !ok {
		apiErr = apperrors.NewErrInternal(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"kind":    string(apiErr.Kind),
			"message": apiErr.Message,
		},
	})
}
