package handler

import (
	"encoding/json"
	"net/http"

	"github.com/keyrelay/migration-server/internal/apperrors"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// handleError maps a service failure onto the wire taxonomy. Anything that
// is not an APIError surfaces as a generic internal error.
func handleError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*apperrors.APIError)
	if !ok {
		apiErr = apperrors.NewErrInternal(err)
	}

	writeJSON(w, apiErr.HTTPStatus, errorResponse{
		Error: errorBody{
			Kind:    string(apiErr.Kind),
			Message: apiErr.Message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.NewErrInvalidRequest("request body is not valid JSON")
	}
	return nil
}
