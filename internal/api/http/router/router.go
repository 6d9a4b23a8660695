package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/keyrelay/migration-server/internal/api/http/handler"
	"github.com/keyrelay/migration-server/internal/api/http/middleware"
)

// Config bundles the handlers and middlewares the router wires together.
type Config struct {
	Migration    *handler.Migration
	Device       *handler.Device
	Authenticate *middleware.Authenticate
	Logging      *middleware.Logging
}

// New builds the HTTP route table.
//
// Target-side operations (register-target, public-key, payload retrieval)
// are reachable without a bearer token: the device performing them may not
// be signed in yet, so possession of the session code plus the tiered
// challenge-response check stand in for authentication. Confirm and status
// accept a token when present but do not require one.
func New(cfg Config) http.Handler {
	r := mux.NewRouter()
	r.Use(cfg.Logging.Handle)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	open := api.NewRoute().Subrouter()
	open.HandleFunc("/migration/register-target", cfg.Migration.RegisterTarget).Methods(http.MethodPost)
	open.HandleFunc("/migration/public-key", cfg.Migration.GetPublicKey).Methods(http.MethodGet)
	open.HandleFunc("/migration/payload", cfg.Migration.RetrievePayload).Methods(http.MethodGet)

	optional := api.NewRoute().Subrouter()
	optional.Use(cfg.Authenticate.Optional)
	optional.HandleFunc("/migration/confirm", cfg.Migration.Confirm).Methods(http.MethodPost)
	optional.HandleFunc("/migration/status", cfg.Migration.GetStatus).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(cfg.Authenticate.Require)
	protected.HandleFunc("/migration/initiate", cfg.Migration.Initiate).Methods(http.MethodPost)
	protected.HandleFunc("/migration/payload", cfg.Migration.SendPayload).Methods(http.MethodPost)
	protected.HandleFunc("/migration/cancel", cfg.Migration.Cancel).Methods(http.MethodPost)

	protected.HandleFunc("/devices", cfg.Device.Register).Methods(http.MethodPost)
	protected.HandleFunc("/devices", cfg.Device.List).Methods(http.MethodGet)
	protected.HandleFunc("/devices/{deviceId}", cfg.Device.Revoke).Methods(http.MethodDelete)
	protected.HandleFunc("/devices/{deviceId}/key", cfg.Device.MigrateKey).Methods(http.MethodPut)

	return r
}
