package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stanstork/bulkgen/internal/authz"
	"github.com/stanstork/bulkgen/internal/handlers"
)

// NewRouter wires every HTTP endpoint. exportDir is served under /exports
// for the local artifact publisher; an empty value disables it.
func NewRouter(
	auth *handlers.AuthHandler,
	ajax *handlers.AjaxHandler,
	runs *handlers.RunsHandler,
	health *handlers.HealthHandler,
	metricsHandler http.Handler,
	exportDir string,
) *mux.Router {
	router := mux.NewRouter()

	// Health check and metrics
	router.HandleFunc("/health", health.HealthCheck).Methods(http.MethodGet)
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	// Public auth endpoints
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	if exportDir != "" {
		router.PathPrefix("/exports/").Handler(
			http.StripPrefix("/exports/", http.FileServer(http.Dir(exportDir))),
		).Methods(http.MethodGet)
	}

	// Protected API routes
	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware)
	api.Use(authz.RequireCapability(authz.ManageStore))

	api.HandleFunc("/nonces", auth.Nonces).Methods(http.MethodGet)
	api.HandleFunc("/ajax/{action}", ajax.Dispatch).Methods(http.MethodPost)

	api.HandleFunc("/runs", runs.ListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/stats", runs.RunStats).Methods(http.MethodGet)
	api.HandleFunc("/runs", runs.StartRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/{runID}", runs.GetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{runID}/stop", runs.StopRun).Methods(http.MethodPost)

	return router
}
