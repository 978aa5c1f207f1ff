package routes

import (
	"rl-orchestrator/api/rest/handlers"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, modelHandler *handlers.ModelHandler, metricsHandler *handlers.MetricsHandler) {
	api := r.PathPrefix("/v1").Subrouter()

	// Model lifecycle
	api.HandleFunc("/models", modelHandler.CreateModel).Methods("POST")
	api.HandleFunc("/models/{id}", modelHandler.GetModel).Methods("GET")
	api.HandleFunc("/models/{id}/evaluations", modelHandler.StartEvaluation).Methods("POST")
	api.HandleFunc("/models/{id}/submissions", modelHandler.SubmitToLeaderboard).Methods("POST")
	api.HandleFunc("/models/{id}/stop", modelHandler.StopModel).Methods("POST")

	// Metrics and quota
	api.HandleFunc("/metrics", metricsHandler.SystemCounts).Methods("GET")
	api.HandleFunc("/metrics/profiles/{id}", metricsHandler.ProfileCounts).Methods("GET")
	api.HandleFunc("/metrics/models/{id}", metricsHandler.ModelCounts).Methods("GET")
	api.HandleFunc("/profiles/{id}/usage", metricsHandler.ProfileUsage).Methods("GET")
	api.HandleFunc("/admin/quota-reset", metricsHandler.ResetQuotas).Methods("POST")
}
