package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/snapshot", handler.GetSnapshot).Methods("GET")
	api.HandleFunc("/positions/open", handler.GetOpenPositions).Methods("GET")
	api.HandleFunc("/positions/closed", handler.GetClosedPositions).Methods("GET")
	api.HandleFunc("/positions/{ticker}", handler.GetPosition).Methods("GET")
	api.HandleFunc("/analyze", handler.Analyze).Methods("POST")
	api.HandleFunc("/prices/refresh", handler.RefreshPrices).Methods("POST")
	api.HandleFunc("/history", handler.GetHistory).Methods("GET")

	return r
}
