package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/rigledger/internal/api/handlers"
	"github.com/wonny/rigledger/pkg/logger"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Readings  *handlers.ReadingsHandler
	Rigs      *handlers.RigsHandler
	Simulator *handlers.SimulatorHandler
	// Live serves the websocket stream; nil disables the route
	Live http.Handler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, limiter *IngestLimiter, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Queries
	api.HandleFunc("/readings/latest", h.Readings.Latest).Methods("GET")
	api.HandleFunc("/readings/today", h.Readings.Today).Methods("GET")
	api.HandleFunc("/rigs/{rigID:[0-9]+}/history", h.Rigs.History).Methods("GET")
	api.HandleFunc("/rigs/{rigID:[0-9]+}/series", h.Rigs.Series).Methods("GET")
	api.HandleFunc("/rigs/{rigID:[0-9]+}/lots/{date}", h.Rigs.Lot).Methods("GET")

	// Ingestion (rate limited)
	api.Handle("/readings", limiter.Middleware(http.HandlerFunc(h.Readings.IngestOne))).Methods("POST")
	api.Handle("/readings/bulk", limiter.Middleware(http.HandlerFunc(h.Readings.IngestBulk))).Methods("POST")

	// Simulator control
	if h.Simulator != nil {
		api.HandleFunc("/simulator/generate", h.Simulator.Generate).Methods("POST")
		api.HandleFunc("/simulator/backfill", h.Simulator.Backfill).Methods("POST")
	}

	if h.Live != nil {
		r.Handle("/ws/readings", h.Live).Methods("GET")
	}

	// Apply middleware
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "rigledger-api",
	})
}
