package handlers

import (
	"context"
	"net/http"

	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/internal/simulator"
	"github.com/wonny/rigledger/pkg/logger"
)

// Simulator is the control surface of the synthetic generator
type Simulator interface {
	BulkGenerate(ctx context.Context, rigIDs []int64) (*contracts.BulkResult, error)
	Backfill(ctx context.Context, req simulator.BackfillRequest) (*simulator.BackfillResult, error)
	BackfillRigs(ctx context.Context, reqs []simulator.BackfillRequest) ([]*simulator.BackfillResult, error)
}

// SimulatorHandler handles simulator control endpoints
type SimulatorHandler struct {
	sim    Simulator
	logger *logger.Logger
}

// NewSimulatorHandler creates a new simulator handler
func NewSimulatorHandler(sim Simulator, log *logger.Logger) *SimulatorHandler {
	return &SimulatorHandler{sim: sim, logger: log}
}

// GenerateRequest asks for one sample per rig, now
type GenerateRequest struct {
	RigIDs []int64 `json:"rigIds"`
}

// Generate ingests one live sample per rig
// POST /api/simulator/generate
func (h *SimulatorHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.sim.BulkGenerate(r.Context(), req.RigIDs)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// BackfillRequest backfills one rig ({rigId}) or several ({rigIds}) for a date
type BackfillRequest struct {
	RigID     int64   `json:"rigId"`
	RigIDs    []int64 `json:"rigIds,omitempty"`
	Date      string  `json:"date"`
	Overwrite bool    `json:"overwrite"`
}

// Backfill generates and ingests whole days
// POST /api/simulator/backfill
func (h *SimulatorHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	var req BackfillRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.RigIDs) == 0 {
		result, err := h.sim.Backfill(r.Context(), simulator.BackfillRequest{
			RigID:     req.RigID,
			Date:      req.Date,
			Overwrite: req.Overwrite,
		})
		if err != nil {
			respondServiceError(w, h.logger, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
		return
	}

	reqs, err := simulator.ExpandRequests(req.RigIDs, req.Date, req.Date, req.Overwrite)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	results, err := h.sim.BackfillRigs(r.Context(), reqs)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}
