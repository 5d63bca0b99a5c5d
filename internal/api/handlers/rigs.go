package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/internal/ledger"
	"github.com/wonny/rigledger/pkg/logger"
)

// RigsHandler handles per-rig queries
type RigsHandler struct {
	series SeriesReader
	logger *logger.Logger
}

// NewRigsHandler creates a new rigs handler
func NewRigsHandler(series SeriesReader, log *logger.Logger) *RigsHandler {
	return &RigsHandler{series: series, logger: log}
}

func rigIDFrom(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["rigID"], 10, 64)
	if err != nil || id <= 0 {
		return 0, contracts.ValidationError{Field: "rigId", Message: "must be a positive integer"}
	}
	return id, nil
}

// History returns raw readings of one rig
// GET /api/rigs/{rigID}/history?date=YYYY-MM-DD | ?from=&to= [&limit=]
func (h *RigsHandler) History(w http.ResponseWriter, r *http.Request) {
	rigID, err := rigIDFrom(r)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	q := r.URL.Query()
	query := contracts.HistoryQuery{
		Date: q.Get("date"),
		From: q.Get("from"),
		To:   q.Get("to"),
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil {
			respondServiceError(w, h.logger, contracts.ValidationError{Field: "limit", Message: "must be an integer"})
			return
		}
		query.Limit = limit
	}

	rows, err := h.series.History(r.Context(), rigID, query)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// Series returns the 1440-minute grid of one rig's day
// GET /api/rigs/{rigID}/series?date=YYYY-MM-DD
func (h *RigsHandler) Series(w http.ResponseWriter, r *http.Request) {
	rigID, err := rigIDFrom(r)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	grid, err := h.series.DailySeries(r.Context(), rigID, r.URL.Query().Get("date"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, grid)
}

// Lot returns the lot of one rig and day
// GET /api/rigs/{rigID}/lots/{date}
func (h *RigsHandler) Lot(w http.ResponseWriter, r *http.Request) {
	rigID, err := rigIDFrom(r)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	lot, err := h.series.LotSummary(r.Context(), rigID, mux.Vars(r)["date"])
	if errors.Is(err, ledger.ErrLotNotFound) {
		respondError(w, http.StatusNotFound, "Lot not found")
		return
	}
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, lot)
}
