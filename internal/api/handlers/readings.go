package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/pkg/logger"
)

// Ingestor is the write path behind the readings endpoints
type Ingestor interface {
	IngestOne(ctx context.Context, in contracts.ReadingInput) (*contracts.IngestResult, error)
	IngestBulk(ctx context.Context, inputs []contracts.ReadingInput) (*contracts.BulkResult, error)
}

// SeriesReader is the read path behind the query endpoints
type SeriesReader interface {
	LatestPerRig(ctx context.Context) ([]contracts.RigReading, error)
	SummaryToday(ctx context.Context) (*contracts.TodaySummary, error)
	History(ctx context.Context, rigID int64, q contracts.HistoryQuery) ([]contracts.Reading, error)
	DailySeries(ctx context.Context, rigID int64, day string) (*contracts.DailySeries, error)
	LotSummary(ctx context.Context, rigID int64, day string) (*contracts.Lot, error)
}

// ReadingsHandler handles ingestion and rig-wide queries
// ⭐ SSOT: readings API 핸들러는 이 구조체에서만
type ReadingsHandler struct {
	ingestor Ingestor
	series   SeriesReader
	logger   *logger.Logger
}

// NewReadingsHandler creates a new readings handler
func NewReadingsHandler(ing Ingestor, series SeriesReader, log *logger.Logger) *ReadingsHandler {
	return &ReadingsHandler{
		ingestor: ing,
		series:   series,
		logger:   log,
	}
}

// IngestOne stores one reading
// POST /api/readings
func (h *ReadingsHandler) IngestOne(w http.ResponseWriter, r *http.Request) {
	var in contracts.ReadingInput
	if !decodeJSON(w, r, &in) {
		return
	}

	result, err := h.ingestor.IngestOne(r.Context(), in)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// BulkRequest is the object form of a bulk ingest body; a bare JSON array
// of readings is accepted as well.
type BulkRequest struct {
	Readings []contracts.ReadingInput `json:"readings"`
}

// IngestBulk stores a batch atomically
// POST /api/readings/bulk
func (h *ReadingsHandler) IngestBulk(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !decodeJSON(w, r, &raw) {
		return
	}

	var inputs []contracts.ReadingInput
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &inputs); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	} else {
		var req BulkRequest
		if err := json.Unmarshal(trimmed, &req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		inputs = req.Readings
	}

	result, err := h.ingestor.IngestBulk(r.Context(), inputs)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// Latest returns the newest reading of every rig
// GET /api/readings/latest
func (h *ReadingsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	latest, err := h.series.LatestPerRig(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, latest)
}

// Today returns the per-rig summary of the current local day
// GET /api/readings/today
func (h *ReadingsHandler) Today(w http.ResponseWriter, r *http.Request) {
	summary, err := h.series.SummaryToday(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}
