package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/pkg/logger"
)

// maxBodyBytes bounds any request body; bulk batches are limited by row count
// in the ingestor as well.
const maxBodyBytes = 32 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondServiceError maps the error taxonomy onto HTTP statuses
// validation → 400, payload too large → 413, everything else → 500
func respondServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	var verr contracts.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error": verr.Message,
			"field": verr.Field,
		})
	case contracts.IsPayloadTooLarge(err):
		log.WithError(err).Warn("Payload too large")
		respondError(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		log.WithError(err).Error("Request failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON reads a bounded JSON body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
