package contracts

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	validation := fmt.Errorf("ingest: %w", ValidationError{"rigId", "required"})
	storage := fmt.Errorf("ingest: %w", &StorageError{Op: "insert reading", Err: errors.New("conn reset")})
	tooLarge := fmt.Errorf("backfill: %w", &PayloadTooLargeError{Rows: 9000, Limit: 5000})

	tests := []struct {
		name                         string
		err                          error
		isValidation, isStorage, big bool
	}{
		{"validation", validation, true, false, false},
		{"storage", storage, false, true, false},
		{"payload too large", tooLarge, false, false, true},
		{"plain", errors.New("x"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isValidation, IsValidation(tt.err))
			assert.Equal(t, tt.isStorage, IsStorage(tt.err))
			assert.Equal(t, tt.big, IsPayloadTooLarge(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "rigId: required", ValidationError{"rigId", "required"}.Error())
	assert.Contains(t, (&PayloadTooLargeError{Rows: 9000, Limit: 5000}).Error(), "9000 rows exceeds limit of 5000")

	inner := errors.New("conn reset")
	se := &StorageError{Op: "commit", Err: inner}
	assert.ErrorIs(t, se, inner)
	assert.Equal(t, "storage commit: conn reset", se.Error())
}
