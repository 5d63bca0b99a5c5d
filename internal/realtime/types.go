package realtime

import (
	"time"

	"github.com/wonny/rigledger/internal/contracts"
)

// EventType names a pushed message
type EventType string

const (
	EventReadings EventType = "readings"
)

// Event is one message pushed to live clients
// ⭐ SSOT: 실시간 푸시 메시지 구조
type Event struct {
	Type     EventType           `json:"type"`
	SentAt   time.Time           `json:"sentAt"`
	Readings []contracts.Reading `json:"readings,omitempty"`
}
