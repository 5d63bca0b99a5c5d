package contracts

import "time"

// RigReading is the most recent reading of one rig
type RigReading struct {
	Reading
	RigName   string `json:"rigName,omitempty"`
	RigStatus string `json:"rigStatus,omitempty"`
}

// RigSummary aggregates one rig's readings over a local-day window
type RigSummary struct {
	RigID         int64               `json:"rigId"`
	Readings      int64               `json:"readings"`
	TotalQuantity float64             `json:"totalQuantity"`
	Averages      map[string]*float64 `json:"averages"`
	FirstAt       time.Time           `json:"firstAt"`
	LastAt        time.Time           `json:"lastAt"`
}

// TodaySummary is the answer of the today-summary query
type TodaySummary struct {
	Date string       `json:"date"`
	Rigs []RigSummary `json:"rigs"`
}

// HistoryQuery selects raw readings of one rig.
// Either Date or both From and To must be set; Limit is advisory.
type HistoryQuery struct {
	Date  string
	From  string
	To    string
	Limit int
}

// DailySeries is a fixed minute grid of one rig's local day
type DailySeries struct {
	Date   string                `json:"date"`
	Labels []string              `json:"labels"`
	Series map[string][]*float64 `json:"series"`
}
