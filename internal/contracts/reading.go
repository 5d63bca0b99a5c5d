package contracts

import "time"

// Channel identifies one independently tracked measured quantity
type Channel int

const (
	ChannelQuantity Channel = iota
	ChannelPressure
	ChannelTemperature
	ChannelHumidity
	ChannelCO2
	ChannelH2S
	ChannelMercury
	ChannelWater

	// NumChannels is the number of channels on every reading
	NumChannels
)

var channelNames = [NumChannels]string{
	"quantity",
	"pressure",
	"temperature",
	"humidity",
	"co2",
	"h2s",
	"mercury",
	"water",
}

// String returns the wire/column name of the channel
func (c Channel) String() string {
	if c < 0 || c >= NumChannels {
		return "unknown"
	}
	return channelNames[c]
}

// Channels returns all channels in column order
func Channels() []Channel {
	out := make([]Channel, NumChannels)
	for i := range out {
		out[i] = Channel(i)
	}
	return out
}

// ParseChannel maps a channel name back to its Channel
func ParseChannel(name string) (Channel, bool) {
	for i, n := range channelNames {
		if n == name {
			return Channel(i), true
		}
	}
	return 0, false
}

// Values holds the nullable channel values of one reading.
// A nil pointer means the channel was not reported.
type Values struct {
	Quantity    *float64 `json:"quantity,omitempty"`
	Pressure    *float64 `json:"pressure,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	CO2         *float64 `json:"co2,omitempty"`
	H2S         *float64 `json:"h2s,omitempty"`
	Mercury     *float64 `json:"mercury,omitempty"`
	Water       *float64 `json:"water,omitempty"`
}

func (v *Values) slot(c Channel) **float64 {
	switch c {
	case ChannelQuantity:
		return &v.Quantity
	case ChannelPressure:
		return &v.Pressure
	case ChannelTemperature:
		return &v.Temperature
	case ChannelHumidity:
		return &v.Humidity
	case ChannelCO2:
		return &v.CO2
	case ChannelH2S:
		return &v.H2S
	case ChannelMercury:
		return &v.Mercury
	case ChannelWater:
		return &v.Water
	}
	return nil
}

// Get returns the value of channel c (nil when absent)
func (v *Values) Get(c Channel) *float64 {
	if s := v.slot(c); s != nil {
		return *s
	}
	return nil
}

// Set stores x as the value of channel c
func (v *Values) Set(c Channel, x float64) {
	if s := v.slot(c); s != nil {
		*s = &x
	}
}

// Args returns the channel values in column order, ready for a query
func (v *Values) Args() []interface{} {
	out := make([]interface{}, 0, NumChannels)
	for _, c := range Channels() {
		out = append(out, v.Get(c))
	}
	return out
}

// ReadingInput is one ingestion request
type ReadingInput struct {
	RigID int64 `json:"rigId"`
	Values
	ProductStatus *string `json:"productStatus,omitempty"`

	// RecordedAt is either a local "YYYY-MM-DD HH:MM:SS" string or an
	// RFC 3339 instant. Empty means "now".
	RecordedAt string `json:"recordedAt,omitempty"`
	ForceNow   bool   `json:"forceNow,omitempty"`
}

// Reading is one persisted, timestamped multi-channel observation
type Reading struct {
	ID         int64     `json:"id"`
	LotID      int64     `json:"lotId"`
	RigID      int64     `json:"rigId"`
	RecordedAt time.Time `json:"recordedAt"`
	Values
	ProductStatus *string `json:"productStatus,omitempty"`
}

// Lot is the per-rig, per-local-day ledger entry
type Lot struct {
	ID           int64   `json:"id"`
	RigID        int64   `json:"rigId"`
	LotDate      string  `json:"lotDate"`
	Status       string  `json:"status"`
	TotalQty     float64 `json:"totalQty"`
	ReadingCount int64   `json:"readingCount"`
}

// IngestResult is returned by a single-reading ingest
type IngestResult struct {
	OK                  bool      `json:"ok"`
	LotID               int64     `json:"lotId"`
	NormalizedTimestamp string    `json:"normalizedTimestamp"`
	RecordedAt          time.Time `json:"-"`
}

// BulkResult is returned by a bulk ingest
type BulkResult struct {
	InsertedCount    int     `json:"insertedCount"`
	DistinctLotCount int     `json:"distinctLotCount"`
	LotIDs           []int64 `json:"-"`
}
