package simulator

import (
	"bytes"
	"fmt"
	"iter"
	"math"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/internal/ledger"
)

// ChannelProfile drives one channel of the generator
type ChannelProfile struct {
	Mean             float64 `yaml:"mean"`
	Lower            float64 `yaml:"lower"`
	Upper            float64 `yaml:"upper"`
	Reversion        float64 `yaml:"reversion"`
	Noise            float64 `yaml:"noise"`
	SpikeProbability float64 `yaml:"spike_probability"`
	SpikeAmplitude   float64 `yaml:"spike_amplitude"`
	SawWeight        float64 `yaml:"saw_weight"`
	TriangleWeight   float64 `yaml:"triangle_weight"`
	AnomalyBias      float64 `yaml:"anomaly_bias"`
	AnomalyNoise     float64 `yaml:"anomaly_noise"`
	Precision        int32   `yaml:"precision"`
}

// AnomalyConfig controls entry into and length of anomaly bursts
type AnomalyConfig struct {
	// Probability of entering Anomalous on any Normal step
	Probability float64 `yaml:"probability"`
	MinSteps    int     `yaml:"min_steps"`
	MaxSteps    int     `yaml:"max_steps"`
}

// Profile is the full generator configuration
type Profile struct {
	Anomaly               AnomalyConfig             `yaml:"anomaly"`
	SawPeriodSeconds      int                       `yaml:"saw_period_seconds"`
	TrianglePeriodSeconds int                       `yaml:"triangle_period_seconds"`
	Channels              map[string]ChannelProfile `yaml:"channels"`
}

// DefaultProfile returns the built-in rig profile
func DefaultProfile() *Profile {
	return &Profile{
		Anomaly: AnomalyConfig{
			Probability: 0.0004,
			MinSteps:    24, // 2분
			MaxSteps:    96, // 8분
		},
		SawPeriodSeconds:      180,
		TrianglePeriodSeconds: 600,
		Channels: map[string]ChannelProfile{
			"quantity": {
				Mean: 2.5, Lower: 0, Upper: 10, Reversion: 0.9, Noise: 0.15,
				SpikeProbability: 0.002, SpikeAmplitude: 1.5, SawWeight: 0.1, TriangleWeight: 0.2,
				AnomalyBias: 2, AnomalyNoise: 0.5, Precision: 3,
			},
			"pressure": {
				Mean: 150, Lower: 100, Upper: 200, Reversion: 0.95, Noise: 1.5,
				SpikeProbability: 0.001, SpikeAmplitude: 10, SawWeight: 1, TriangleWeight: 2,
				AnomalyBias: 20, AnomalyNoise: 5, Precision: 2,
			},
			"temperature": {
				Mean: 65, Lower: 20, Upper: 120, Reversion: 0.97, Noise: 0.4,
				SpikeProbability: 0.001, SpikeAmplitude: 5, SawWeight: 0.3, TriangleWeight: 0.8,
				AnomalyBias: 15, AnomalyNoise: 2, Precision: 2,
			},
			"humidity": {
				Mean: 55, Lower: 0, Upper: 100, Reversion: 0.95, Noise: 0.8,
				SpikeProbability: 0.001, SpikeAmplitude: 8, SawWeight: 0.5, TriangleWeight: 1,
				AnomalyBias: 10, AnomalyNoise: 3, Precision: 1,
			},
			"co2": {
				Mean: 420, Lower: 300, Upper: 5000, Reversion: 0.9, Noise: 10,
				SpikeProbability: 0.002, SpikeAmplitude: 150, SawWeight: 5, TriangleWeight: 10,
				AnomalyBias: 800, AnomalyNoise: 80, Precision: 0,
			},
			"h2s": {
				Mean: 2, Lower: 0, Upper: 100, Reversion: 0.9, Noise: 0.2,
				SpikeProbability: 0.002, SpikeAmplitude: 8, SawWeight: 0.05, TriangleWeight: 0.1,
				AnomalyBias: 15, AnomalyNoise: 3, Precision: 2,
			},
			"mercury": {
				Mean: 0.02, Lower: 0, Upper: 1, Reversion: 0.9, Noise: 0.002,
				SpikeProbability: 0.001, SpikeAmplitude: 0.05, SawWeight: 0.0005, TriangleWeight: 0.001,
				AnomalyBias: 0.1, AnomalyNoise: 0.02, Precision: 4,
			},
			"water": {
				Mean: 12, Lower: 0, Upper: 100, Reversion: 0.95, Noise: 0.3,
				SpikeProbability: 0.001, SpikeAmplitude: 5, SawWeight: 0.2, TriangleWeight: 0.4,
				AnomalyBias: 8, AnomalyNoise: 1.5, Precision: 2,
			},
		},
	}
}

// LoadProfile reads a YAML profile. Fields absent from the file keep their
// defaults; a channel listed in the file replaces that channel's default.
// Unknown fields are rejected.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML profile document
func ParseProfile(data []byte) (*Profile, error) {
	p := DefaultProfile()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 오타 필드 즉시 실패
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the profile; the first violation is returned
func (p *Profile) Validate() error {
	if !finite(p.Anomaly.Probability) {
		return contracts.ValidationError{Field: "anomaly.probability", Message: "must be a finite number"}
	}
	if p.Anomaly.Probability < 0 || p.Anomaly.Probability > 1 {
		return contracts.ValidationError{Field: "anomaly.probability", Message: "must be in [0, 1]"}
	}
	if p.Anomaly.MinSteps < 1 {
		return contracts.ValidationError{Field: "anomaly.min_steps", Message: "must be >= 1"}
	}
	if p.Anomaly.MaxSteps < p.Anomaly.MinSteps {
		return contracts.ValidationError{Field: "anomaly.max_steps", Message: "must be >= min_steps"}
	}
	if p.SawPeriodSeconds <= 0 {
		return contracts.ValidationError{Field: "saw_period_seconds", Message: "must be > 0"}
	}
	if p.TrianglePeriodSeconds <= 0 {
		return contracts.ValidationError{Field: "triangle_period_seconds", Message: "must be > 0"}
	}

	for _, c := range contracts.Channels() {
		if _, ok := p.Channels[c.String()]; !ok {
			return contracts.ValidationError{Field: "channels." + c.String(), Message: "missing"}
		}
	}

	for name, ch := range p.Channels {
		field := func(f string) string { return fmt.Sprintf("channels.%s.%s", name, f) }

		if _, ok := contracts.ParseChannel(name); !ok {
			return contracts.ValidationError{Field: "channels." + name, Message: "unknown channel"}
		}
		// NaN fails every comparison below and ±Inf cannot be rounded
		for f, v := range ch.numbers() {
			if !finite(v) {
				return contracts.ValidationError{Field: field(f), Message: "must be a finite number"}
			}
		}
		if ch.Precision < 0 || ch.Precision > 6 {
			return contracts.ValidationError{Field: field("precision"), Message: "must be in [0, 6]"}
		}
		if name == contracts.ChannelQuantity.String() && ch.Precision > ledger.QuantityScale {
			return contracts.ValidationError{
				Field:   field("precision"),
				Message: fmt.Sprintf("quantity keeps at most %d decimals", ledger.QuantityScale),
			}
		}
		if ch.Lower >= ch.Upper {
			return contracts.ValidationError{Field: field("lower"), Message: "must be < upper"}
		}
		// bounds must sit on the rounding grid so rounding never leaves them
		if !onGrid(ch.Lower, ch.Precision) || !onGrid(ch.Upper, ch.Precision) {
			return contracts.ValidationError{Field: field("precision"), Message: "bounds need more decimals than precision"}
		}
		if ch.Mean < ch.Lower || ch.Mean > ch.Upper {
			return contracts.ValidationError{Field: field("mean"), Message: "must be within [lower, upper]"}
		}
		if ch.Reversion < 0 || ch.Reversion > 1 {
			return contracts.ValidationError{Field: field("reversion"), Message: "must be in [0, 1]"}
		}
		if ch.Noise < 0 || ch.AnomalyNoise < 0 {
			return contracts.ValidationError{Field: field("noise"), Message: "must be >= 0"}
		}
		if ch.SpikeProbability < 0 || ch.SpikeProbability > 1 {
			return contracts.ValidationError{Field: field("spike_probability"), Message: "must be in [0, 1]"}
		}
	}

	return nil
}

// numbers lists every float field by its yaml name
func (ch ChannelProfile) numbers() iter.Seq2[string, float64] {
	return func(yield func(string, float64) bool) {
		for _, kv := range []struct {
			name string
			v    float64
		}{
			{"mean", ch.Mean},
			{"lower", ch.Lower},
			{"upper", ch.Upper},
			{"reversion", ch.Reversion},
			{"noise", ch.Noise},
			{"spike_probability", ch.SpikeProbability},
			{"spike_amplitude", ch.SpikeAmplitude},
			{"saw_weight", ch.SawWeight},
			{"triangle_weight", ch.TriangleWeight},
			{"anomaly_bias", ch.AnomalyBias},
			{"anomaly_noise", ch.AnomalyNoise},
		} {
			if !yield(kv.name, kv.v) {
				return
			}
		}
	}
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func onGrid(x float64, precision int32) bool {
	d := decimal.NewFromFloat(x)
	return d.Round(precision).Equal(d)
}

// resolved orders channel profiles by Channel
func (p *Profile) resolved() [contracts.NumChannels]ChannelProfile {
	var out [contracts.NumChannels]ChannelProfile
	for _, c := range contracts.Channels() {
		out[c] = p.Channels[c.String()]
	}
	return out
}
