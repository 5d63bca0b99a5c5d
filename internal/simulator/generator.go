// Package simulator produces synthetic rig readings and feeds them through
// the ledger: live ticks, bulk generation and whole-day backfills.
package simulator

import (
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"

	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/internal/localday"
)

const (
	// StepInterval is the simulated time between two samples
	StepInterval = 5 * time.Second

	// SamplesPerDay is the length of a whole-day run
	SamplesPerDay = int(24 * time.Hour / StepInterval)
)

// State of the two-state process
type State int

const (
	Normal State = iota
	Anomalous
)

func (s State) String() string {
	if s == Anomalous {
		return "anomalous"
	}
	return "normal"
}

// Sample is one generated multi-channel observation
type Sample struct {
	At     time.Time
	State  State
	Values [contracts.NumChannels]float64
}

// Input converts the sample into an ingestion request for rigID
func (s Sample) Input(rigID int64) contracts.ReadingInput {
	in := contracts.ReadingInput{
		RigID:      rigID,
		RecordedAt: s.At.UTC().Format(time.RFC3339),
	}
	for _, c := range contracts.Channels() {
		in.Set(c, s.Values[c])
	}
	return in
}

// Generator is an immutable factory of per-rig sample sequences. It holds no
// mutable state, so one Generator serves any number of rigs in parallel.
type Generator struct {
	channels       [contracts.NumChannels]ChannelProfile
	anomaly        AnomalyConfig
	sawPeriod      float64
	trianglePeriod float64
	zone           localday.Zone
	seed           int64
}

// NewGenerator creates a generator. seed shifts every derived rig seed.
func NewGenerator(p *Profile, zone localday.Zone, seed int64) (*Generator, error) {
	if p == nil {
		p = DefaultProfile()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		channels:       p.resolved(),
		anomaly:        p.Anomaly,
		sawPeriod:      float64(p.SawPeriodSeconds),
		trianglePeriod: float64(p.TrianglePeriodSeconds),
		zone:           zone,
		seed:           seed,
	}, nil
}

// Zone returns the local-day zone of the generator
func (g *Generator) Zone() localday.Zone { return g.zone }

// Day returns the 17,280 samples of one rig's local day, one every 5 seconds
// from local midnight. The sequence is lazy and restartable: every range
// starts over from the same seed and yields the same values.
func (g *Generator) Day(rigID int64, day string) (iter.Seq2[int, Sample], error) {
	start, _, err := g.zone.Window(day)
	if err != nil {
		return nil, contracts.ValidationError{Field: "date", Message: err.Error()}
	}

	seed := g.seedFor(rigID, day)
	return func(yield func(int, Sample) bool) {
		p := g.newProcess(seed)
		for i := 0; i < SamplesPerDay; i++ {
			at := start.Add(time.Duration(i) * StepInterval)
			if !yield(i, p.step(at)) {
				return
			}
		}
	}, nil
}

// Stream is a long-lived process of one rig for live ticks. Values carry
// over from tick to tick.
type Stream struct {
	mu sync.Mutex
	p  *process
}

// NewStream starts a live process for rigID
func (g *Generator) NewStream(rigID int64) *Stream {
	return &Stream{p: g.newProcess(g.seedFor(rigID, "stream"))}
}

// Next advances the process by one step stamped at
func (s *Stream) Next(at time.Time) Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.step(at)
}

// seedFor derives an independent seed per (rig, key)
func (g *Generator) seedFor(rigID int64, key string) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%d/%d/%s", g.seed, rigID, key))
}

// process is the mutable state of one running sequence
type process struct {
	g           *Generator
	rng         *rand.Rand
	prev        [contracts.NumChannels]float64
	anomalyLeft int
}

func (g *Generator) newProcess(seed uint64) *process {
	p := &process{
		g:   g,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	for c := range p.prev {
		p.prev[c] = g.channels[c].Mean
	}
	return p
}

func (p *process) step(at time.Time) Sample {
	g := p.g

	if p.anomalyLeft == 0 && p.rng.Float64() < g.anomaly.Probability {
		p.anomalyLeft = g.anomaly.MinSteps + p.rng.IntN(g.anomaly.MaxSteps-g.anomaly.MinSteps+1)
	}
	state := Normal
	if p.anomalyLeft > 0 {
		state = Anomalous
	}

	secs := float64(at.Unix())
	saw := sawtooth(secs, g.sawPeriod)
	tri := triangle(secs, g.trianglePeriod)

	s := Sample{At: at, State: state}
	for c := range s.Values {
		ch := &g.channels[c]

		next := ch.Mean + ch.Reversion*(p.prev[c]-ch.Mean) +
			p.gaussian(ch.Noise) +
			p.spike(ch.SpikeProbability, ch.SpikeAmplitude) +
			ch.SawWeight*saw + ch.TriangleWeight*tri
		if state == Anomalous {
			next += ch.AnomalyBias + p.gaussian(ch.AnomalyNoise)
		}

		v := round(clamp(next, ch.Lower, ch.Upper), ch.Precision)
		s.Values[c] = v
		p.prev[c] = v
	}

	if p.anomalyLeft > 0 {
		p.anomalyLeft--
	}
	return s
}

// gaussian draws N(0, stddev) with Box-Muller. Zero uniforms are redrawn so
// the logarithm never sees 0.
func (p *process) gaussian(stddev float64) float64 {
	if stddev == 0 {
		return 0
	}
	u1 := p.rng.Float64()
	for u1 == 0 {
		u1 = p.rng.Float64()
	}
	u2 := p.rng.Float64()
	for u2 == 0 {
		u2 = p.rng.Float64()
	}
	return stddev * math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

func (p *process) spike(probability, amplitude float64) float64 {
	if probability == 0 || p.rng.Float64() >= probability {
		return 0
	}
	if p.rng.IntN(2) == 0 {
		return -amplitude
	}
	return amplitude
}

// sawtooth rises linearly from -1 to 1 once per period
func sawtooth(t, period float64) float64 {
	frac := math.Mod(t, period) / period
	return 2*frac - 1
}

// triangle goes -1 → 1 → -1 once per period
func triangle(t, period float64) float64 {
	frac := math.Mod(t, period) / period
	return 1 - 4*math.Abs(frac-0.5)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func round(x float64, precision int32) float64 {
	v, _ := decimal.NewFromFloat(x).Round(precision).Float64()
	return v
}

// Stats summarizes a generated sequence
type Stats struct {
	Samples        int                     `json:"samples"`
	AnomalousSteps int                     `json:"anomalousSteps"`
	Bursts         int                     `json:"bursts"`
	Channels       map[string]ChannelStats `json:"channels"`
}

// ChannelStats is the min/mean/max of one channel over a sequence
type ChannelStats struct {
	Min  float64 `json:"min"`
	Mean float64 `json:"mean"`
	Max  float64 `json:"max"`
}

// Summarize consumes seq and returns its statistics
func Summarize(seq iter.Seq2[int, Sample]) Stats {
	var (
		st   = Stats{Channels: make(map[string]ChannelStats, contracts.NumChannels)}
		sum  [contracts.NumChannels]float64
		lo   [contracts.NumChannels]float64
		hi   [contracts.NumChannels]float64
		last = Normal
	)

	for _, s := range seq {
		for c, v := range s.Values {
			if st.Samples == 0 || v < lo[c] {
				lo[c] = v
			}
			if st.Samples == 0 || v > hi[c] {
				hi[c] = v
			}
			sum[c] += v
		}
		if s.State == Anomalous {
			st.AnomalousSteps++
			if last == Normal {
				st.Bursts++
			}
		}
		last = s.State
		st.Samples++
	}

	if st.Samples == 0 {
		return st
	}
	for _, c := range contracts.Channels() {
		st.Channels[c.String()] = ChannelStats{
			Min:  lo[c],
			Mean: sum[c] / float64(st.Samples),
			Max:  hi[c],
		}
	}
	return st
}
