package simulator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/internal/localday"
)

var zone = localday.NewZone(7 * 3600)

func newTestGenerator(t *testing.T, p *Profile) *Generator {
	t.Helper()
	g, err := NewGenerator(p, zone, 42)
	require.NoError(t, err)
	return g
}

func TestDay_FullRunStaysInBounds(t *testing.T) {
	// a hostile profile: frequent spikes and anomalies pushing past the bounds
	p := DefaultProfile()
	p.Anomaly.Probability = 0.05
	for name, ch := range p.Channels {
		ch.SpikeProbability = 0.2
		ch.SpikeAmplitude = (ch.Upper - ch.Lower) * 2
		ch.AnomalyBias = ch.Upper - ch.Lower
		p.Channels[name] = ch
	}
	g := newTestGenerator(t, p)
	channels := p.resolved()

	seq, err := g.Day(1, "2024-03-10")
	require.NoError(t, err)

	count := 0
	for i, s := range seq {
		assert.Equal(t, count, i)
		for c, v := range s.Values {
			ch := channels[c]
			if v < ch.Lower || v > ch.Upper {
				t.Fatalf("step %d channel %s: %v outside [%v, %v]", i, contracts.Channel(c), v, ch.Lower, ch.Upper)
			}
		}
		count++
	}
	assert.Equal(t, 17280, count)
	assert.Equal(t, SamplesPerDay, count)
}

func TestDay_TimestampsCoverTheLocalDay(t *testing.T) {
	g := newTestGenerator(t, nil)

	seq, err := g.Day(1, "2024-03-10")
	require.NoError(t, err)

	start, end, err := zone.Window("2024-03-10")
	require.NoError(t, err)

	var first, last time.Time
	for i, s := range seq {
		if i == 0 {
			first = s.At
		}
		last = s.At
		assert.Equal(t, "2024-03-10", zone.DayOf(s.At))
	}
	assert.True(t, first.Equal(start))
	assert.True(t, last.Equal(end.Add(-StepInterval)))
}

func TestDay_RestartableAndPerRig(t *testing.T) {
	g := newTestGenerator(t, nil)

	seq, err := g.Day(7, "2024-03-10")
	require.NoError(t, err)

	take := func(seq func(func(int, Sample) bool), n int) []Sample {
		var out []Sample
		for _, s := range seq {
			out = append(out, s)
			if len(out) == n {
				break
			}
		}
		return out
	}

	a := take(seq, 500)
	b := take(seq, 500)
	assert.Equal(t, a, b, "ranging twice restarts from the same seed")

	other, err := g.Day(8, "2024-03-10")
	require.NoError(t, err)
	assert.NotEqual(t, a, take(other, 500), "rigs do not share a sequence")
}

func TestDay_InvalidDate(t *testing.T) {
	g := newTestGenerator(t, nil)
	_, err := g.Day(1, "2024-02-30")
	assert.True(t, contracts.IsValidation(err))
}

func TestDay_AnomalyBurstLengths(t *testing.T) {
	p := DefaultProfile()
	p.Anomaly.Probability = 0.01
	g := newTestGenerator(t, p)

	seq, err := g.Day(3, "2024-03-10")
	require.NoError(t, err)

	var runs []int
	run := 0
	for _, s := range seq {
		if s.State == Anomalous {
			run++
			continue
		}
		if run > 0 {
			runs = append(runs, run)
			run = 0
		}
	}

	require.NotEmpty(t, runs)
	// back-to-back bursts can merge into one run, so only the floor is exact
	for _, r := range runs {
		assert.GreaterOrEqual(t, r, p.Anomaly.MinSteps)
	}
}

func TestDay_PrecisionRounding(t *testing.T) {
	g := newTestGenerator(t, nil)
	seq, err := g.Day(1, "2024-03-10")
	require.NoError(t, err)

	channels := DefaultProfile().resolved()
	for i, s := range seq {
		for c, v := range s.Values {
			scale := math.Pow(10, float64(channels[c].Precision))
			assert.InDelta(t, math.Round(v*scale), v*scale, 1e-6)
		}
		if i > 200 {
			break
		}
	}
}

func TestGaussian_MeanAndSpread(t *testing.T) {
	g := newTestGenerator(t, nil)
	p := g.newProcess(1)

	const n = 200_000
	var sum, sq float64
	for i := 0; i < n; i++ {
		x := p.gaussian(2)
		sum += x
		sq += x * x
	}
	mean := sum / n
	std := math.Sqrt(sq/n - mean*mean)

	assert.InDelta(t, 0, mean, 0.03)
	assert.InDelta(t, 2, std, 0.03)
	assert.Zero(t, p.gaussian(0))
}

func TestWaves(t *testing.T) {
	assert.InDelta(t, -1, sawtooth(0, 180), 1e-12)
	assert.InDelta(t, 0, sawtooth(90, 180), 1e-12)
	assert.InDelta(t, -1, triangle(0, 600), 1e-12)
	assert.InDelta(t, 1, triangle(300, 600), 1e-12)
	assert.InDelta(t, 0, triangle(150, 600), 1e-12)
}

func TestStream_Continuity(t *testing.T) {
	g := newTestGenerator(t, nil)
	s := g.NewStream(1)

	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	first := s.Next(at)
	second := s.Next(at.Add(StepInterval))
	assert.True(t, second.At.After(first.At))

	// a fresh stream replays from the start
	again := g.NewStream(1).Next(at)
	assert.Equal(t, first.Values, again.Values)
}

func TestSampleInput(t *testing.T) {
	var s Sample
	s.At = time.Date(2024, 3, 10, 1, 2, 3, 0, time.UTC)
	s.Values[contracts.ChannelQuantity] = 2.5

	in := s.Input(9)
	assert.Equal(t, int64(9), in.RigID)
	assert.Equal(t, "2024-03-10T01:02:03Z", in.RecordedAt)
	require.NotNil(t, in.Quantity)
	assert.Equal(t, 2.5, *in.Quantity)
	require.NotNil(t, in.Water)
}

func TestSummarize(t *testing.T) {
	g := newTestGenerator(t, nil)
	seq, err := g.Day(1, "2024-03-10")
	require.NoError(t, err)

	st := Summarize(seq)
	assert.Equal(t, SamplesPerDay, st.Samples)
	q := st.Channels["quantity"]
	assert.LessOrEqual(t, q.Min, q.Mean)
	assert.LessOrEqual(t, q.Mean, q.Max)
}
