package localday

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wib = NewZone(7 * 3600)

func TestDayOfStringFastAndSlowPathAgree(t *testing.T) {
	tests := []struct {
		name  string
		local string // fast path
		abs   string // slow path, same instant
		want  string
	}{
		{"mid-day", "2024-03-01 10:00:00", "2024-03-01T03:00:00Z", "2024-03-01"},
		{"just after local midnight", "2024-01-01 00:00:01", "2023-12-31T17:00:01Z", "2024-01-01"},
		{"just before local midnight", "2024-01-01 23:59:59", "2024-01-01T16:59:59Z", "2024-01-01"},
		{"other offset", "2024-06-30 06:30:00", "2024-06-29T20:30:00-03:00", "2024-06-30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fast, err := wib.DayOfString(tt.local)
			require.NoError(t, err)
			slow, err := wib.DayOfString(tt.abs)
			require.NoError(t, err)

			assert.Equal(t, tt.want, fast)
			assert.Equal(t, fast, slow)

			instant, err := wib.Parse(tt.abs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, wib.DayOf(instant))
		})
	}
}

func TestDayOfMatchesFormattedPrefix(t *testing.T) {
	// every 37 minutes across two days, both paths must agree
	start := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2*24*60/37; i++ {
		instant := start.Add(time.Duration(i*37) * time.Minute)

		viaFormat, err := wib.DayOfString(wib.Format(instant))
		require.NoError(t, err)
		viaRFC, err := wib.DayOfString(instant.Format(time.RFC3339))
		require.NoError(t, err)

		assert.Equal(t, wib.DayOf(instant), viaFormat, instant)
		assert.Equal(t, viaFormat, viaRFC, instant)
	}
}

func TestDayOfStringRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "yesterday", "2024-13-01 10:00:00", "2024-02-30", "01/03/2024"} {
		_, err := wib.DayOfString(s)
		assert.Error(t, err, s)
	}
}

func TestParseLocalLayouts(t *testing.T) {
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, wib.Location())

	for _, s := range []string{"2024-03-01 10:00:00", "2024-03-01T10:00:00", "2024-03-01 10:00", "2024-03-01 10:00:00.000"} {
		got, err := wib.Parse(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), "%s -> %s", s, got)
	}

	midnight, err := wib.Parse("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01 00:00:00", wib.Format(midnight))
}

func TestWindowIsHalfOpenLocalDay(t *testing.T) {
	start, end, err := wib.Window("2024-03-01")
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, end.Sub(start))
	assert.Equal(t, time.Date(2024, 2, 29, 17, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, "2024-03-01", wib.DayOf(start))
	assert.Equal(t, "2024-03-01", wib.DayOf(end.Add(-time.Nanosecond)))
	assert.Equal(t, "2024-03-02", wib.DayOf(end))

	_, _, err = wib.Window("2024-3-1")
	assert.Error(t, err)
}

func TestParseZone(t *testing.T) {
	z, err := ParseZone("-03:30")
	require.NoError(t, err)
	assert.Equal(t, -(3*3600 + 30*60), z.OffsetSeconds())
	assert.Equal(t, "UTC-03:30", z.Location().String())

	_, err = ParseZone("Asia/Jakarta")
	assert.Error(t, err)

	var zero Zone
	assert.Equal(t, time.UTC, zero.Location())
}

func TestHelpers(t *testing.T) {
	prev, err := PreviousDay("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", prev)

	assert.True(t, ValidDay("2024-02-29"))
	assert.False(t, ValidDay("2023-02-29"))
	assert.False(t, ValidDay("2024-03-01 10:00:00"))

	labels := MinuteLabels()
	require.Len(t, labels, MinutesPerDay)
	assert.Equal(t, "00:00", labels[0])
	assert.Equal(t, "12:34", labels[12*60+34])
	assert.Equal(t, "23:59", labels[MinutesPerDay-1])
}

func TestParseOffset(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"+07:00", 7 * 3600, false},
		{"-03:30", -(3*3600 + 30*60), false},
		{"+0545", 5*3600 + 45*60, false},
		{"+09", 9 * 3600, false},
		{"Z", 0, false},
		{"UTC", 0, false},
		{"07:00", 0, true},
		{"+7:00", 0, true},
		{"+15:00", 0, true},
		{"+07:75", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOffset(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
