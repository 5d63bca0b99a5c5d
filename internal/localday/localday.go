// Package localday converts instants to local calendar days under one fixed
// UTC offset. No daylight saving is ever applied: every local day is exactly
// 24 hours long.
package localday

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DayLayout is the calendar-date partition key format
	DayLayout = "2006-01-02"
	// LocalLayout is the canonical local date-time format
	LocalLayout = "2006-01-02 15:04:05"

	// MinutesPerDay is the length of the daily minute grid
	MinutesPerDay = 24 * 60
)

// local date-time layouts without a zone designator, tried in order
var localLayouts = []string{
	LocalLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	DayLayout,
}

// Zone is a fixed-offset local time zone
type Zone struct {
	offset int
	loc    *time.Location
}

// NewZone creates a zone offsetSeconds east of UTC
func NewZone(offsetSeconds int) Zone {
	name := "UTC"
	if offsetSeconds != 0 {
		sign := '+'
		abs := offsetSeconds
		if abs < 0 {
			sign = '-'
			abs = -abs
		}
		name = fmt.Sprintf("UTC%c%02d:%02d", sign, abs/3600, (abs%3600)/60)
	}
	return Zone{offset: offsetSeconds, loc: time.FixedZone(name, offsetSeconds)}
}

// ParseZone builds a zone from an offset string such as "+07:00"
func ParseZone(offset string) (Zone, error) {
	secs, err := ParseOffset(offset)
	if err != nil {
		return Zone{}, err
	}
	return NewZone(secs), nil
}

// ParseOffset parses "+07:00", "-03:30", "+0700" or "Z" into seconds east of UTC.
func ParseOffset(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "Z" || s == "UTC" || s == "" {
		return 0, nil
	}
	if len(s) < 3 || (s[0] != '+' && s[0] != '-') {
		return 0, fmt.Errorf("invalid offset %q (expected ±HH:MM)", s)
	}

	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	body := strings.ReplaceAll(s[1:], ":", "")
	if len(body) != 2 && len(body) != 4 {
		return 0, fmt.Errorf("invalid offset %q (expected ±HH:MM)", s)
	}

	hours, err := strconv.Atoi(body[:2])
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q: %w", s, err)
	}
	minutes := 0
	if len(body) == 4 {
		minutes, err = strconv.Atoi(body[2:])
		if err != nil {
			return 0, fmt.Errorf("invalid offset %q: %w", s, err)
		}
	}
	if hours > 14 || minutes > 59 {
		return 0, fmt.Errorf("offset %q out of range", s)
	}

	return sign * (hours*3600 + minutes*60), nil
}

// Location returns the fixed *time.Location of the zone
func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

// OffsetSeconds returns the offset east of UTC
func (z Zone) OffsetSeconds() int { return z.offset }

// DayOf returns the local calendar day of an absolute instant
func (z Zone) DayOf(t time.Time) string {
	return t.In(z.Location()).Format(DayLayout)
}

// DayOfString returns the local calendar day of a timestamp string.
// A string already in local form ("2024-03-01 10:00:00") is keyed by its date
// prefix without any conversion; a string carrying a zone designator is
// converted to the local zone first. Both paths agree for equivalent instants.
func (z Zone) DayOfString(s string) (string, error) {
	s = strings.TrimSpace(s)
	if isLocalForm(s) {
		day := s[:len(DayLayout)]
		if _, err := time.Parse(DayLayout, day); err != nil {
			return "", fmt.Errorf("invalid date %q: %w", day, err)
		}
		return day, nil
	}

	t, err := z.Parse(s)
	if err != nil {
		return "", err
	}
	return z.DayOf(t), nil
}

// Parse converts a timestamp string into an absolute instant. Strings
// without a zone designator are interpreted in the local zone.
func (z Zone) Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if !hasZoneDesignator(s) {
		for _, layout := range localLayouts {
			if t, err := time.ParseInLocation(layout, s, z.Location()); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid local timestamp %q (expected YYYY-MM-DD HH:MM:SS)", s)
	}

	t, err := time.Parse(time.RFC3339Nano, strings.Replace(s, " ", "T", 1))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// Format renders an instant in the canonical local form
func (z Zone) Format(t time.Time) string {
	return t.In(z.Location()).Format(LocalLayout)
}

// Window returns the half-open interval [local midnight, next local midnight)
// of a calendar day.
func (z Zone) Window(day string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(DayLayout, day, z.Location())
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", day, err)
	}
	return start, start.Add(24 * time.Hour), nil
}

// Today returns the local calendar day containing now
func (z Zone) Today(now time.Time) string {
	return z.DayOf(now)
}

// PreviousDay returns the calendar day before day
func PreviousDay(day string) (string, error) {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, -1).Format(DayLayout), nil
}

// ValidDay reports whether s is a well-formed YYYY-MM-DD calendar date
func ValidDay(s string) bool {
	if len(s) != len(DayLayout) {
		return false
	}
	_, err := time.Parse(DayLayout, s)
	return err == nil
}

// MinuteLabels returns "00:00" … "23:59"
func MinuteLabels() []string {
	labels := make([]string, MinutesPerDay)
	for m := range labels {
		labels[m] = fmt.Sprintf("%02d:%02d", m/60, m%60)
	}
	return labels
}

func isLocalForm(s string) bool {
	if len(s) < len(DayLayout) || s[4] != '-' || s[7] != '-' {
		return false
	}
	return !hasZoneDesignator(s)
}

// hasZoneDesignator looks for "Z" or a ±hh offset after the date part
func hasZoneDesignator(s string) bool {
	if len(s) <= len(DayLayout) {
		return false
	}
	rest := s[len(DayLayout):]
	return strings.HasSuffix(rest, "Z") || strings.ContainsAny(rest, "+-")
}
