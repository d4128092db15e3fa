package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts lists the accepted Date-Time formats, most common first.
// Archives written before this tool kept the source string verbatim, so the
// bulletin layouts must stay readable too.
var timestampLayouts = []string{
	"02 January 2006 - 03:04 PM",
	"2 January 2006 - 3:04 PM",
	"02 Jan 2006 - 03:04 PM",
	TimestampLayout,
	"2006-01-02 15:04:05",
	"01/02/2006 15:04",
}

// ErrUnknownTimestamp is returned when no known layout matches a Date-Time value.
var ErrUnknownTimestamp = errors.New("unknown timestamp format")

// RowError reports which field of a raw row could not be coerced.
type RowError struct {
	Field string
	Value string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// NormalizeRow coerces one raw bulletin row into an EarthquakeRecord.
// Any field that fails coercion yields a *RowError and no record.
func NormalizeRow(raw RawRow) (EarthquakeRecord, error) {
	ts, err := ParseTimestamp(raw.DateTime)
	if err != nil {
		return EarthquakeRecord{}, &RowError{Field: "date-time", Value: raw.DateTime, Err: err}
	}

	lat, err := parseNumber("latitude", raw.Latitude)
	if err != nil {
		return EarthquakeRecord{}, err
	}
	lon, err := parseNumber("longitude", raw.Longitude)
	if err != nil {
		return EarthquakeRecord{}, err
	}
	depth, err := parseNumber("depth", raw.Depth)
	if err != nil {
		return EarthquakeRecord{}, err
	}
	if depth < 0 {
		return EarthquakeRecord{}, &RowError{Field: "depth", Value: raw.Depth, Err: errors.New("negative depth")}
	}
	mag, err := parseNumber("magnitude", raw.Magnitude)
	if err != nil {
		return EarthquakeRecord{}, err
	}

	return EarthquakeRecord{
		Time:      ts,
		Latitude:  lat,
		Longitude: lon,
		Depth:     depth,
		Magnitude: mag,
		Location:  cleanText(raw.Location),
	}, nil
}

// ParseTimestamp parses a bulletin Date-Time value in SourceZone, truncated
// to the minute.
func ParseTimestamp(s string) (time.Time, error) {
	s = cleanText(s)
	if s == "" {
		return time.Time{}, ErrUnknownTimestamp
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, SourceZone); err == nil {
			return t.Truncate(time.Minute), nil
		}
	}
	return time.Time{}, ErrUnknownTimestamp
}

// parseNumber parses a decimal cell. Empty, non-numeric and non-finite
// values are errors.
func parseNumber(field, s string) (float64, error) {
	clean := cleanText(s)
	if clean == "" {
		return 0, &RowError{Field: field, Value: s, Err: errors.New("empty")}
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, &RowError{Field: field, Value: s, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &RowError{Field: field, Value: s, Err: errors.New("not finite")}
	}
	return v, nil
}

// cleanText collapses runs of whitespace (including non-breaking spaces left
// by the spreadsheet export) into single spaces and trims the ends.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
