package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the serialized form of the Date-Time column.
const TimestampLayout = "2006-01-02 15:04"

// Columns is the archive header, in order.
var Columns = []string{"Date-Time", "Latitude", "Longitude", "Depth", "Magnitude", "Location", "Month", "Year"}

// SourceZone is Philippine Standard Time. Bulletins carry no offset.
var SourceZone = time.FixedZone("PST", 8*60*60)

// RawRow is one data row of a bulletin table before type coercion.
type RawRow struct {
	DateTime  string
	Latitude  string
	Longitude string
	Depth     string
	Magnitude string
	Location  string
}

// EarthquakeRecord is a single bulletin entry after normalization.
// Records are values and are never mutated after parsing.
type EarthquakeRecord struct {
	Time      time.Time // local time in SourceZone, minute resolution
	Latitude  float64   // decimal degrees, north positive
	Longitude float64   // decimal degrees, east positive
	Depth     float64   // kilometres
	Magnitude float64
	Location  string // e.g. "005 km N 45° W of Manila (Metro Manila)"
}

// Month returns the English month name of the event.
func (r EarthquakeRecord) Month() string {
	return r.Time.Month().String()
}

// Year returns the calendar year of the event in source time.
func (r EarthquakeRecord) Year() int {
	return r.Time.Year()
}

// Fields serializes the record into archive column order.
func (r EarthquakeRecord) Fields() []string {
	return []string{
		r.Time.Format(TimestampLayout),
		formatFloat(r.Latitude),
		formatFloat(r.Longitude),
		formatFloat(r.Depth),
		formatFloat(r.Magnitude),
		r.Location,
		r.Month(),
		strconv.Itoa(r.Year()),
	}
}

// Key is the full-row identity used for deduplication. Two records with
// every serialized field equal have the same key.
func (r EarthquakeRecord) Key() string {
	return strings.Join(r.Fields(), "\x1f")
}

// ID is a short deterministic identifier derived from Key, stable across runs.
func (r EarthquakeRecord) ID() string {
	hash := sha256.Sum256([]byte(r.Key()))
	return "eq-" + hex.EncodeToString(hash[:8])
}

// formatFloat renders the shortest exact decimal form, never an exponent.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
