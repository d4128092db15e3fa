// Package domain models PHIVOLCS earthquake bulletin data and the rules for
// keeping per-year archives of it consistent.
//
// # Data Source
//
// The Philippine Institute of Volcanology and Seismology publishes one HTML
// page per month at
//
//	https://earthquake.phivolcs.dost.gov.ph/EQLatest-Monthly/<year>/<year>_<Month>.html
//
// Each page holds a single table exported from a spreadsheet with the columns
// Date-Time, Latitude, Longitude, Depth, Magnitude and Location. Header rows
// repeat the labels with units ("Latitude (ºN)"), and some pages carry trailing
// summary rows ("No. of events: 812") or month separators ("Mar-24").
//
// # Field Conventions
//
// Date-Time:
//
//	"01 March 2024 - 10:15 AM" in Philippine Standard Time (UTC+8).
//	Stored as "2024-03-01 10:15" in the same zone. See [ParseTimestamp].
//
// Coordinates are decimal degrees, depth is kilometres, magnitude is whatever
// scale the agency reports (local magnitude for most events). Location is free
// text relative to a named place and may contain non-ASCII characters such as
// "°" or "ñ", which are kept as published.
//
// # Identity
//
// Minute-resolution timestamps are not unique, so a record's identity is the
// tuple of all of its serialized fields ([EarthquakeRecord.Key]). [Merge]
// deduplicates on that key and sorts stably by time, which makes repeated runs
// idempotent and keeps archives append-only.
package domain
