package domain

import "fmt"

// CheckYearArchive reports integrity problems in a yearly archive: records
// labelled with another year, out-of-order timestamps, and duplicate rows.
func CheckYearArchive(year int, records []EarthquakeRecord) []string {
	var issues []string
	seen := make(map[string]int, len(records))

	for i, r := range records {
		if r.Year() != year {
			issues = append(issues, fmt.Sprintf("row %d: year %d in %d archive", i+1, r.Year(), year))
		}
		if i > 0 && r.Time.Before(records[i-1].Time) {
			issues = append(issues, fmt.Sprintf("row %d: %s precedes previous row", i+1, r.Time.Format(TimestampLayout)))
		}
		if first, dup := seen[r.Key()]; dup {
			issues = append(issues, fmt.Sprintf("row %d: duplicate of row %d", i+1, first))
			continue
		}
		seen[r.Key()] = i + 1
	}
	return issues
}

// CheckCombinedArchive reports where the combined archive differs from the
// ordered union of the yearly archives.
func CheckCombinedArchive(combined []EarthquakeRecord, byYear map[int][]EarthquakeRecord) []string {
	want := Combine(byYear)
	if len(combined) != len(want) {
		return []string{fmt.Sprintf("combined has %d rows, yearly archives have %d", len(combined), len(want))}
	}

	var issues []string
	for i := range want {
		if combined[i].Key() != want[i].Key() {
			issues = append(issues, fmt.Sprintf("row %d: combined %s differs from yearly %s",
				i+1, combined[i].ID(), want[i].ID()))
		}
	}
	return issues
}
