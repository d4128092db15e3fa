package domain

import (
	"slices"
	"sort"
)

// GroupByYear partitions records by their derived year, preserving input order
// within each year.
func GroupByYear(records []EarthquakeRecord) map[int][]EarthquakeRecord {
	out := make(map[int][]EarthquakeRecord)
	for _, r := range records {
		out[r.Year()] = append(out[r.Year()], r)
	}
	return out
}

// SortedYears returns the keys of a year partition in ascending order.
func SortedYears[T any](byYear map[int]T) []int {
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	slices.Sort(years)
	return years
}

// Merge returns the union of existing and incoming records, keeping the first
// occurrence of every full-row identity, sorted stably by time. Existing
// records precede incoming ones before sorting, so ties keep archive order.
// The second result is the number of incoming records that were new.
func Merge(existing, incoming []EarthquakeRecord) ([]EarthquakeRecord, int) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]EarthquakeRecord, 0, len(existing)+len(incoming))

	for _, r := range existing {
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}

	added := 0
	for _, r := range incoming {
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
		added++
	}

	sortByTime(out)
	return out, added
}

// Combine concatenates yearly archives ordered by year, then time.
func Combine(byYear map[int][]EarthquakeRecord) []EarthquakeRecord {
	var total int
	for _, recs := range byYear {
		total += len(recs)
	}

	out := make([]EarthquakeRecord, 0, total)
	for _, y := range SortedYears(byYear) {
		recs := slices.Clone(byYear[y])
		sortByTime(recs)
		out = append(out, recs...)
	}
	return out
}

func sortByTime(recs []EarthquakeRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Time.Before(recs[j].Time)
	})
}
