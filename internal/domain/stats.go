package domain

import (
	"math"
	"slices"
	"sort"
)

// YearCount is the number of archived events in one year.
type YearCount struct {
	Year  int
	Count int
}

// MagnitudeBucket counts events with Min <= magnitude < Max.
type MagnitudeBucket struct {
	Label string
	Min   float64
	Max   float64
	Count int
}

// Summary is a read-only digest of a set of records.
type Summary struct {
	Total     int
	ByYear    []YearCount
	MinMag    float64
	MaxMag    float64
	MeanMag   float64
	Buckets   []MagnitudeBucket
	Strongest []EarthquakeRecord
}

func newBuckets() []MagnitudeBucket {
	return []MagnitudeBucket{
		{Label: "< 2.0", Min: math.Inf(-1), Max: 2},
		{Label: "2.0-2.9", Min: 2, Max: 3},
		{Label: "3.0-3.9", Min: 3, Max: 4},
		{Label: "4.0-4.9", Min: 4, Max: 5},
		{Label: "5.0-5.9", Min: 5, Max: 6},
		{Label: "6.0-6.9", Min: 6, Max: 7},
		{Label: ">= 7.0", Min: 7, Max: math.Inf(1)},
	}
}

// Summarize computes per-year counts, magnitude extremes and distribution, and
// the topN strongest events (magnitude descending, earlier first on ties).
func Summarize(records []EarthquakeRecord, topN int) Summary {
	s := Summary{Total: len(records), Buckets: newBuckets()}
	if len(records) == 0 {
		return s
	}

	counts := make(map[int]int)
	s.MinMag = math.Inf(1)
	s.MaxMag = math.Inf(-1)
	var sum float64

	for _, r := range records {
		counts[r.Year()]++
		s.MinMag = math.Min(s.MinMag, r.Magnitude)
		s.MaxMag = math.Max(s.MaxMag, r.Magnitude)
		sum += r.Magnitude
		for i := range s.Buckets {
			if r.Magnitude >= s.Buckets[i].Min && r.Magnitude < s.Buckets[i].Max {
				s.Buckets[i].Count++
				break
			}
		}
	}
	s.MeanMag = sum / float64(len(records))

	for _, y := range SortedYears(counts) {
		s.ByYear = append(s.ByYear, YearCount{Year: y, Count: counts[y]})
	}

	s.Strongest = strongest(records, topN)
	return s
}

func strongest(records []EarthquakeRecord, n int) []EarthquakeRecord {
	if n <= 0 {
		return nil
	}
	ranked := slices.Clone(records)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Magnitude != ranked[j].Magnitude {
			return ranked[i].Magnitude > ranked[j].Magnitude
		}
		return ranked[i].Time.Before(ranked[j].Time)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
