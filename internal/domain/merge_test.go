package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quake(year int, month time.Month, day, hour, minute int, mag float64, loc string) EarthquakeRecord {
	return EarthquakeRecord{
		Time:      time.Date(year, month, day, hour, minute, 0, 0, SourceZone),
		Latitude:  14.2,
		Longitude: 121.0,
		Depth:     10,
		Magnitude: mag,
		Location:  loc,
	}
}

func keys(recs []EarthquakeRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Key()
	}
	return out
}

func TestGroupByYear(t *testing.T) {
	recs := []EarthquakeRecord{
		quake(2024, time.January, 1, 0, 5, 2.0, "a"),
		quake(2023, time.December, 31, 23, 59, 2.1, "b"),
		quake(2024, time.February, 1, 0, 5, 2.2, "c"),
	}

	byYear := GroupByYear(recs)

	require.Len(t, byYear, 2)
	assert.Equal(t, []EarthquakeRecord{recs[0], recs[2]}, byYear[2024])
	assert.Equal(t, []EarthquakeRecord{recs[1]}, byYear[2023])
	assert.Equal(t, []int{2023, 2024}, SortedYears(byYear))
}

func TestGroupByYear_Empty(t *testing.T) {
	assert.Empty(t, GroupByYear(nil))
}

func TestMerge_ExactDuplicatesCollapse(t *testing.T) {
	a := quake(2024, time.March, 1, 10, 15, 4.5, "5 km N of Manila")
	b := quake(2024, time.March, 1, 10, 15, 4.5, "5 km N of Manila")

	merged, added := Merge(nil, []EarthquakeRecord{a, b})

	require.Len(t, merged, 1)
	assert.Equal(t, 1, added)
	assert.Equal(t, a.Key(), merged[0].Key())
}

func TestMerge_SameTimestampDistinctEventsKept(t *testing.T) {
	a := quake(2024, time.March, 1, 10, 15, 4.5, "5 km N of Manila")
	b := quake(2024, time.March, 1, 10, 15, 3.1, "20 km E of Davao")

	merged, added := Merge(nil, []EarthquakeRecord{a, b})

	assert.Len(t, merged, 2)
	assert.Equal(t, 2, added)
}

func TestMerge_ExistingRecordNotReAdded(t *testing.T) {
	existing := []EarthquakeRecord{
		quake(2023, time.May, 1, 1, 0, 2.0, "a"),
		quake(2023, time.May, 2, 1, 0, 2.5, "b"),
	}

	merged, added := Merge(existing, []EarthquakeRecord{existing[1]})

	assert.Equal(t, 0, added)
	if diff := cmp.Diff(keys(existing), keys(merged)); diff != "" {
		t.Fatalf("archive changed (-want +got):\n%s", diff)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	existing := []EarthquakeRecord{quake(2024, time.April, 3, 8, 0, 3.0, "x")}
	incoming := []EarthquakeRecord{
		quake(2024, time.April, 2, 8, 0, 3.2, "y"),
		quake(2024, time.April, 4, 8, 0, 3.4, "z"),
	}

	once, addedOnce := Merge(existing, incoming)
	twice, addedTwice := Merge(once, incoming)

	assert.Equal(t, 2, addedOnce)
	assert.Equal(t, 0, addedTwice)
	assert.Equal(t, keys(once), keys(twice))
}

func TestMerge_MonotonicGrowth(t *testing.T) {
	var archive []EarthquakeRecord
	runs := [][]EarthquakeRecord{
		{quake(2024, time.June, 1, 0, 0, 2, "a")},
		{},
		{quake(2024, time.June, 1, 0, 0, 2, "a"), quake(2024, time.June, 2, 0, 0, 2, "b")},
		{quake(2024, time.May, 30, 0, 0, 2, "c")},
	}

	prev := 0
	for _, incoming := range runs {
		archive, _ = Merge(archive, incoming)
		assert.GreaterOrEqual(t, len(archive), prev)
		prev = len(archive)
	}
	assert.Equal(t, 3, prev)
}

func TestMerge_SortedAndStable(t *testing.T) {
	tie1 := quake(2024, time.July, 5, 12, 0, 2.0, "first")
	tie2 := quake(2024, time.July, 5, 12, 0, 2.1, "second")
	tie3 := quake(2024, time.July, 5, 12, 0, 2.2, "third")
	early := quake(2024, time.July, 1, 0, 0, 1.0, "early")
	late := quake(2024, time.July, 9, 0, 0, 1.0, "late")

	merged, _ := Merge([]EarthquakeRecord{late, tie1}, []EarthquakeRecord{tie2, early, tie3})

	want := []string{"early", "first", "second", "third", "late"}
	got := make([]string, len(merged))
	for i, r := range merged {
		got[i] = r.Location
	}
	assert.Equal(t, want, got)

	for i := 1; i < len(merged); i++ {
		assert.False(t, merged[i].Time.Before(merged[i-1].Time))
	}
}

func TestMerge_DuplicatesInsideExistingCollapse(t *testing.T) {
	a := quake(2024, time.July, 5, 12, 0, 2.0, "a")

	merged, added := Merge([]EarthquakeRecord{a, a}, nil)

	assert.Len(t, merged, 1)
	assert.Equal(t, 0, added)
}

func TestCombine_OrdersByYearThenTime(t *testing.T) {
	byYear := map[int][]EarthquakeRecord{
		2025: {quake(2025, time.January, 2, 0, 0, 1, "c")},
		2023: {quake(2023, time.March, 1, 0, 0, 1, "a2"), quake(2023, time.February, 1, 0, 0, 1, "a1")},
		2024: {quake(2024, time.December, 31, 23, 59, 1, "b")},
	}

	combined := Combine(byYear)

	got := make([]string, len(combined))
	for i, r := range combined {
		got[i] = r.Location
	}
	assert.Equal(t, []string{"a1", "a2", "b", "c"}, got)
	assert.Equal(t, "a2", byYear[2023][0].Location, "input must not be reordered")
}
