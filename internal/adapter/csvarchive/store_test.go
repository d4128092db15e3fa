package csvarchive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-bulletin-etl/internal/domain"
)

const testPrefix = "phivolcs_earthquake"

func TestStore_Paths(t *testing.T) {
	s := New("data", testPrefix)

	assert.Equal(t, filepath.Join("data", "phivolcs_earthquake_2024.csv"), s.YearPath(2024))
	assert.Equal(t, filepath.Join("data", "phivolcs_earthquake_all_years.csv"), s.CombinedPath())
}

func TestStore_LoadMissingIsEmpty(t *testing.T) {
	s := New(t.TempDir(), testPrefix)

	recs, err := s.Load(2024)

	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStore_UpdateCreatesAndReloads(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	s := New(dir, testPrefix)

	out, err := s.Update(2024, func(existing []domain.EarthquakeRecord) ([]domain.EarthquakeRecord, error) {
		assert.Empty(t, existing)
		return sampleRecords(), nil
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	reloaded, err := s.Load(2024)
	require.NoError(t, err)
	require.Len(t, reloaded, 2)
	assert.Equal(t, sampleRecords()[1].Key(), reloaded[1].Key())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestStore_UpdateCorruptArchiveLeftUntouched(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, testPrefix)
	garbage := []byte("this is not,an archive\n")
	require.NoError(t, os.WriteFile(s.YearPath(2023), garbage, 0o644))

	called := false
	_, err := s.Update(2023, func(existing []domain.EarthquakeRecord) ([]domain.EarthquakeRecord, error) {
		called = true
		return existing, nil
	})

	require.ErrorIs(t, err, ErrCorruptArchive)
	assert.False(t, called)
	data, err := os.ReadFile(s.YearPath(2023))
	require.NoError(t, err)
	assert.Equal(t, garbage, data)
}

func TestStore_UpdateRefusesToShrink(t *testing.T) {
	s := New(t.TempDir(), testPrefix)
	_, err := s.Update(2024, func([]domain.EarthquakeRecord) ([]domain.EarthquakeRecord, error) {
		return sampleRecords(), nil
	})
	require.NoError(t, err)

	_, err = s.Update(2024, func(existing []domain.EarthquakeRecord) ([]domain.EarthquakeRecord, error) {
		return existing[:1], nil
	})

	require.Error(t, err)
	recs, err := s.Load(2024)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestStore_UpdateCollapsesLegacyDuplicates(t *testing.T) {
	s := New(t.TempDir(), testPrefix)
	header := strings.Join(domain.Columns, ",") + "\n"
	dup := "01 March 2024 - 10:15 AM,14.2,121.0,10,4.5,Manila,March,2024\n"
	require.NoError(t, os.WriteFile(s.YearPath(2024), []byte(header+dup+dup), 0o644))

	out, err := s.Update(2024, func(existing []domain.EarthquakeRecord) ([]domain.EarthquakeRecord, error) {
		require.Len(t, existing, 2)
		merged, _ := domain.Merge(existing, nil)
		return merged, nil
	})

	require.NoError(t, err)
	assert.Len(t, out, 1)
	recs, err := s.Load(2024)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestStore_UpdateUnchangedLeavesFileAlone(t *testing.T) {
	s := New(t.TempDir(), testPrefix)
	legacy, err := os.ReadFile(filepath.Join("testdata", "legacy_2024.csv"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.YearPath(2024), legacy, 0o644))

	out, err := s.Update(2024, func(existing []domain.EarthquakeRecord) ([]domain.EarthquakeRecord, error) {
		return existing, nil
	})

	require.NoError(t, err)
	assert.Len(t, out, 2)
	data, err := os.ReadFile(s.YearPath(2024))
	require.NoError(t, err)
	assert.Equal(t, legacy, data)
}

func TestStore_UpdateUnchangedCreatesMissingFile(t *testing.T) {
	s := New(t.TempDir(), testPrefix)

	out, err := s.Update(2024, func(existing []domain.EarthquakeRecord) ([]domain.EarthquakeRecord, error) {
		return existing, nil
	})

	require.NoError(t, err)
	assert.Empty(t, out)
	assert.FileExists(t, s.YearPath(2024))
}

func TestStore_LoadRejectsForeignYear(t *testing.T) {
	s := New(t.TempDir(), testPrefix)
	require.NoError(t, s.writeFile(s.YearPath(2023), sampleRecords()))

	_, err := s.Load(2023)

	require.ErrorIs(t, err, ErrCorruptArchive)
	assert.Contains(t, err.Error(), "belongs to 2024")
}

func TestStore_Years(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, testPrefix)
	for _, name := range []string{
		"phivolcs_earthquake_2025.csv",
		"phivolcs_earthquake_2023.csv",
		"phivolcs_earthquake_all_years.csv",
		"other_2024.csv",
		"phivolcs_earthquake_2024.csv.bak",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	years, err := s.Years()

	require.NoError(t, err)
	assert.Equal(t, []int{2023, 2025}, years)
}

func TestStore_YearsMissingDir(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "absent"), testPrefix)

	years, err := s.Years()

	require.NoError(t, err)
	assert.Empty(t, years)
}

func TestStore_Combined(t *testing.T) {
	s := New(t.TempDir(), testPrefix)

	empty, err := s.LoadCombined()
	require.NoError(t, err)
	assert.Empty(t, empty)

	extra := domain.EarthquakeRecord{
		Time:      time.Date(2023, time.January, 1, 0, 1, 0, 0, domain.SourceZone),
		Magnitude: 1.2,
		Location:  "x",
	}
	require.NoError(t, s.SaveCombined(append([]domain.EarthquakeRecord{extra}, sampleRecords()...)))

	got, err := s.LoadCombined()
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 2023, got[0].Year())
}
