package csvarchive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"sync"

	"github.com/couchcryptid/quake-bulletin-etl/internal/domain"
)

// Store keeps one CSV archive per year plus a combined archive in a directory.
// It implements pipeline.Archive.
type Store struct {
	dir    string
	prefix string
	yearRe *regexp.Regexp

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Store. Files are named <prefix>_<year>.csv and
// <prefix>_all_years.csv inside dir.
func New(dir, prefix string) *Store {
	return &Store{
		dir:    dir,
		prefix: prefix,
		yearRe: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_(\d{4})\.csv$`),
		locks:  make(map[string]*sync.Mutex),
	}
}

// YearPath is the archive file for a year.
func (s *Store) YearPath(year int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%d.csv", s.prefix, year))
}

// CombinedPath is the all-years archive file.
func (s *Store) CombinedPath() string {
	return filepath.Join(s.dir, s.prefix+"_all_years.csv")
}

// Years lists the years that have an archive on disk, ascending.
func (s *Store) Years() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}

	var years []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := s.yearRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		y, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		years = append(years, y)
	}
	slices.Sort(years)
	return years, nil
}

// Load reads the archive for a year. A missing archive is empty, not an error.
func (s *Store) Load(year int) ([]domain.EarthquakeRecord, error) {
	lock := s.lockFor(s.YearPath(year))
	lock.Lock()
	defer lock.Unlock()
	return s.loadYear(year)
}

// Update runs a read-modify-write of one year's archive under that file's
// lock. fn receives the current records; its result replaces the archive.
// When loading fails or fn returns an error, the file is left untouched.
// An existing file is not rewritten when fn returns the same events in the
// same order, and an update that would lose an archived event is refused.
func (s *Store) Update(year int, fn func(existing []domain.EarthquakeRecord) ([]domain.EarthquakeRecord, error)) ([]domain.EarthquakeRecord, error) {
	path := s.YearPath(year)
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.loadYear(year)
	if err != nil {
		return nil, err
	}
	updated, err := fn(existing)
	if err != nil {
		return nil, err
	}
	if missing := missingKeys(existing, updated); missing > 0 {
		return nil, fmt.Errorf("update %s: refusing to drop %d archived events", path, missing)
	}
	if unchanged(existing, updated) {
		if _, err := os.Stat(path); err == nil {
			return updated, nil
		}
	}
	if err := s.writeFile(path, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// LoadCombined reads the combined archive. A missing file is empty.
func (s *Store) LoadCombined() ([]domain.EarthquakeRecord, error) {
	path := s.CombinedPath()
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()
	return readFile(path)
}

// SaveCombined replaces the combined archive.
func (s *Store) SaveCombined(records []domain.EarthquakeRecord) error {
	path := s.CombinedPath()
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()
	return s.writeFile(path, records)
}

// missingKeys counts distinct event keys in before that are absent from after.
// Duplicate rows in a legacy archive count once.
func missingKeys(before, after []domain.EarthquakeRecord) int {
	kept := make(map[string]struct{}, len(after))
	for _, r := range after {
		kept[r.Key()] = struct{}{}
	}
	missing := make(map[string]struct{})
	for _, r := range before {
		if _, ok := kept[r.Key()]; !ok {
			missing[r.Key()] = struct{}{}
		}
	}
	return len(missing)
}

func unchanged(before, after []domain.EarthquakeRecord) bool {
	return slices.EqualFunc(before, after, func(a, b domain.EarthquakeRecord) bool {
		return a.Key() == b.Key()
	})
}

func (s *Store) loadYear(year int) ([]domain.EarthquakeRecord, error) {
	path := s.YearPath(year)
	records, err := readFile(path)
	if err != nil {
		return nil, err
	}
	for i, r := range records {
		if r.Year() != year {
			return nil, fmt.Errorf("%w: %s row %d belongs to %d", ErrCorruptArchive, path, i+1, r.Year())
		}
	}
	return records, nil
}

func (s *Store) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

func readFile(path string) ([]domain.EarthquakeRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	records, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

// writeFile replaces path atomically: a temp file in the same directory is
// fully written and synced before it is renamed over the target.
func (s *Store) writeFile(path string, records []domain.EarthquakeRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if err := Encode(tmp, records); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
