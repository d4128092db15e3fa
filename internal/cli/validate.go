package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-bulletin-etl/internal/adapter/csvarchive"
	"github.com/couchcryptid/quake-bulletin-etl/internal/domain"
)

// errValidationFailed is returned when any phase reports a problem.
var errValidationFailed = errors.New("validation failed")

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check archive integrity without fetching",
		Long: `Re-read every yearly archive and the combined archive and check that
each yearly file holds only its own year, is ordered by time, and contains no
duplicate rows, and that the combined archive is exactly the ordered union of
the yearly archives.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, rootOpts)
			if err != nil {
				return err
			}
			return runValidate(cmd.OutOrStdout(), csvarchive.New(cfg.OutputDir, cfg.ArchivePrefix))
		},
	}
}

func runValidate(w io.Writer, store *csvarchive.Store) error {
	fmt.Fprintf(w, "=== Archive Integrity Validation (%s) ===\n\n", store.CombinedPath())

	yearly, byYear := validateYearly(store)
	combined := validateCombined(store, byYear)
	phases := []*phase{yearly, combined}

	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-36s %s\n", p.name, status)
	}

	total := 0
	for _, recs := range byYear {
		total += len(recs)
	}
	fmt.Fprintf(w, "\nRecords: %d across %d yearly archives\n", total, len(byYear))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if !allPassed {
		fmt.Fprintln(w, "\nValidation FAILED.")
		return errValidationFailed
	}
	fmt.Fprintln(w, "\nAll validations passed.")
	return nil
}

// ── Phase 1: Yearly archives ──

func validateYearly(store *csvarchive.Store) (*phase, map[int][]domain.EarthquakeRecord) {
	p := &phase{name: "Phase 1: Yearly archives"}
	byYear := make(map[int][]domain.EarthquakeRecord)

	years, err := store.Years()
	if err != nil {
		p.errorf("list archives: %v", err)
		return p, byYear
	}
	if len(years) == 0 {
		p.errorf("no yearly archives found")
		return p, byYear
	}

	for _, y := range years {
		recs, err := store.Load(y)
		if err != nil {
			p.errorf("%d: %v", y, err)
			continue
		}
		for _, issue := range domain.CheckYearArchive(y, recs) {
			p.errorf("%d %s", y, issue)
		}
		byYear[y] = recs
	}
	return p, byYear
}

// ── Phase 2: Combined archive ──

func validateCombined(store *csvarchive.Store, byYear map[int][]domain.EarthquakeRecord) *phase {
	p := &phase{name: "Phase 2: Combined archive"}

	if _, err := os.Stat(store.CombinedPath()); errors.Is(err, fs.ErrNotExist) {
		p.errorf("%s is missing", store.CombinedPath())
		return p
	}
	combined, err := store.LoadCombined()
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	for _, issue := range domain.CheckCombinedArchive(combined, byYear) {
		p.errorf("%s", issue)
	}
	return p
}
