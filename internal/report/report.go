// Package report renders the human-readable summary printed after each run.
package report

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/couchcryptid/quake-bulletin-etl/internal/domain"
	"github.com/couchcryptid/quake-bulletin-etl/internal/pipeline"
)

const (
	rule        = "======================================================================"
	locationMax = 50
)

// Options selects what the summary lists.
type Options struct {
	TopN int
	// Files are the archive paths touched by the run, combined last.
	Files []string
}

// printer keeps the first write error so rendering code stays linear.
type printer struct {
	w   io.Writer
	num *message.Printer
	err error
}

func (pr *printer) printf(format string, args ...any) {
	if pr.err != nil {
		return
	}
	_, pr.err = fmt.Fprintf(pr.w, format, args...)
}

// count renders n with thousands separators.
func (pr *printer) count(n int) string {
	return pr.num.Sprintf("%d", n)
}

// Print writes the run counters, per-year totals, magnitude statistics, and
// strongest events for res to w.
func Print(w io.Writer, res pipeline.Result, opts Options) error {
	pr := &printer{w: w, num: message.NewPrinter(language.English)}
	records := res.Records()
	s := domain.Summarize(records, opts.TopN)

	pr.printf("%s\nPHIVOLCS EARTHQUAKE SCRAPE SUMMARY\n%s\n", rule, rule)
	if len(res.Years) > 0 {
		pr.printf("Years scraped:      %d - %d\n", res.Years[0], res.Years[len(res.Years)-1])
	}
	skipped := res.MonthsFailed + res.MonthsSchemaDrift
	pr.printf("Months fetched:     %d\n", res.MonthsFetched)
	pr.printf("Months skipped:     %d (%d failed, %d schema changes)\n", skipped, res.MonthsFailed, res.MonthsSchemaDrift)
	pr.printf("Not yet published:  %d\n", res.MonthsNotPublished)
	pr.printf("Rows skipped:       %s\n", pr.count(res.RowsSkipped))
	pr.printf("Rows dropped:       %s\n", pr.count(res.RowsDropped))
	pr.printf("Records added:      %s\n", pr.count(res.TotalAdded()))
	if res.Published > 0 {
		pr.printf("Records published:  %s\n", pr.count(res.Published))
	}

	if res.MonthsFetched == 0 {
		pr.printf("\nWARNING: no bulletin page could be fetched; archives were not extended.\n")
	}
	if res.PublishFailed {
		pr.printf("WARNING: publishing new records failed; they are archived but were not sent.\n")
	}
	if res.Combined == nil {
		pr.printf("WARNING: combined archive was not updated.\n")
	}

	pr.printf("\nEarthquakes by year:\n")
	for _, yc := range s.ByYear {
		pr.printf("  %d: %s earthquakes", yc.Year, pr.count(yc.Count))
		if n := res.Added[yc.Year]; n > 0 {
			pr.printf(" (+%s)", pr.count(n))
		}
		pr.printf("\n")
	}
	pr.printf("Total records: %s\n", pr.count(s.Total))

	if s.Total > 0 {
		pr.printf("\nMagnitude: min %.1f, max %.1f, mean %.2f\n", s.MinMag, s.MaxMag, s.MeanMag)
		for _, b := range s.Buckets {
			pr.printf("  %-8s %8s\n", b.Label, pr.count(b.Count))
		}
	}

	if len(s.Strongest) > 0 {
		pr.printf("\nTop %d strongest earthquakes:\n", len(s.Strongest))
		for _, r := range s.Strongest {
			pr.printf("  Mag %s - %s (%s)\n",
				formatMagnitude(r.Magnitude), truncate(r.Location, locationMax), r.Time.Format(domain.TimestampLayout))
		}
	}

	if len(opts.Files) > 0 {
		pr.printf("\nFiles:\n")
		for _, f := range opts.Files {
			pr.printf("  %s\n", f)
		}
	}
	pr.printf("%s\n", rule)

	if pr.err != nil {
		return fmt.Errorf("write summary: %w", pr.err)
	}
	return nil
}

func formatMagnitude(m float64) string {
	return fmt.Sprintf("%.1f", m)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
