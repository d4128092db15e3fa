package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-bulletin-etl/internal/adapter/phivolcs"
	"github.com/couchcryptid/quake-bulletin-etl/internal/domain"
	"github.com/couchcryptid/quake-bulletin-etl/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

// Fetcher retrieves the raw HTML of one monthly bulletin page.
type Fetcher interface {
	FetchMonth(ctx context.Context, year int, month time.Month) ([]byte, error)
}

// Archive persists yearly record sets and the combined all-years set.
type Archive interface {
	Years() ([]int, error)
	Load(year int) ([]domain.EarthquakeRecord, error)
	Update(year int, fn func(existing []domain.EarthquakeRecord) ([]domain.EarthquakeRecord, error)) ([]domain.EarthquakeRecord, error)
	SaveCombined(records []domain.EarthquakeRecord) error
}

// Publisher forwards newly archived records downstream.
type Publisher interface {
	Publish(ctx context.Context, records []domain.EarthquakeRecord) error
}

// Options controls which bulletins a run requests and how fast.
type Options struct {
	// Years is the number of trailing calendar years, including the current one.
	Years        int
	RequestDelay time.Duration
}

// Target is one monthly bulletin page.
type Target struct {
	Year  int
	Month time.Month
}

// Result describes a completed run.
type Result struct {
	Years []int

	MonthsFetched      int
	MonthsNotPublished int
	MonthsFailed       int
	MonthsSchemaDrift  int

	RowsParsed  int
	RowsSkipped int // rows with an unexpected cell count
	RowsDropped int // rows that failed normalization or fell outside the target years

	Added map[int]int
	// ByYear holds the archive of every target year that was merged successfully.
	ByYear map[int][]domain.EarthquakeRecord
	// Combined is nil when the combined archive was not written.
	Combined []domain.EarthquakeRecord

	Published     int
	PublishFailed bool
}

// TotalAdded is the number of records appended across all yearly archives.
func (r Result) TotalAdded() int {
	n := 0
	for _, a := range r.Added {
		n += a
	}
	return n
}

// Records returns the combined archive, or the merged target years when the
// combined archive was not written.
func (r Result) Records() []domain.EarthquakeRecord {
	if r.Combined != nil {
		return r.Combined
	}
	return domain.Combine(r.ByYear)
}

// Pipeline runs one scrape: fetch, parse, normalize, aggregate, merge, combine.
type Pipeline struct {
	fetcher   Fetcher
	archive   Archive
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options
}

// New creates a Pipeline. publisher may be nil. At least the current year is
// always scraped.
func New(f Fetcher, a Archive, p Publisher, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.Years < 1 {
		opts.Years = 1
	}
	return &Pipeline{
		fetcher:   f,
		archive:   a,
		publisher: p,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
	}
}

// Targets lists the bulletin pages for the trailing years ending at now.
// Months after now's month in now's year are not published yet and omitted.
func Targets(now time.Time, years int) []Target {
	current := now.Year()
	var out []Target
	for y := current - years + 1; y <= current; y++ {
		last := time.December
		if y == current {
			last = now.Month()
		}
		for m := time.January; m <= last; m++ {
			out = append(out, Target{Year: y, Month: m})
		}
	}
	return out
}

// Run executes one scrape. Fetch and row failures are counted and skipped.
// The returned error is non-nil only when the context was cancelled or a
// yearly archive could not be merged; in the latter case the other years are
// still merged but the combined archive is left untouched.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	now := domain.Now()
	res := Result{
		Added:  make(map[int]int),
		ByYear: make(map[int][]domain.EarthquakeRecord),
	}
	for y := now.Year() - p.opts.Years + 1; y <= now.Year(); y++ {
		res.Years = append(res.Years, y)
	}
	p.logger.Info("scrape started", "from", res.Years[0], "to", now.Year())

	var scraped []domain.EarthquakeRecord
	targets := Targets(now, p.opts.Years)
	for i, t := range targets {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && !retry.SleepWithContext(ctx, p.opts.RequestDelay) {
			break
		}
		scraped = append(scraped, p.scrapeMonth(ctx, t, &res)...)
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("scrape interrupted: %w", err)
	}

	incoming := domain.GroupByYear(scraped)
	for _, y := range domain.SortedYears(incoming) {
		if y < res.Years[0] || y > now.Year() {
			p.logger.Warn("dropping records outside target years", "year", y, "count", len(incoming[y]))
			res.RowsDropped += len(incoming[y])
			p.metrics.RowsDropped.Add(float64(len(incoming[y])))
			delete(incoming, y)
		}
	}

	var errs []error
	var added []domain.EarthquakeRecord
	for _, y := range res.Years {
		merged, fresh, err := p.mergeYear(y, incoming[y])
		if err != nil {
			p.logger.Error("merge yearly archive failed", "year", y, "error", err)
			errs = append(errs, fmt.Errorf("year %d: %w", y, err))
			continue
		}
		res.ByYear[y] = merged
		res.Added[y] = len(fresh)
		added = append(added, fresh...)
	}

	p.publish(ctx, added, &res)

	if len(errs) > 0 {
		p.logger.Error("combined archive not written", "failed_years", len(errs))
		return res, errors.Join(errs...)
	}

	combined, err := p.writeCombined(res.ByYear)
	if err != nil {
		p.logger.Error("write combined archive failed", "error", err)
		return res, err
	}
	res.Combined = combined
	p.metrics.LastSuccess.Set(float64(domain.Now().Unix()))

	if res.MonthsFetched == 0 {
		p.logger.Warn("no bulletin page could be fetched", "targets", len(targets))
	}
	p.logger.Info("scrape complete", "added", res.TotalAdded(), "total", len(combined))
	return res, nil
}

// scrapeMonth fetches, parses, and normalizes one bulletin page. Failures are
// recorded on res and yield no records.
func (p *Pipeline) scrapeMonth(ctx context.Context, t Target, res *Result) []domain.EarthquakeRecord {
	log := p.logger.With("year", t.Year, "month", t.Month.String())

	start := time.Now()
	data, err := p.fetcher.FetchMonth(ctx, t.Year, t.Month)
	p.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	switch {
	case errors.Is(err, phivolcs.ErrNotPublished):
		log.Info("bulletin not published")
		res.MonthsNotPublished++
		p.metrics.PagesFetched.WithLabelValues(observability.OutcomeNotPublished).Inc()
		return nil
	case err != nil:
		if ctx.Err() == nil {
			log.Warn("skipping month", "error", err)
			res.MonthsFailed++
			p.metrics.PagesFetched.WithLabelValues(observability.OutcomeError).Inc()
		}
		return nil
	}

	page, err := phivolcs.ParseBulletin(data)
	if err != nil {
		log.Warn("skipping month", "error", err)
		if errors.Is(err, phivolcs.ErrSchemaDrift) {
			res.MonthsSchemaDrift++
			p.metrics.PagesFetched.WithLabelValues(observability.OutcomeSchemaDrift).Inc()
		} else {
			res.MonthsFailed++
			p.metrics.PagesFetched.WithLabelValues(observability.OutcomeError).Inc()
		}
		return nil
	}

	res.MonthsFetched++
	p.metrics.PagesFetched.WithLabelValues(observability.OutcomeOK).Inc()
	if !page.Found {
		log.Info("no bulletin table on page")
	}

	res.RowsParsed += len(page.Rows)
	res.RowsSkipped += page.Skipped
	p.metrics.RowsDropped.Add(float64(page.Skipped))

	records := make([]domain.EarthquakeRecord, 0, len(page.Rows))
	for _, raw := range page.Rows {
		rec, err := domain.NormalizeRow(raw)
		if err != nil {
			log.Debug("dropping malformed row", "error", err)
			res.RowsDropped++
			p.metrics.RowsDropped.Inc()
			continue
		}
		records = append(records, rec)
	}
	log.Debug("bulletin parsed", "rows", len(page.Rows), "records", len(records))
	return records
}

// mergeYear unions incoming into the year's archive. The file is rewritten only
// when something new arrived; a missing file is still created so every target
// year has one. merged is always the deduplicated, time-ordered view.
func (p *Pipeline) mergeYear(year int, incoming []domain.EarthquakeRecord) ([]domain.EarthquakeRecord, []domain.EarthquakeRecord, error) {
	var merged, fresh []domain.EarthquakeRecord
	_, err := p.archive.Update(year, func(existing []domain.EarthquakeRecord) ([]domain.EarthquakeRecord, error) {
		var n int
		merged, n = domain.Merge(existing, incoming)
		if n == 0 {
			// Nothing new: leave the file as it is on disk.
			return existing, nil
		}
		fresh = newRecords(existing, merged)
		return merged, nil
	})
	if err != nil {
		return nil, nil, err
	}

	label := strconv.Itoa(year)
	p.metrics.RecordsAdded.WithLabelValues(label).Add(float64(len(fresh)))
	p.metrics.ArchiveRecords.WithLabelValues(label).Set(float64(len(merged)))
	p.logger.Info("yearly archive merged", "year", year, "added", len(fresh), "total", len(merged))
	return merged, fresh, nil
}

// writeCombined rebuilds the combined archive from every yearly archive on
// disk, reusing the records already merged in this run.
func (p *Pipeline) writeCombined(merged map[int][]domain.EarthquakeRecord) ([]domain.EarthquakeRecord, error) {
	years, err := p.archive.Years()
	if err != nil {
		return nil, fmt.Errorf("list yearly archives: %w", err)
	}
	all := make(map[int][]domain.EarthquakeRecord, len(years))
	for y, recs := range merged {
		all[y] = recs
	}
	for _, y := range years {
		if _, ok := all[y]; ok {
			continue
		}
		recs, err := p.archive.Load(y)
		if err != nil {
			return nil, fmt.Errorf("load yearly archive %d: %w", y, err)
		}
		all[y] = recs
	}

	combined := domain.Combine(all)
	if err := p.archive.SaveCombined(combined); err != nil {
		return nil, fmt.Errorf("save combined archive: %w", err)
	}
	return combined, nil
}

func (p *Pipeline) publish(ctx context.Context, records []domain.EarthquakeRecord, res *Result) {
	if p.publisher == nil || len(records) == 0 {
		return
	}
	if err := p.publisher.Publish(ctx, records); err != nil {
		p.logger.Error("publish new records failed", "count", len(records), "error", err)
		res.PublishFailed = true
		return
	}
	res.Published = len(records)
	p.metrics.RecordsPublished.Add(float64(len(records)))
}

// newRecords returns the records in merged whose identity is absent from existing.
func newRecords(existing, merged []domain.EarthquakeRecord) []domain.EarthquakeRecord {
	seen := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		seen[r.Key()] = struct{}{}
	}
	var out []domain.EarthquakeRecord
	for _, r := range merged {
		if _, ok := seen[r.Key()]; !ok {
			out = append(out, r)
		}
	}
	return out
}
