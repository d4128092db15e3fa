package csvarchive

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/couchcryptid/quake-bulletin-etl/internal/domain"
)

// utf8BOM prefixes every archive so spreadsheet tools detect the encoding.
const utf8BOM = "\ufeff"

// ErrCorruptArchive marks an archive that exists but cannot be trusted.
// Callers must not overwrite it.
var ErrCorruptArchive = errors.New("corrupt archive")

// Encode writes records as a headed CSV document.
func Encode(w io.Writer, records []domain.EarthquakeRecord) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(r.Fields()); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Decode reads a headed CSV document. Any structural or field error is
// reported as ErrCorruptArchive with the offending line.
func Decode(r io.Reader) ([]domain.EarthquakeRecord, error) {
	br := bufio.NewReader(r)
	if lead, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(lead, []byte(utf8BOM)) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = len(domain.Columns)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrCorruptArchive, err)
	}
	if !slices.Equal(header, domain.Columns) {
		return nil, fmt.Errorf("%w: header %v", ErrCorruptArchive, header)
	}

	var records []domain.EarthquakeRecord
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
		}
		line, _ := cr.FieldPos(0)

		rec, err := decodeRecord(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorruptArchive, line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRecord(fields []string) (domain.EarthquakeRecord, error) {
	rec, err := domain.NormalizeRow(domain.RawRow{
		DateTime:  fields[0],
		Latitude:  fields[1],
		Longitude: fields[2],
		Depth:     fields[3],
		Magnitude: fields[4],
		Location:  fields[5],
	})
	if err != nil {
		return domain.EarthquakeRecord{}, err
	}

	// Older archives stored the bulletin's own date text, and their Month and
	// Year columns name the page a row came from, not the event. Only rows in
	// the canonical layout must carry labels derived from their timestamp.
	if fields[0] != rec.Time.Format(domain.TimestampLayout) {
		return rec, nil
	}
	if fields[6] != rec.Month() {
		return domain.EarthquakeRecord{}, fmt.Errorf("month %q does not match %s", fields[6], rec.Month())
	}
	year, err := strconv.Atoi(fields[7])
	if err != nil || year != rec.Year() {
		return domain.EarthquakeRecord{}, fmt.Errorf("year %q does not match %d", fields[7], rec.Year())
	}
	return rec, nil
}
