package phivolcs

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/couchcryptid/quake-bulletin-etl/internal/domain"
)

// bulletinColumns is the number of leading cells that carry record fields.
const bulletinColumns = 6

// ErrSchemaDrift is returned when a page's table no longer matches the
// expected bulletin layout. The page is skipped rather than reinterpreted.
var ErrSchemaDrift = errors.New("bulletin table schema changed")

var (
	headerDateRe = regexp.MustCompile(`(?i)date|time|philippine`)
	headerLatRe  = regexp.MustCompile(`(?i)latitude|ºN|°N`)
	headerLonRe  = regexp.MustCompile(`(?i)longitude|ºE|°E`)

	summaryRe     = regexp.MustCompile(`(?i)total|no\. of events`)
	monthAbbrevRe = regexp.MustCompile(`^[A-Z][a-z]{2}-\d{2}$`)

	// expectedHeader holds a lowercase fragment each header label must contain.
	expectedHeader = [bulletinColumns]string{"date", "lat", "lon", "depth", "mag", "location"}
)

// Page is the outcome of parsing one bulletin page.
type Page struct {
	Rows []domain.RawRow
	// Skipped counts data-like rows dropped for having an unexpected cell count.
	Skipped int
	// Found is false when the page contained no bulletin table.
	Found bool
}

// ParseBulletin extracts raw rows from a bulletin page. A page without a
// bulletin table yields an empty Page and no error. Rows are returned in
// document order.
func ParseBulletin(data []byte) (Page, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	var table [][]string
	var width int
	for _, t := range findTables(doc) {
		rows := tableRows(t)
		if w := dominantWidth(rows); w >= bulletinColumns-1 {
			table, width = rows, w
			break
		}
	}
	if table == nil {
		return Page{}, nil
	}
	if width < bulletinColumns {
		return Page{}, fmt.Errorf("%w: %d columns", ErrSchemaDrift, width)
	}

	page := Page{Found: true}
	for _, cells := range table {
		switch {
		case isBlank(cells):
			continue
		case isHeader(cells):
			if err := checkHeader(cells); err != nil {
				return Page{}, err
			}
			continue
		case isSummary(cells):
			continue
		case len(cells) != width:
			// Single spanning cells are titles or separators, not data.
			if len(cells) > 1 {
				page.Skipped++
			}
			continue
		}
		page.Rows = append(page.Rows, domain.RawRow{
			DateTime:  cells[0],
			Latitude:  cells[1],
			Longitude: cells[2],
			Depth:     cells[3],
			Magnitude: cells[4],
			Location:  cells[5],
		})
	}
	return page, nil
}

// findTables returns every <table> element in document order.
func findTables(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// tableRows returns the cell texts of rows that belong to table itself,
// not to tables nested inside it.
func tableRows(table *html.Node) [][]string {
	var rows [][]string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				continue
			case atom.Tr:
				rows = append(rows, rowCells(c))
			default:
				walk(c)
			}
		}
	}
	walk(table)
	return rows
}

func rowCells(tr *html.Node) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			cells = append(cells, cellText(c))
		}
	}
	return cells
}

// cellText joins the text nodes under n, collapsing whitespace.
func cellText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Table:
				return
			case atom.Br:
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// dominantWidth is the most common cell count among rows, preferring the
// wider count on ties. Header and summary rows often span columns, so the
// mode tracks the data rows.
func dominantWidth(rows [][]string) int {
	freq := make(map[int]int)
	for _, r := range rows {
		if len(r) > 0 {
			freq[len(r)]++
		}
	}
	best, bestCount := 0, 0
	for w, n := range freq {
		if n > bestCount || (n == bestCount && w > best) {
			best, bestCount = w, n
		}
	}
	return best
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

func isHeader(cells []string) bool {
	return headerDateRe.MatchString(cell(cells, 0)) ||
		headerLatRe.MatchString(cell(cells, 1)) ||
		headerLonRe.MatchString(cell(cells, 2))
}

func isSummary(cells []string) bool {
	first := cell(cells, 0)
	return summaryRe.MatchString(first) || monthAbbrevRe.MatchString(first)
}

// checkHeader verifies the column order of a label row. Unit rows such as
// "(ºN)" and spanning titles carry no labels and are not checked.
func checkHeader(cells []string) error {
	if len(cells) < bulletinColumns || labelCount(cells) < 3 {
		return nil
	}
	for i, want := range expectedHeader {
		if !strings.Contains(strings.ToLower(cells[i]), want) {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrSchemaDrift, i+1, cells[i], want)
		}
	}
	return nil
}

// labelCount is the number of cells that contain any expected column label.
func labelCount(cells []string) int {
	n := 0
	for _, c := range cells {
		lc := strings.ToLower(c)
		for _, label := range expectedHeader {
			if strings.Contains(lc, label) {
				n++
				break
			}
		}
	}
	return n
}
