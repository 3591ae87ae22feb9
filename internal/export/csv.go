// Package export writes the full ZIP analysis table as CSV or as a PDF
// market report.
package export

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketmap/internal/model"
)

// ErrNoData is returned when there are no rows to export.
var ErrNoData = eris.New("export: no data to export")

// csvColumns is the fixed CSV header.
var csvColumns = []string{
	"ZIP Code",
	"City",
	"State",
	"Total Population",
	"Target Audience",
	"Audience Concentration (%)",
	"Market Potential ($)",
}

// WriteCSV writes every row with a header. The city column is always quoted.
func WriteCSV(w io.Writer, rows []model.TableRow) error {
	if len(rows) == 0 {
		return ErrNoData
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(csvColumns, ",") + "\n"); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}

	var line []byte
	for _, r := range rows {
		line = line[:0]
		line = appendField(line, r.ZipCode, false)
		line = append(line, ',')
		line = appendField(line, r.City, true)
		line = append(line, ',')
		line = appendField(line, r.State, false)
		line = append(line, ',')
		line = strconv.AppendInt(line, r.TotalPopulation, 10)
		line = append(line, ',')
		line = strconv.AppendInt(line, r.TargetAudience, 10)
		line = append(line, ',')
		line = strconv.AppendFloat(line, r.AudienceConcentration, 'f', 2, 64)
		line = append(line, ',')
		line = strconv.AppendFloat(line, r.MarketPotential, 'f', 2, 64)
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", r.ZipCode)
		}
	}

	if err := bw.Flush(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return nil
}

// appendField appends s, quoting it when forced or when it needs quoting.
func appendField(dst []byte, s string, force bool) []byte {
	if !force && !strings.ContainsAny(s, ",\"\r\n") {
		return append(dst, s...)
	}
	dst = append(dst, '"')
	dst = append(dst, strings.ReplaceAll(s, `"`, `""`)...)
	return append(dst, '"')
}

const filenamePrefix = "zip-code-analysis"

var unsafeChars = regexp.MustCompile(`[^a-z0-9-]+`)

// Filename builds a download name from the export time and the active filter
// values, e.g. zip-code-analysis_20250102-150405_female-25-34.csv.
func Filename(now time.Time, filters model.Filters, ext string) string {
	var b strings.Builder
	b.WriteString(filenamePrefix)
	b.WriteByte('_')
	b.WriteString(now.Format("20060102-150405"))

	var parts []string
	for _, p := range filters.Active() {
		v := unsafeChars.ReplaceAllString(strings.ToLower(p.Value), "-")
		v = strings.Trim(v, "-")
		if v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) > 0 {
		b.WriteByte('_')
		b.WriteString(strings.Join(parts, "-"))
	}

	ext = strings.TrimPrefix(ext, ".")
	if ext != "" {
		b.WriteByte('.')
		b.WriteString(ext)
	}
	return b.String()
}
