// Package demographics loads the ACS ZIP dataset and derives target
// populations from it.
package demographics

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/marketmap/internal/model"
)

// Age bracket share columns and their midpoints in years.
var (
	ageColumns   = []string{"age_under_10", "age_10_to_19", "age_20s", "age_30s", "age_40s", "age_50s", "age_60s", "age_70s", "age_over_80"}
	ageMidpoints = []float64{5, 15, 25, 35, 45, 55, 65, 75, 85}
)

// Household income bracket share columns and their midpoints in dollars.
var (
	incomeColumns = []string{
		"income_household_under_10k", "income_household_10k_to_15k", "income_household_15k_to_20k",
		"income_household_20k_to_25k", "income_household_25k_to_30k", "income_household_30k_to_35k",
		"income_household_35k_to_40k", "income_household_40k_to_45k", "income_household_45k_to_50k",
		"income_household_50k_to_60k", "income_household_60k_to_75k", "income_household_75k_to_100k",
		"income_household_100k_to_125k", "income_household_125k_to_150k", "income_household_150k_to_200k",
		"income_household_over_200k",
	}
	incomeMidpoints = []float64{5000, 12500, 17500, 22500, 27500, 32500, 37500, 42500, 47500, 55000, 67500, 87500, 112500, 137500, 175000, 250000}
)

// Identity columns are parsed into typed fields and kept out of Shares.
var identityColumns = map[string]bool{
	"zcta": true, "zip_code": true, "zip": true,
	"lat": true, "lng": true, "latitude": true, "longitude": true,
	"population": true, "state_name": true, "state": true, "state_id": true,
	"city": true, "county_name": true,
}

// Dataset is a cleaned ACS table.
type Dataset struct {
	Rows    []model.Demographics
	Columns []string
	// Dropped counts rows discarded for a missing ZIP or population.
	Dropped int
}

// ReadFile loads path as XLSX or CSV based on its extension.
func ReadFile(ctx context.Context, path, sheet string) (*Dataset, error) {
	var (
		raw [][]string
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		raw, err = ReadXLSX(path, sheet)
	case ".csv":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrap(openErr, "demographics: open csv")
		}
		defer f.Close() //nolint:errcheck
		raw, err = ReadCSV(f)
	default:
		return nil, eris.Errorf("demographics: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "demographics: read cancelled")
	}

	ds, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	zap.L().Info("demographics: dataset loaded",
		zap.String("path", path),
		zap.Int("rows", len(ds.Rows)),
		zap.Int("columns", len(ds.Columns)),
		zap.Int("dropped", ds.Dropped),
	)
	return ds, nil
}

// ReadXLSX returns every row of the named sheet, or the first sheet when
// sheet is empty.
func ReadXLSX(path, sheet string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "demographics: open xlsx")
	}

	var s *xlsx.Sheet
	if sheet != "" {
		var ok bool
		if s, ok = f.Sheet[sheet]; !ok {
			return nil, eris.Errorf("demographics: sheet %q not found", sheet)
		}
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("demographics: workbook has no sheets")
		}
		s = f.Sheets[0]
	}

	out := make([][]string, 0, len(s.Rows))
	for _, row := range s.Rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = c.String()
		}
		out = append(out, cells)
	}
	return out, nil
}

// ReadCSV returns every record of r. Ragged rows are allowed.
func ReadCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	out, err := cr.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "demographics: read csv")
	}
	return out, nil
}

var lower = cases.Lower(language.Und)

// NormalizeHeader trims, lowercases and replaces spaces with underscores.
func NormalizeHeader(h string) string {
	return strings.ReplaceAll(lower.String(strings.TrimSpace(h)), " ", "_")
}

// Parse converts raw rows (header first) into a Dataset. Repeated column
// names keep their first occurrence.
func Parse(raw [][]string) (*Dataset, error) {
	if len(raw) == 0 {
		return nil, eris.New("demographics: empty table")
	}

	index := make(map[string]int)
	var columns []string
	for i, h := range raw[0] {
		name := NormalizeHeader(h)
		if name == "" {
			continue
		}
		if _, dup := index[name]; dup {
			continue
		}
		index[name] = i
		columns = append(columns, name)
	}

	zipCol := firstPresent(index, "zcta", "zip_code", "zip")
	if zipCol == "" {
		return nil, eris.New("demographics: no zcta or zip_code column")
	}
	if _, ok := index["population"]; !ok {
		return nil, eris.New("demographics: no population column")
	}
	latCol := firstPresent(index, "lat", "latitude")
	lngCol := firstPresent(index, "lng", "longitude")
	stateCol := firstPresent(index, "state_name", "state")

	ds := &Dataset{Columns: columns}
	for _, rec := range raw[1:] {
		get := func(col string) string {
			if col == "" {
				return ""
			}
			i := index[col]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		zip := NormalizeZip(get(zipCol))
		pop, popOK := parseNumber(get("population"))
		if zip == "" || !popOK {
			ds.Dropped++
			continue
		}

		d := model.Demographics{
			ZipCode:    zip,
			City:       get("city"),
			State:      get(stateCol),
			Population: int64(math.Round(pop)),
			Shares:     make(map[string]float64),
		}
		lat, latOK := parseNumber(get(latCol))
		lng, lngOK := parseNumber(get(lngCol))
		if latOK && lngOK {
			d.Latitude, d.Longitude, d.HasLocation = lat, lng, true
		}

		for _, col := range columns {
			if identityColumns[col] {
				continue
			}
			if v, ok := parseNumber(get(col)); ok {
				d.Shares[col] = v
			}
		}
		Derive(&d)
		ds.Rows = append(ds.Rows, d)
	}
	return ds, nil
}

// Derive fills MedianAge and MedianIncome from the bracket shares.
func Derive(d *model.Demographics) {
	d.MedianAge = weightedMidpoint(*d, ageColumns, ageMidpoints)
	d.MedianIncome = weightedMidpoint(*d, incomeColumns, incomeMidpoints)
}

// weightedMidpoint estimates a central value as the sum of each bracket's
// population count times its midpoint, over the ZIP population. The
// population cancels, leaving the share-weighted midpoints over 100.
func weightedMidpoint(d model.Demographics, cols []string, mids []float64) float64 {
	if d.Population <= 0 {
		return 0
	}
	shares := make([]float64, len(cols))
	for i, c := range cols {
		shares[i] = d.Share(c)
	}
	return floats.Dot(shares, mids) / 100
}

// NormalizeZip zero-pads a ZCTA to five digits. Spreadsheet numerics
// such as "2134.0" lose their fraction first.
func NormalizeZip(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "nan") {
		return ""
	}
	if i := strings.IndexByte(raw, '.'); i >= 0 && strings.Trim(raw[i+1:], "0") == "" {
		raw = raw[:i]
	}
	if len(raw) < 5 {
		raw = strings.Repeat("0", 5-len(raw)) + raw
	}
	return raw
}

func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func firstPresent(index map[string]int, names ...string) string {
	for _, n := range names {
		if _, ok := index[n]; ok {
			return n
		}
	}
	return ""
}
