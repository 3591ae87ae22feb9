package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketmap/internal/model"
)

func sampleRows() []model.TableRow {
	return []model.TableRow{
		model.NewTableRow("10001", "New York", "NY", 21102, 11000, 100),
		model.NewTableRow("90210", `Beverly "Hills"`, "CA", 19627, 9876, 125.5),
		model.NewTableRow("60601", "Chicago, Loop", "IL", 14675, 3333, 100),
		model.NewTableRow("00501", "", "NY", 0, 0, 100),
	}
}

func TestWriteCSV_Format(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows()[:1]))

	want := "ZIP Code,City,State,Total Population,Target Audience,Audience Concentration (%),Market Potential ($)\n" +
		`10001,"New York",NY,21102,11000,52.13,1100000.00` + "\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_QuotesCity(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows()))

	out := buf.String()
	assert.Contains(t, out, `"Beverly ""Hills"""`)
	assert.Contains(t, out, `"Chicago, Loop"`)
	assert.Contains(t, out, `00501,"",NY,0,0,0.00,0.00`)
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	rows := sampleRows()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, len(rows)+1)
	assert.Equal(t, csvColumns, records[0])

	for i, rec := range records[1:] {
		r := rows[i]
		assert.Equal(t, r.ZipCode, rec[0])
		assert.Equal(t, r.City, rec[1])
		assert.Equal(t, r.State, rec[2])

		total, err := strconv.ParseInt(rec[3], 10, 64)
		require.NoError(t, err)
		assert.Equal(t, r.TotalPopulation, total)

		target, err := strconv.ParseInt(rec[4], 10, 64)
		require.NoError(t, err)
		assert.Equal(t, r.TargetAudience, target)

		conc, err := strconv.ParseFloat(rec[5], 64)
		require.NoError(t, err)
		assert.InDelta(t, r.AudienceConcentration, conc, 0.005)

		potential, err := strconv.ParseFloat(rec[6], 64)
		require.NoError(t, err)
		assert.InDelta(t, r.MarketPotential, potential, 0.005)
	}
}

func TestWriteCSV_NoRows(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, nil)
	assert.ErrorIs(t, err, ErrNoData)
	assert.Zero(t, buf.Len(), "nothing written")
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteCSV_WriteError(t *testing.T) {
	err := WriteCSV(failWriter{}, sampleRows())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestFilename(t *testing.T) {
	now := time.Date(2025, 3, 9, 14, 5, 7, 0, time.UTC)

	tests := []struct {
		name    string
		filters model.Filters
		ext     string
		want    string
	}{
		{"no filters", nil, "csv", "zip-code-analysis_20250309-140507.csv"},
		{"wildcards dropped", model.Filters{"gender": "both", "age": "all"}, "pdf", "zip-code-analysis_20250309-140507.pdf"},
		{
			"active values in key order",
			model.Filters{"gender": "female", "age": "20-29", "income": "all"},
			".csv",
			"zip-code-analysis_20250309-140507_20-29-female.csv",
		},
		{"sanitized", model.Filters{"ethnicity": "Native / Pacific"}, "csv", "zip-code-analysis_20250309-140507_native-pacific.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filename(now, tt.filters, tt.ext)
			assert.Equal(t, tt.want, got)
			assert.False(t, strings.ContainsAny(got, " /"))
		})
	}
}
