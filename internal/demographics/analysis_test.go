package demographics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketmap/internal/model"
)

func profiled(zip string, pop int64, age, income, college float64, shares map[string]float64) model.Demographics {
	d := demo(zip, pop, map[string]float64{collegeColumn: college})
	for k, v := range shares {
		d.Shares[k] = v
	}
	d.MedianAge, d.MedianIncome = age, income
	return d
}

func analysisRows() []model.Demographics {
	return []model.Demographics{
		profiled("30301", 10, 41, 52000, 20, map[string]float64{"race_black": 45, "age_20s": 0}),
		profiled("75001", 50, 33, 88000, 55, map[string]float64{"race_white": 62, "age_20s": 18}),
		profiled("78701", 30, 29, 71000, 48, map[string]float64{"hispanic": 35, "age_20s": 25}),
		profiled("94016", 10, 38, 126000, 71, map[string]float64{"race_asian": 33, "age_20s": 12}),
	}
}

func TestCriteria_Matches(t *testing.T) {
	d := profiled("75001", 5000, 33, 88000, 55, map[string]float64{"race_white": 62, "hispanic": 20})

	tests := []struct {
		name string
		c    Criteria
		want bool
	}{
		{"empty", Criteria{}, true},
		{"age range", Criteria{MinAge: 30, MaxAge: 35}, true},
		{"too young", Criteria{MinAge: 34}, false},
		{"too old", Criteria{MaxAge: 32.9}, false},
		{"income floor", Criteria{MinIncome: 90000}, false},
		{"income ceiling", Criteria{MaxIncome: 88000}, true},
		{"white majority", Criteria{Ethnicity: "White"}, true},
		{"hispanic below threshold", Criteria{Ethnicity: "hispanic"}, false},
		{"unknown ethnicity", Criteria{Ethnicity: "martian"}, false},
		{"college", Criteria{MinCollegePct: 55}, true},
		{"college too low", Criteria{MinCollegePct: 60}, false},
		{"population", Criteria{MinPopulation: 5001}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Matches(d))
		})
	}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))

	s := Summarize(analysisRows())
	assert.InDelta(t, 35.3, s.AvgMedianAge, 1e-9)
	assert.Equal(t, int64(84250), s.AvgMedianIncome)
	assert.InDelta(t, 48.5, s.AvgCollegePct, 1e-9)
}

func TestTopHalf(t *testing.T) {
	resp, err := TopHalf(analysisRows(), model.Filters{})
	require.NoError(t, err)

	assert.Equal(t, int64(100), resp.TotalMarketSize)
	assert.Equal(t, 4, resp.TotalZipCodes)
	assert.Equal(t, 1, resp.TopHalf.ZipCodesCount, "50 of 100 stays within half")
	assert.InDelta(t, 25.0, resp.TopHalf.ZipPercentage, 1e-9)
	require.Len(t, resp.TopHalf.ZipCodes, 1)
	assert.Equal(t, "75001", resp.TopHalf.ZipCodes[0].ZipCode)

	require.Len(t, resp.Top, 4)
	assert.Equal(t, []string{"75001", "78701", "30301", "94016"}, zipsOf(resp.Top), "population desc, ties by zip")
	require.NotNil(t, resp.Top[0].Latitude)
	assert.InDelta(t, 30.0, *resp.Top[0].Latitude, 1e-9)
}

func TestTopHalf_FilterPresence(t *testing.T) {
	resp, err := TopHalf(analysisRows(), model.Filters{"age": "20-29"})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.TotalZipCodes, "zero share in the bucket drops the zip")
	assert.Equal(t, int64(90), resp.TotalMarketSize)

	_, err = TopHalf(analysisRows(), model.Filters{"ethnicity": "pacific"})
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestTopHalf_TopListCapped(t *testing.T) {
	rows := make([]model.Demographics, 30)
	for i := range rows {
		rows[i] = demo(fmt.Sprintf("%05d", i), int64(100+i), nil)
	}
	resp, err := TopHalf(rows, model.Filters{})
	require.NoError(t, err)
	assert.Len(t, resp.Top, topListSize)
	assert.Equal(t, "00029", resp.Top[0].ZipCode)
}

func TestConcentration(t *testing.T) {
	resp, err := Concentration(analysisRows(), Criteria{})
	require.NoError(t, err)

	assert.Equal(t, int64(100), resp.TotalMarketSize)
	assert.Equal(t, 2, resp.EightyTwenty.ZipCodesCount, "50+30 reaches exactly 80")
	assert.InDelta(t, 50.0, resp.EightyTwenty.ZipPercentage, 1e-9)
	assert.Equal(t, []string{"75001", "78701"}, zipsOf(resp.EightyTwenty.ZipCodes))

	resp, err = Concentration(analysisRows(), Criteria{MinIncome: 70000})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.TotalZipCodes)
	assert.InDelta(t, 33.3, resp.Summary.AvgMedianAge, 1e-9)
	assert.Equal(t, int64(95000), resp.Summary.AvgMedianIncome)
}

func TestConcentration_NoMatch(t *testing.T) {
	_, err := Concentration(analysisRows(), Criteria{MinAge: 90})
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestExportRecords(t *testing.T) {
	rows := analysisRows()
	rows[1].MedianAge, rows[1].MedianIncome = 33.26, 88000.4
	rows[1].Shares["race_white"] = 61.25

	recs := ExportRecords(rows, Criteria{Ethnicity: "white"})
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, "75001", r.ZipCode)
	assert.Equal(t, int64(50), r.Population)
	assert.InDelta(t, 33.3, r.MedianAge, 1e-9)
	assert.InDelta(t, 88000.0, r.MedianIncome, 1e-9)
	assert.InDelta(t, 61.3, r.WhitePct, 1e-9)
	assert.InDelta(t, 55.0, r.CollegePct, 1e-9)

	assert.Len(t, ExportRecords(rows, Criteria{}), 4)
	assert.Empty(t, ExportRecords(rows, Criteria{MaxIncome: 1}))
}

func zipsOf(zs []ZipSummary) []string {
	out := make([]string, len(zs))
	for i, z := range zs {
		out[i] = z.ZipCode
	}
	return out
}
