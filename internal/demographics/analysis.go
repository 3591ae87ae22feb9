package demographics

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/marketmap/internal/model"
)

// topListSize is the length of the "top ZIPs" list in analysis responses.
const topListSize = 20

const collegeColumn = "education_college_or_above"

// Criteria narrows the dataset by derived medians and shares. Zero fields
// are unset.
type Criteria struct {
	MinAge    float64 `json:"min_age,omitempty"`
	MaxAge    float64 `json:"max_age,omitempty"`
	MinIncome float64 `json:"min_income,omitempty"`
	MaxIncome float64 `json:"max_income,omitempty"`
	// Ethnicity keeps ZIPs where the group reaches its majority threshold:
	// white 50%, black 30%, hispanic 30%, asian 15%.
	Ethnicity     string  `json:"ethnicity,omitempty"`
	MinCollegePct float64 `json:"min_college_pct,omitempty"`
	MinPopulation int64   `json:"min_population,omitempty"`
}

// ethnicityThresholds maps a Criteria ethnicity to its share column and
// minimum percentage.
var ethnicityThresholds = map[string]struct {
	column string
	min    float64
}{
	"white":    {"race_white", 50},
	"black":    {"race_black", 30},
	"hispanic": {"hispanic", 30},
	"asian":    {"race_asian", 15},
}

// Matches reports whether d satisfies every set criterion. An ethnicity
// without a threshold matches nothing.
func (c Criteria) Matches(d model.Demographics) bool {
	switch {
	case c.MinAge != 0 && d.MedianAge < c.MinAge,
		c.MaxAge != 0 && d.MedianAge > c.MaxAge,
		c.MinIncome != 0 && d.MedianIncome < c.MinIncome,
		c.MaxIncome != 0 && d.MedianIncome > c.MaxIncome,
		c.MinCollegePct != 0 && d.Share(collegeColumn) < c.MinCollegePct,
		c.MinPopulation != 0 && d.Population < c.MinPopulation:
		return false
	}
	if e := strings.ToLower(strings.TrimSpace(c.Ethnicity)); e != "" {
		th, ok := ethnicityThresholds[e]
		if !ok || d.Share(th.column) < th.min {
			return false
		}
	}
	return true
}

// Select returns the rows matching c in dataset order.
func Select(rows []model.Demographics, c Criteria) []model.Demographics {
	out := make([]model.Demographics, 0, len(rows))
	for _, d := range rows {
		if c.Matches(d) {
			out = append(out, d)
		}
	}
	return out
}

// Summary averages the derived demographics of a ZIP set.
type Summary struct {
	AvgMedianAge    float64 `json:"avg_median_age"`
	AvgMedianIncome int64   `json:"avg_median_income"`
	AvgCollegePct   float64 `json:"avg_college_degree_pct"`
}

// Summarize averages median age, median income and college share over
// rows. An empty set yields zeros.
func Summarize(rows []model.Demographics) Summary {
	if len(rows) == 0 {
		return Summary{}
	}
	ages := make([]float64, len(rows))
	incomes := make([]float64, len(rows))
	college := make([]float64, len(rows))
	for i, d := range rows {
		ages[i] = d.MedianAge
		incomes[i] = d.MedianIncome
		college[i] = d.Share(collegeColumn)
	}
	return Summary{
		AvgMedianAge:    round1(stat.Mean(ages, nil)),
		AvgMedianIncome: int64(stat.Mean(incomes, nil)),
		AvgCollegePct:   round1(stat.Mean(college, nil)),
	}
}

// ZipSummary is one ZIP in an analysis listing.
type ZipSummary struct {
	ZipCode      string   `json:"zip_code"`
	Population   int64    `json:"population"`
	MedianAge    float64  `json:"median_age"`
	MedianIncome int64    `json:"median_income"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
}

func newZipSummary(d model.Demographics) ZipSummary {
	z := ZipSummary{
		ZipCode:      d.ZipCode,
		Population:   d.Population,
		MedianAge:    round1(d.MedianAge),
		MedianIncome: int64(d.MedianIncome),
	}
	if d.HasLocation {
		lat, lon := d.Latitude, d.Longitude
		z.Latitude, z.Longitude = &lat, &lon
	}
	return z
}

func zipSummaries(rows []model.Demographics) []ZipSummary {
	out := make([]ZipSummary, len(rows))
	for i, d := range rows {
		out[i] = newZipSummary(d)
	}
	return out
}

// Segment is the leading run of ZIPs, by population, whose running total
// stays within a share of the cohort.
type Segment struct {
	ZipCodesCount int `json:"zip_codes_count"`
	// ZipPercentage is the segment's share of the cohort's ZIP count.
	ZipPercentage float64      `json:"population_percentage"`
	ZipCodes      []ZipSummary `json:"zip_codes"`
}

// TopHalfResponse answers which ZIPs hold half of a filtered cohort.
type TopHalfResponse struct {
	TotalMarketSize int64        `json:"total_market_size"`
	TotalZipCodes   int          `json:"total_zip_codes"`
	TopHalf         Segment      `json:"top_50_percent"`
	Top             []ZipSummary `json:"top_20"`
	Summary         Summary      `json:"demographic_summary"`
}

// TopHalf keeps ZIPs with a non-zero share in every active filter bucket,
// orders them by population and returns the leading ZIPs holding at most
// half of the cohort's population.
func TopHalf(rows []model.Demographics, f model.Filters) (TopHalfResponse, error) {
	cohort := make([]model.Demographics, 0, len(rows))
	for _, d := range rows {
		if Multiplier(d, f) > 0 {
			cohort = append(cohort, d)
		}
	}
	sorted, total := byPopulation(cohort)
	if total == 0 {
		return TopHalfResponse{}, ErrNoMatch
	}
	return TopHalfResponse{
		TotalMarketSize: total,
		TotalZipCodes:   len(sorted),
		TopHalf:         segment(sorted, 0.5*float64(total)),
		Top:             zipSummaries(head(sorted, topListSize)),
		Summary:         Summarize(cohort),
	}, nil
}

// ConcentrationResponse is the 80/20 view of a cohort.
type ConcentrationResponse struct {
	TotalMarketSize int64        `json:"total_market_size"`
	TotalZipCodes   int          `json:"total_zip_codes"`
	Top             []ZipSummary `json:"top_zip_codes"`
	EightyTwenty    Segment      `json:"eighty_twenty_analysis"`
	Summary         Summary      `json:"demographic_summary"`
}

// Concentration selects rows by c and reports how few ZIPs hold 80% of
// the selected population.
func Concentration(rows []model.Demographics, c Criteria) (ConcentrationResponse, error) {
	cohort := Select(rows, c)
	sorted, total := byPopulation(cohort)
	if total == 0 {
		return ConcentrationResponse{}, ErrNoMatch
	}
	return ConcentrationResponse{
		TotalMarketSize: total,
		TotalZipCodes:   len(sorted),
		Top:             zipSummaries(head(sorted, topListSize)),
		EightyTwenty:    segment(sorted, 0.8*float64(total)),
		Summary:         Summarize(cohort),
	}, nil
}

// ExportRecord is a flat, display-rounded ZIP row. Percentages are 0–100.
type ExportRecord struct {
	ZipCode      string  `json:"zip_code"`
	City         string  `json:"city,omitempty"`
	State        string  `json:"state"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Population   int64   `json:"population"`
	MedianAge    float64 `json:"median_age"`
	MedianIncome float64 `json:"median_income"`
	WhitePct     float64 `json:"white_pct"`
	BlackPct     float64 `json:"black_pct"`
	HispanicPct  float64 `json:"hispanic_pct"`
	AsianPct     float64 `json:"asian_pct"`
	CollegePct   float64 `json:"college_degree_pct"`
}

// ExportRecords flattens the rows matching c in dataset order.
func ExportRecords(rows []model.Demographics, c Criteria) []ExportRecord {
	sel := Select(rows, c)
	out := make([]ExportRecord, len(sel))
	for i, d := range sel {
		out[i] = ExportRecord{
			ZipCode:      d.ZipCode,
			City:         d.City,
			State:        d.State,
			Latitude:     d.Latitude,
			Longitude:    d.Longitude,
			Population:   d.Population,
			MedianAge:    round1(d.MedianAge),
			MedianIncome: math.Round(d.MedianIncome),
			WhitePct:     round1(d.Share("race_white")),
			BlackPct:     round1(d.Share("race_black")),
			HispanicPct:  round1(d.Share("hispanic")),
			AsianPct:     round1(d.Share("race_asian")),
			CollegePct:   round1(d.Share(collegeColumn)),
		}
	}
	return out
}

// byPopulation returns a copy of rows ordered by population descending
// (ties by ZIP) and their population total.
func byPopulation(rows []model.Demographics) ([]model.Demographics, int64) {
	out := make([]model.Demographics, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Population != out[j].Population {
			return out[i].Population > out[j].Population
		}
		return out[i].ZipCode < out[j].ZipCode
	})
	var total int64
	for _, d := range out {
		if d.Population > 0 {
			total += d.Population
		}
	}
	return out, total
}

// segment takes leading rows while the running population stays at or
// below threshold.
func segment(sorted []model.Demographics, threshold float64) Segment {
	var cum float64
	n := 0
	for _, d := range sorted {
		cum += float64(d.Population)
		if cum > threshold {
			break
		}
		n++
	}
	s := Segment{ZipCodesCount: n, ZipCodes: zipSummaries(sorted[:n])}
	if len(sorted) > 0 {
		s.ZipPercentage = round1(float64(n) / float64(len(sorted)) * 100)
	}
	return s
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
