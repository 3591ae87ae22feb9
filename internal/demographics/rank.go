package demographics

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketmap/internal/model"
	"github.com/sells-group/marketmap/internal/summary"
)

// DefaultMapLimit caps how many ranked records are returned for the map.
const DefaultMapLimit = 1000

// ErrNoMatch is returned when no ZIP has a positive target population.
var ErrNoMatch = eris.New("demographics: no zip codes match the selected demographic criteria")

// Ranked is a ZIP paired with its target population.
type Ranked struct {
	model.Demographics
	Target int64
}

// Rank computes targets, drops ZIPs at or below zero and orders the rest
// by target descending. Ties keep ZIP order.
func Rank(rows []model.Demographics, f model.Filters) []Ranked {
	out := make([]Ranked, 0, len(rows))
	for _, d := range rows {
		t := Target(d, f)
		if t <= 0 {
			continue
		}
		out = append(out, Ranked{Demographics: d, Target: t})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target > out[j].Target
		}
		return out[i].ZipCode < out[j].ZipCode
	})
	return out
}

// ZipCodes builds the ranked map response. Aggregates cover every
// matching ZIP; the record list holds the first limit ranked ZIPs that
// have coordinates.
func ZipCodes(rows []model.Demographics, f model.Filters, limit int) (model.ZipCodesResponse, error) {
	if limit <= 0 {
		limit = DefaultMapLimit
	}
	ranked := Rank(rows, f)

	var total int64
	for _, r := range ranked {
		total += r.Target
	}
	if total == 0 {
		return model.ZipCodesResponse{}, ErrNoMatch
	}

	c50 := countWithin(ranked, 0.5*float64(total))
	c80 := countWithin(ranked, 0.8*float64(total))
	top := ranked
	if len(top) > limit {
		top = top[:limit]
	}

	records := make([]model.ZipRecord, 0, len(top))
	for _, r := range top {
		if !r.HasLocation {
			continue
		}
		state := r.State
		if state == "" {
			state = "Unknown"
		}
		records = append(records, model.ZipRecord{
			ZipCode:    r.ZipCode,
			Latitude:   r.Latitude,
			Longitude:  r.Longitude,
			Population: r.Target,
			State:      state,
			City:       r.City,
		})
	}

	return model.ZipCodesResponse{
		ZipCodes:               records,
		TotalZipCodes:          int64(len(records)),
		TotalPopulation:        total,
		FiftyPercentPopulation: model.Int64Ptr(total / 2),
		Top50PercentZipCount:   model.Int64Ptr(c50),
		Top80PercentZipCount:   model.Int64Ptr(c80),
		Top1000ZipCount:        model.Int64Ptr(int64(len(top))),
		TotalMatchingZipCodes:  model.Int64Ptr(int64(len(ranked))),
		Filters:                f.Clone(),
	}, nil
}

// countWithin counts leading ranked ZIPs whose running total stays at or
// below threshold.
func countWithin(ranked []Ranked, threshold float64) int64 {
	var cum float64
	var n int64
	for _, r := range ranked {
		cum += float64(r.Target)
		if cum > threshold {
			break
		}
		n++
	}
	return n
}

// Table builds the analysis table over every matching ZIP. perCapita is
// normalised, so zero or negative values fall back to the default.
func Table(rows []model.Demographics, f model.Filters, perCapita float64) (model.TableResponse, error) {
	ranked := Rank(rows, f)
	if len(ranked) == 0 {
		return model.TableResponse{}, ErrNoMatch
	}
	pc := summary.NormalizePerCapitaValue(perCapita)

	resp := model.TableResponse{
		TableData:     make([]model.TableRow, 0, len(ranked)),
		TotalZipCodes: int64(len(ranked)),
	}
	for _, r := range ranked {
		row := model.NewTableRow(r.ZipCode, r.City, r.State, r.Population, r.Target, pc)
		resp.TableData = append(resp.TableData, row)
		resp.TotalMarketPotential += row.MarketPotential
	}
	return resp, nil
}

// Profile is the per-ZIP demographic breakdown.
type Profile struct {
	ZipCode      string             `json:"zip_code"`
	City         string             `json:"city,omitempty"`
	State        string             `json:"state,omitempty"`
	Population   int64              `json:"population"`
	MedianAge    float64            `json:"median_age"`
	MedianIncome int64              `json:"median_income"`
	Ethnicity    map[string]float64 `json:"ethnicity"`
	Education    map[string]float64 `json:"education"`
}

// NewProfile summarises one ZIP. Percentages are rounded to one decimal.
func NewProfile(d model.Demographics) Profile {
	return Profile{
		ZipCode:      d.ZipCode,
		City:         d.City,
		State:        d.State,
		Population:   d.Population,
		MedianAge:    round1(d.MedianAge),
		MedianIncome: int64(d.MedianIncome),
		Ethnicity: map[string]float64{
			"white":    round1(d.Share("race_white")),
			"black":    round1(d.Share("race_black")),
			"hispanic": round1(d.Share("hispanic")),
			"asian":    round1(d.Share("race_asian")),
		},
		Education: map[string]float64{
			"college_degree_pct": round1(d.Share("education_college_or_above")),
		},
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
