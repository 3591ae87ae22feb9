package model

// TableRow is one row of the ZIP analysis table.
type TableRow struct {
	ZipCode               string  `json:"zipCode"`
	City                  string  `json:"city"`
	State                 string  `json:"state"`
	TotalPopulation       int64   `json:"totalPopulation"`
	TargetAudience        int64   `json:"targetAudience"`
	AudienceConcentration float64 `json:"audienceConcentration"`
	MarketPotential       float64 `json:"marketPotential"`
}

// NewTableRow derives concentration and market potential from the raw counts.
func NewTableRow(zip, city, state string, total, target int64, perCapita float64) TableRow {
	return TableRow{
		ZipCode:               zip,
		City:                  city,
		State:                 state,
		TotalPopulation:       total,
		TargetAudience:        target,
		AudienceConcentration: Concentration(target, total),
		MarketPotential:       float64(target) * perCapita,
	}
}

// Concentration returns target as a percentage of total, 0 when total is 0.
func Concentration(target, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(target) / float64(total)
}

// TableTotals aggregates a full row set.
type TableTotals struct {
	Rows                  int     `json:"rows"`
	TotalPopulation       int64   `json:"totalPopulation"`
	TargetAudience        int64   `json:"targetAudience"`
	AudienceConcentration float64 `json:"audienceConcentration"`
	MarketPotential       float64 `json:"marketPotential"`
}

// Totals sums the rows. Concentration is computed over the sums.
func Totals(rows []TableRow) TableTotals {
	t := TableTotals{Rows: len(rows)}
	for _, r := range rows {
		t.TotalPopulation += r.TotalPopulation
		t.TargetAudience += r.TargetAudience
		t.MarketPotential += r.MarketPotential
	}
	t.AudienceConcentration = Concentration(t.TargetAudience, t.TotalPopulation)
	return t
}
