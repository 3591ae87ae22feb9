package model

// Demographics is one ZIP row of the ACS dataset. Shares are percentages
// (0–100) keyed by normalised spreadsheet column, e.g. "age_20s",
// "income_household_75k_to_100k", "race_white", "hispanic", "female".
type Demographics struct {
	ZipCode      string             `json:"zip_code"`
	City         string             `json:"city,omitempty"`
	State        string             `json:"state"`
	Latitude     float64            `json:"latitude"`
	Longitude    float64            `json:"longitude"`
	HasLocation  bool               `json:"has_location"`
	Population   int64              `json:"population"`
	MedianAge    float64            `json:"median_age"`
	MedianIncome float64            `json:"median_income"`
	Shares       map[string]float64 `json:"shares"`
}

// Share returns the named percentage, 0 when the column is missing.
func (d Demographics) Share(col string) float64 {
	if d.Shares == nil {
		return 0
	}
	return d.Shares[col]
}

// SumShares adds the named percentages.
func (d Demographics) SumShares(cols ...string) float64 {
	var s float64
	for _, c := range cols {
		s += d.Share(c)
	}
	return s
}
