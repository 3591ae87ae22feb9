// Package summary derives display aggregates from a coverage result.
package summary

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/marketmap/internal/model"
)

// DefaultPerCapita is the yearly value per targeted person used when the
// input is missing or unusable.
const DefaultPerCapita = 100.0

// Metrics is the human-facing summary shown above the map.
type Metrics struct {
	TotalPopulation  int64   `json:"totalPopulation"`
	PerCapita        float64 `json:"perCapita"`
	MarketSize       float64 `json:"marketSize"`
	MarketSizeText   string  `json:"marketSizeText"`
	PopulationText   string  `json:"populationText"`
	ZipsFor50Percent int64   `json:"zipsFor50Percent"`
	ZipsFor80Percent int64   `json:"zipsFor80Percent"`
}

// NormalizePerCapita parses raw user input, falling back to DefaultPerCapita.
func NormalizePerCapita(raw string) float64 {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return DefaultPerCapita
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return DefaultPerCapita
	}
	return NormalizePerCapitaValue(v)
}

// NormalizePerCapitaValue clamps v to a positive finite value.
func NormalizePerCapitaValue(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return DefaultPerCapita
	}
	return v
}

// Compute sizes the market for cov at perCapita.
func Compute(cov model.CoverageResult, perCapita float64) Metrics {
	pc := NormalizePerCapitaValue(perCapita)
	size := float64(cov.TotalPopulation) * pc
	return Metrics{
		TotalPopulation:  cov.TotalPopulation,
		PerCapita:        pc,
		MarketSize:       size,
		MarketSizeText:   FormatCurrency(size),
		PopulationText:   FormatCount(float64(cov.TotalPopulation)),
		ZipsFor50Percent: cov.ZipsFor50Percent,
		ZipsFor80Percent: cov.ZipsFor80Percent,
	}
}

// FormatCurrency renders amount with a magnitude suffix: $950, $12.3K,
// $230.0M, $1.2B.
func FormatCurrency(amount float64) string {
	return "$" + FormatCount(amount)
}

// FormatCount applies the FormatCurrency magnitude rule without the dollar
// sign. The suffix is chosen after rounding, so 999,950 renders 1.0M.
func FormatCount(n float64) string {
	if math.IsNaN(n) || n <= 0 {
		return "0"
	}
	if r := math.Round(n); r < 1e3 {
		return strconv.FormatFloat(r, 'f', 0, 64)
	}
	for _, u := range magnitudes {
		v := math.Round(n/u.scale*10) / 10
		if v < 1e3 || u.suffix == "B" {
			return strconv.FormatFloat(v, 'f', 1, 64) + u.suffix
		}
	}
	return "0"
}

var magnitudes = []struct {
	scale  float64
	suffix string
}{
	{1e3, "K"},
	{1e6, "M"},
	{1e9, "B"},
}

var printer = message.NewPrinter(language.English)

// Thousands renders n with grouping separators (1,234,567).
func Thousands(n int64) string {
	return printer.Sprintf("%d", n)
}

// Money renders amount as whole dollars with grouping separators.
func Money(amount float64) string {
	return printer.Sprintf("$%.0f", amount)
}
