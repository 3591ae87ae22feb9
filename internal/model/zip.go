package model

import (
	"math"
	"sort"
	"strings"
)

// ZipRecord is one ranked ZIP code as delivered by the data service.
// Population is the target population for the active filters.
type ZipRecord struct {
	ZipCode    string  `json:"zipCode"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Population int64   `json:"population"`
	State      string  `json:"state"`
	City       string  `json:"city,omitempty"`
}

// ValidCoordinate reports whether the record can be placed on a map.
func (z ZipRecord) ValidCoordinate() bool {
	if math.IsNaN(z.Latitude) || math.IsNaN(z.Longitude) ||
		math.IsInf(z.Latitude, 0) || math.IsInf(z.Longitude, 0) {
		return false
	}
	return z.Latitude >= -90 && z.Latitude <= 90 && z.Longitude >= -180 && z.Longitude <= 180
}

// Filter wildcard sentinels.
const (
	FilterAll  = "all"
	FilterBoth = "both"
)

// Known filter keys.
const (
	FilterGender    = "gender"
	FilterEthnicity = "ethnicity"
	FilterAge       = "age"
	FilterIncome    = "income"
)

// Filters maps a filter key to the selected value or a wildcard.
type Filters map[string]string

// FilterPair is a single active filter selection.
type FilterPair struct {
	Key   string
	Value string
}

// IsWildcard reports whether v places no constraint on its filter.
func IsWildcard(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "" || v == FilterAll || v == FilterBoth
}

// Active returns the non-wildcard selections sorted by key.
func (f Filters) Active() []FilterPair {
	var out []FilterPair
	for k, v := range f {
		if IsWildcard(v) {
			continue
		}
		out = append(out, FilterPair{Key: k, Value: strings.TrimSpace(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Value returns the selection for key, or "" when unset or wildcard.
func (f Filters) Value(key string) string {
	v := f[key]
	if IsWildcard(v) {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(v))
}

// Clone returns an independent copy.
func (f Filters) Clone() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// CoverageResult holds how many top records reach 50% and 80% of the
// total population. ZipsFor80Percent is never below ZipsFor50Percent.
type CoverageResult struct {
	TotalPopulation  int64 `json:"totalPopulation"`
	ZipsFor50Percent int64 `json:"zipsFor50Percent"`
	ZipsFor80Percent int64 `json:"zipsFor80Percent"`
}
