package demographics

import (
	"sort"

	"github.com/sells-group/marketmap/internal/model"
)

// bucketColumns maps filter key → selected value → share columns summed
// for that bucket.
var bucketColumns = map[string]map[string][]string{
	model.FilterAge: {
		"under20": {"age_under_10", "age_10_to_19"},
		"20-29":   {"age_20s"},
		"30-39":   {"age_30s"},
		"40-49":   {"age_40s"},
		"50-59":   {"age_50s"},
		"60plus":  {"age_60s", "age_70s", "age_over_80"},
	},
	model.FilterEthnicity: {
		"white":    {"race_white"},
		"black":    {"race_black"},
		"hispanic": {"hispanic"},
		"native":   {"race_native"},
		"asian":    {"race_asian"},
		"pacific":  {"race_pacific"},
	},
	model.FilterIncome: {
		"under50k":  incomeColumns[:9],
		"50k-75k":   {"income_household_50k_to_60k", "income_household_60k_to_75k"},
		"75k-100k":  {"income_household_75k_to_100k"},
		"100k-150k": {"income_household_100k_to_125k", "income_household_125k_to_150k"},
		"150k-200k": {"income_household_150k_to_200k"},
		"over200k":  {"income_household_over_200k"},
	},
	model.FilterGender: {
		"male":   {"male"},
		"female": {"female"},
	},
}

// Fallback share when the dataset carries no gender columns at all.
const defaultGenderShare = 50.0

// Multiplier returns the fraction of d's population matching every active
// filter. Unknown keys and unknown values yield 0.
func Multiplier(d model.Demographics, f model.Filters) float64 {
	m := 1.0
	for _, p := range f.Active() {
		buckets, ok := bucketColumns[p.Key]
		if !ok {
			return 0
		}
		cols, ok := buckets[f.Value(p.Key)]
		if !ok {
			return 0
		}
		share := d.SumShares(cols...)
		if p.Key == model.FilterGender && !hasGenderColumns(d) {
			share = defaultGenderShare
		}
		m *= share / 100
	}
	return m
}

// Target is d's population scaled by the filter multiplier, truncated.
func Target(d model.Demographics, f model.Filters) int64 {
	return int64(float64(d.Population) * Multiplier(d, f))
}

func hasGenderColumns(d model.Demographics) bool {
	_, m := d.Shares["male"]
	_, fm := d.Shares["female"]
	return m || fm
}

// Values lists the accepted selections for a filter key.
func Values(key string) []string {
	b := bucketColumns[key]
	out := make([]string, 0, len(b))
	for v := range b {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
