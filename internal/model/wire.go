package model

// ZipCodesRequest is the body of POST /zip-codes.
type ZipCodesRequest struct {
	Filters Filters `json:"filters"`
}

// ZipCodesResponse is the ranked record set plus optional aggregates.
// Count fields are pointers so an absent value is distinguishable from 0.
type ZipCodesResponse struct {
	ZipCodes               []ZipRecord `json:"zipCodes"`
	TotalZipCodes          int64       `json:"totalZipCodes"`
	TotalPopulation        int64       `json:"totalPopulation"`
	FiftyPercentPopulation *int64      `json:"fiftyPercentPopulation,omitempty"`
	Top50PercentZipCount   *int64      `json:"top50PercentZipCount,omitempty"`
	Top80PercentZipCount   *int64      `json:"top80PercentZipCount,omitempty"`
	Top1000ZipCount        *int64      `json:"top1000ZipCount,omitempty"`
	TotalMatchingZipCodes  *int64      `json:"totalMatchingZipCodes,omitempty"`
	Filters                Filters     `json:"filters,omitempty"`
}

// TableRequest is the body of POST /zip-codes-table.
type TableRequest struct {
	Filters           Filters `json:"filters"`
	YearlyConsumption float64 `json:"yearlyConsumption"`
}

// TableResponse is the derived table for a filter set.
type TableResponse struct {
	TableData            []TableRow `json:"tableData"`
	TotalZipCodes        int64      `json:"totalZipCodes"`
	TotalMarketPotential float64    `json:"totalMarketPotential"`
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }
