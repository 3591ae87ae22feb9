package dataservice

import (
	_ "embed"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/marketmap/internal/model"
)

//go:embed sample.yaml
var sampleYAML []byte

type sampleRecord struct {
	ZipCode         string  `yaml:"zipCode"`
	City            string  `yaml:"city"`
	State           string  `yaml:"state"`
	Latitude        float64 `yaml:"latitude"`
	Longitude       float64 `yaml:"longitude"`
	Population      int64   `yaml:"population"`
	TotalPopulation int64   `yaml:"totalPopulation"`
}

type sampleSubset struct {
	Filter                 string `yaml:"filter"`
	Value                  string `yaml:"value"`
	Take                   int    `yaml:"take"`
	TotalPopulation        int64  `yaml:"totalPopulation"`
	FiftyPercentPopulation int64  `yaml:"fiftyPercentPopulation"`
}

type sampleSet struct {
	TotalPopulation        int64          `yaml:"totalPopulation"`
	FiftyPercentPopulation int64          `yaml:"fiftyPercentPopulation"`
	Records                []sampleRecord `yaml:"records"`
	Subsets                []sampleSubset `yaml:"subsets"`
}

var (
	sampleOnce sync.Once
	sample     sampleSet
	sampleErr  error
)

func loadSample() (sampleSet, error) {
	sampleOnce.Do(func() {
		if err := yaml.Unmarshal(sampleYAML, &sample); err != nil {
			sampleErr = eris.Wrap(err, "dataservice: parse sample data")
		}
	})
	return sample, sampleErr
}

// pick returns the records and totals for filters.
func (s sampleSet) pick(f model.Filters) ([]sampleRecord, int64, int64) {
	for _, sub := range s.Subsets {
		if f.Value(sub.Filter) == sub.Value {
			n := min(sub.Take, len(s.Records))
			return s.Records[:n], sub.TotalPopulation, sub.FiftyPercentPopulation
		}
	}
	return s.Records, s.TotalPopulation, s.FiftyPercentPopulation
}

// SampleZipCodes returns the bundled response for filters.
func SampleZipCodes(f model.Filters) (model.ZipCodesResponse, error) {
	s, err := loadSample()
	if err != nil {
		return model.ZipCodesResponse{}, err
	}
	recs, total, half := s.pick(f)
	out := model.ZipCodesResponse{
		ZipCodes:               make([]model.ZipRecord, len(recs)),
		TotalZipCodes:          int64(len(recs)),
		TotalPopulation:        total,
		FiftyPercentPopulation: model.Int64Ptr(half),
		Filters:                f.Clone(),
	}
	for i, r := range recs {
		out.ZipCodes[i] = model.ZipRecord{
			ZipCode:    r.ZipCode,
			Latitude:   r.Latitude,
			Longitude:  r.Longitude,
			Population: r.Population,
			State:      r.State,
			City:       r.City,
		}
	}
	return out, nil
}

// SampleTable returns the bundled table for filters at perCapita.
func SampleTable(f model.Filters, perCapita float64) (model.TableResponse, error) {
	s, err := loadSample()
	if err != nil {
		return model.TableResponse{}, err
	}
	recs, _, _ := s.pick(f)
	out := model.TableResponse{TableData: make([]model.TableRow, len(recs)), TotalZipCodes: int64(len(recs))}
	for i, r := range recs {
		row := model.NewTableRow(r.ZipCode, r.City, r.State, r.TotalPopulation, r.Population, perCapita)
		out.TableData[i] = row
		out.TotalMarketPotential += row.MarketPotential
	}
	return out, nil
}
