package dashboard

import (
	"github.com/sells-group/marketmap/internal/coverage"
	"github.com/sells-group/marketmap/internal/dataservice"
	"github.com/sells-group/marketmap/internal/model"
	"github.com/sells-group/marketmap/internal/pagination"
	"github.com/sells-group/marketmap/internal/render"
	"github.com/sells-group/marketmap/internal/summary"
)

// ViewMode selects the map or the table.
type ViewMode string

// View modes.
const (
	ViewMap   ViewMode = "map"
	ViewTable ViewMode = "table"
)

// Snapshot is the complete dashboard state. Snapshots are values: a
// reducer returns a new one and never mutates the slices or maps of its
// input.
type Snapshot struct {
	Filters   model.Filters
	PerCapita float64

	Records  []model.ZipRecord
	Rows     []model.TableRow
	Source   dataservice.Source
	Coverage model.CoverageResult
	Metrics  summary.Metrics
	Page     pagination.State
	View     ViewMode

	// HasResults is false until a fetch returns rows; the summary and
	// table stay hidden while it is false.
	HasResults bool
	Generating bool
	Generation string
	Progress   render.Progress
	LastRun    *render.RunResult
	LastError  string
}

func initial(opts Options) Snapshot {
	return Snapshot{
		Filters:   model.Filters{},
		PerCapita: summary.NormalizePerCapitaValue(opts.PerCapita),
		Page:      pagination.New(0, opts.PageSize),
		View:      ViewMap,
	}
}

func withFilter(s Snapshot, key, value string) Snapshot {
	f := s.Filters.Clone()
	if model.IsWildcard(value) {
		delete(f, key)
	} else {
		f[key] = value
	}
	s.Filters = f
	return s
}

// withPerCapita recomputes the summary and market potentials from the
// cached rows without a fetch.
func withPerCapita(s Snapshot, pc float64) Snapshot {
	s.PerCapita = summary.NormalizePerCapitaValue(pc)
	s.Metrics = summary.Compute(s.Coverage, s.PerCapita)
	s.Rows = priced(s.Rows, s.PerCapita)
	return s
}

// priced returns copies of rows with market potential at perCapita.
func priced(rows []model.TableRow, perCapita float64) []model.TableRow {
	if len(rows) == 0 {
		return rows
	}
	out := make([]model.TableRow, len(rows))
	for i, r := range rows {
		out[i] = model.NewTableRow(r.ZipCode, r.City, r.State, r.TotalPopulation, r.TargetAudience, perCapita)
	}
	return out
}

func withPage(s Snapshot, move func(pagination.State) (pagination.State, bool)) Snapshot {
	s.Page, _ = move(s.Page)
	return s
}

func withPageSize(s Snapshot, size int) Snapshot {
	s.Page = s.Page.WithPageSize(size)
	return s
}

func toggled(s Snapshot) Snapshot {
	if s.View == ViewTable {
		s.View = ViewMap
	} else {
		s.View = ViewTable
	}
	return s
}

func started(s Snapshot, gen string) Snapshot {
	s.Generating = true
	s.Generation = gen
	s.Progress = render.Progress{}
	s.LastError = ""
	return s
}

// fetched replaces the record and row sets wholesale. Rows are repriced
// at the current per-capita value, which may have changed while the
// fetch was in flight.
func fetched(s Snapshot, zips model.ZipCodesResponse, table model.TableResponse, src dataservice.Source) Snapshot {
	s.Records = zips.ZipCodes
	s.Rows = priced(table.TableData, s.PerCapita)
	s.Source = src
	s.Coverage = coverage.Resolve(zips)
	s.Metrics = summary.Compute(s.Coverage, s.PerCapita)
	s.Page = s.Page.WithRows(len(s.Rows))
	s.HasResults = len(s.Rows) > 0 || len(s.Records) > 0
	s.Progress = render.Progress{Total: len(s.Records)}
	return s
}

func progressed(s Snapshot, p render.Progress) Snapshot {
	s.Progress = p
	return s
}

func finished(s Snapshot, res *render.RunResult, err error) Snapshot {
	s.Generating = false
	s.LastRun = res
	if err != nil {
		s.LastError = err.Error()
	}
	return s
}

// View is the client-facing projection of a Snapshot: the current page
// of rows rather than the full set.
type View struct {
	Filters    model.Filters      `json:"filters"`
	PerCapita  float64            `json:"perCapita"`
	Source     string             `json:"source,omitempty"`
	Mode       ViewMode           `json:"view"`
	HasResults bool               `json:"hasResults"`
	Generating bool               `json:"generating"`
	Progress   render.Progress    `json:"progress"`
	Percent    int                `json:"percent"`
	Summary    *summary.Metrics   `json:"summary,omitempty"`
	Totals     *model.TableTotals `json:"totals,omitempty"`
	Page       pagination.State   `json:"page"`
	TotalPages int                `json:"totalPages"`
	Window     []int              `json:"window"`
	HasNext    bool               `json:"hasNext"`
	HasPrev    bool               `json:"hasPrevious"`
	Rows       []model.TableRow   `json:"rows"`
	Markers    int                `json:"markers"`
	LastError  string             `json:"lastError,omitempty"`
}

// ViewOf projects s with a page window of up to window links.
func ViewOf(s Snapshot, window int) View {
	v := View{
		Filters:    s.Filters,
		PerCapita:  s.PerCapita,
		Source:     string(s.Source),
		Mode:       s.View,
		HasResults: s.HasResults,
		Generating: s.Generating,
		Progress:   s.Progress,
		Percent:    s.Progress.Percent(),
		Page:       s.Page,
		TotalPages: s.Page.TotalPages(),
		Window:     s.Page.Window(window),
		HasNext:    s.Page.HasNext(),
		HasPrev:    s.Page.HasPrevious(),
		Rows:       pagination.Slice(s.Rows, s.Page),
		Markers:    len(s.Records),
		LastError:  s.LastError,
	}
	if s.HasResults {
		m := s.Metrics
		t := model.Totals(s.Rows)
		v.Summary, v.Totals = &m, &t
	}
	if v.Rows == nil {
		v.Rows = []model.TableRow{}
	}
	return v
}
