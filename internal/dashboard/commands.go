package dashboard

import (
	"bytes"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"github.com/sells-group/marketmap/internal/dataservice"
	"github.com/sells-group/marketmap/internal/model"
	"github.com/sells-group/marketmap/internal/pagination"
	"github.com/sells-group/marketmap/internal/render"
	"github.com/sells-group/marketmap/internal/summary"
)

// Command is a user action applied by the dashboard owner.
type Command interface {
	apply(d *Dashboard, s Snapshot) (Snapshot, error)
}

// Generate fetches records and rows for the current filters and reveals
// them on the surface.
type Generate struct{}

// SetFilter selects Value for Key. A wildcard clears the filter.
type SetFilter struct {
	Key   string
	Value string
}

// SetPerCapita sets the yearly value per targeted person.
type SetPerCapita struct {
	Value float64
}

// SetPageSize changes rows per page and returns to page 1.
type SetPageSize struct {
	Size int
}

// GoToPage moves to Page, clamped to the valid range.
type GoToPage struct {
	Page int
}

// Page navigation.
type (
	NextPage     struct{}
	PreviousPage struct{}
	FirstPage    struct{}
	LastPage     struct{}
)

// ToggleView switches between the map and the table.
type ToggleView struct{}

func (Generate) apply(d *Dashboard, s Snapshot) (Snapshot, error) {
	if s.Generating {
		return s, ErrGenerateInProgress
	}
	next := started(s, d.newID())
	d.startGeneration(next.Generation, next.Filters.Clone(), next.PerCapita)
	return next, nil
}

func (c SetFilter) apply(_ *Dashboard, s Snapshot) (Snapshot, error) {
	key := strings.ToLower(strings.TrimSpace(c.Key))
	if key == "" {
		return s, eris.New("dashboard: filter key is required")
	}
	return withFilter(s, key, strings.TrimSpace(c.Value)), nil
}

func (c SetPerCapita) apply(_ *Dashboard, s Snapshot) (Snapshot, error) {
	return withPerCapita(s, c.Value), nil
}

func (c SetPageSize) apply(_ *Dashboard, s Snapshot) (Snapshot, error) {
	if c.Size <= 0 {
		return s, eris.Errorf("dashboard: invalid page size %d", c.Size)
	}
	return withPageSize(s, c.Size), nil
}

func (c GoToPage) apply(_ *Dashboard, s Snapshot) (Snapshot, error) {
	return withPage(s, func(p pagination.State) (pagination.State, bool) { return p.GoTo(c.Page) }), nil
}

func (NextPage) apply(_ *Dashboard, s Snapshot) (Snapshot, error) {
	return withPage(s, pagination.State.Next), nil
}

func (PreviousPage) apply(_ *Dashboard, s Snapshot) (Snapshot, error) {
	return withPage(s, pagination.State.Previous), nil
}

func (FirstPage) apply(_ *Dashboard, s Snapshot) (Snapshot, error) {
	return withPage(s, pagination.State.First), nil
}

func (LastPage) apply(_ *Dashboard, s Snapshot) (Snapshot, error) {
	return withPage(s, pagination.State.Last), nil
}

func (ToggleView) apply(_ *Dashboard, s Snapshot) (Snapshot, error) {
	return toggled(s), nil
}

// Messages posted back by the generation worker. Each carries its
// generation id and is ignored when stale.

type fetchedMsg struct {
	gen   string
	zips  model.ZipCodesResponse
	table model.TableResponse
	src   dataservice.Source
	err   error
}

func (m fetchedMsg) apply(_ *Dashboard, s Snapshot) (Snapshot, error) {
	if m.gen != s.Generation || !s.Generating {
		return s, nil
	}
	if m.err != nil {
		return finished(s, nil, m.err), nil
	}
	return fetched(s, m.zips, m.table, m.src), nil
}

type progressMsg struct {
	gen string
	p   render.Progress
}

func (m progressMsg) apply(_ *Dashboard, s Snapshot) (Snapshot, error) {
	if m.gen != s.Generation || !s.Generating {
		return s, nil
	}
	return progressed(s, m.p), nil
}

type doneMsg struct {
	gen string
	res *render.RunResult
	err error
}

func (m doneMsg) apply(_ *Dashboard, s Snapshot) (Snapshot, error) {
	if m.gen != s.Generation || !s.Generating {
		return s, nil
	}
	return finished(s, m.res, m.err), nil
}

// wireCommand is the JSON form accepted by ParseCommand.
type wireCommand struct {
	Type  string          `json:"type"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
	Size  int             `json:"size"`
	Page  int             `json:"page"`
}

// ParseCommand decodes {"type": ..., ...} into a Command. set_per_capita
// accepts a number or a string such as "$1,250".
func ParseCommand(data []byte) (Command, error) {
	var w wireCommand
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return nil, eris.Wrap(err, "dashboard: decode command")
	}

	switch w.Type {
	case "generate":
		return Generate{}, nil
	case "set_filter":
		var v string
		if len(w.Value) > 0 {
			if err := json.Unmarshal(w.Value, &v); err != nil {
				return nil, eris.Wrap(err, "dashboard: filter value")
			}
		}
		return SetFilter{Key: w.Key, Value: v}, nil
	case "set_per_capita":
		return SetPerCapita{Value: perCapitaValue(w.Value)}, nil
	case "set_page_size":
		return SetPageSize{Size: w.Size}, nil
	case "go_to_page":
		return GoToPage{Page: w.Page}, nil
	case "next_page":
		return NextPage{}, nil
	case "previous_page":
		return PreviousPage{}, nil
	case "first_page":
		return FirstPage{}, nil
	case "last_page":
		return LastPage{}, nil
	case "toggle_view":
		return ToggleView{}, nil
	default:
		return nil, eris.Wrapf(ErrUnknownCommand, "dashboard: %q", w.Type)
	}
}

func perCapitaValue(raw json.RawMessage) float64 {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return summary.NormalizePerCapitaValue(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return summary.NormalizePerCapita(s)
	}
	return summary.DefaultPerCapita
}
