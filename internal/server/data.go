package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap/internal/demographics"
	"github.com/sells-group/marketmap/internal/model"
	"github.com/sells-group/marketmap/internal/store"
	"github.com/sells-group/marketmap/internal/summary"
)

const (
	msgNoData  = "Demographic data not available"
	msgNoMatch = "No zip codes match the selected demographic criteria"
	msgBadBody = "invalid request body"

	msgNoFilterMatch = "No data matches the selected filters"
)

// filterKeys are the demographic dimensions served by GET /api/filters.
var filterKeys = []string{model.FilterAge, model.FilterEthnicity, model.FilterIncome, model.FilterGender}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "Server is running",
	})
}

func (s *Server) handleFilters(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string][]string, len(filterKeys))
	for _, k := range filterKeys {
		out[k] = demographics.Values(k)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleZipCodes(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.loadedRows(w)
	if !ok {
		return
	}

	var req model.ZipCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadBody)
		return
	}

	resp, err := demographics.ZipCodes(rows, req.Filters, s.opts.MapLimit)
	if errors.Is(err, demographics.ErrNoMatch) {
		writeError(w, http.StatusBadRequest, msgNoMatch)
		return
	}
	if err != nil {
		zap.L().Error("server: zip codes", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get zip codes")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.loadedRows(w)
	if !ok {
		return
	}

	var req model.TableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadBody)
		return
	}

	resp, err := demographics.Table(rows, req.Filters, summary.NormalizePerCapitaValue(req.YearlyConsumption))
	if errors.Is(err, demographics.ErrNoMatch) {
		writeError(w, http.StatusBadRequest, msgNoMatch)
		return
	}
	if err != nil {
		zap.L().Error("server: zip table", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to build table")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	zip := demographics.NormalizeZip(chi.URLParam(r, "zip"))
	if zip == "" {
		writeError(w, http.StatusNotFound, "Zip code not found")
		return
	}

	d, err := s.store.GetDemographics(r.Context(), zip)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Zip code not found")
		return
	}
	if err != nil {
		zap.L().Error("server: zip profile", zap.String("zip", zip), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgNoData)
		return
	}
	writeJSON(w, http.StatusOK, demographics.NewProfile(*d))
}

type dataStatus struct {
	Loaded  bool        `json:"demographic_data_loaded"`
	Rows    int         `json:"rows"`
	Located int         `json:"rows_with_location"`
	Import  *store.Meta `json:"import,omitempty"`
}

func (s *Server) handleDataStatus(w http.ResponseWriter, _ *http.Request) {
	rows, meta := s.dataset()
	st := dataStatus{Loaded: len(rows) > 0, Rows: len(rows), Import: meta}
	for _, d := range rows {
		if d.HasLocation {
			st.Located++
		}
	}
	writeJSON(w, http.StatusOK, st)
}
