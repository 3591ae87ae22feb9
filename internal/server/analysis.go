package server

import (
	"errors"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap/internal/demographics"
	"github.com/sells-group/marketmap/internal/model"
)

type criteriaRequest struct {
	Filters demographics.Criteria `json:"filters"`
}

type zipDataExport struct {
	Success      bool                        `json:"success"`
	Data         []demographics.ExportRecord `json:"data"`
	TotalRecords int                         `json:"total_records"`
	Message      string                      `json:"message"`
}

func (s *Server) handleTopHalf(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.loadedRows(w)
	if !ok {
		return
	}
	var req model.ZipCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadBody)
		return
	}
	resp, err := demographics.TopHalf(rows, req.Filters)
	writeAnalysis(w, "top half", resp, err)
}

func (s *Server) handleConcentration(w http.ResponseWriter, r *http.Request) {
	rows, c, ok := s.criteria(w, r)
	if !ok {
		return
	}
	resp, err := demographics.Concentration(rows, c)
	writeAnalysis(w, "concentration", resp, err)
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	rows, c, ok := s.criteria(w, r)
	if !ok {
		return
	}
	resp, err := demographics.Clusters(rows, c)
	writeAnalysis(w, "clusters", resp, err)
}

func (s *Server) handleZipDataExport(w http.ResponseWriter, r *http.Request) {
	rows, c, ok := s.criteria(w, r)
	if !ok {
		return
	}
	recs := demographics.ExportRecords(rows, c)
	writeJSON(w, http.StatusOK, zipDataExport{
		Success:      true,
		Data:         recs,
		TotalRecords: len(recs),
		Message:      fmt.Sprintf("Successfully exported %d zip codes", len(recs)),
	})
}

// loadedRows writes a 500 and reports false when no dataset is loaded.
func (s *Server) loadedRows(w http.ResponseWriter) ([]model.Demographics, bool) {
	rows, _ := s.dataset()
	if len(rows) == 0 {
		writeError(w, http.StatusInternalServerError, msgNoData)
		return nil, false
	}
	return rows, true
}

func (s *Server) criteria(w http.ResponseWriter, r *http.Request) ([]model.Demographics, demographics.Criteria, bool) {
	rows, ok := s.loadedRows(w)
	if !ok {
		return nil, demographics.Criteria{}, false
	}
	var req criteriaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadBody)
		return nil, demographics.Criteria{}, false
	}
	return rows, req.Filters, true
}

func writeAnalysis(w http.ResponseWriter, name string, resp any, err error) {
	switch {
	case errors.Is(err, demographics.ErrNoMatch):
		writeError(w, http.StatusBadRequest, msgNoFilterMatch)
	case err != nil:
		zap.L().Error("server: analysis", zap.String("analysis", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Analysis failed")
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}
