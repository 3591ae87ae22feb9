package server

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/marketmap/internal/dashboard"
	"github.com/sells-group/marketmap/internal/export"
	"github.com/sells-group/marketmap/internal/render"
)

const (
	maxCommandBytes = 64 << 10
	maxSVGSide      = 4096
)

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dashboard.ViewOf(s.dash.Snapshot(), s.opts.PageWindow))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCommandBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, msgBadBody)
		return
	}
	cmd, err := dashboard.ParseCommand(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.dash.Dispatch(r.Context(), cmd)
	if err != nil {
		writeError(w, dispatchStatus(err, http.StatusBadRequest), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dashboard.ViewOf(snap, s.opts.PageWindow))
}

// dispatchStatus maps dashboard errors to HTTP statuses. Anything
// unrecognised gets fallback.
func dispatchStatus(err error, fallback int) int {
	switch {
	case errors.Is(err, dashboard.ErrGenerateInProgress), errors.Is(err, export.ErrNoData):
		return http.StatusConflict
	case errors.Is(err, dashboard.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, dashboard.ErrUnknownFormat):
		return http.StatusBadRequest
	default:
		return fallback
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	a, err := s.dash.Export(r.Context(), format)
	if err != nil {
		writeError(w, dispatchStatus(err, http.StatusInternalServerError), err.Error())
		return
	}

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Body)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(a.Body); err != nil {
		zap.L().Warn("server: write export", zap.String("file", a.Filename), zap.Error(err))
	}
}

func (s *Server) handleMapSVG(w http.ResponseWriter, r *http.Request) {
	width := sizeParam(r, "w", s.opts.SVGWidth)
	height := sizeParam(r, "h", s.opts.SVGHeight)

	var buf bytes.Buffer
	if err := render.WriteSVG(&buf, s.dash.Surface(), width, height); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// sizeParam reads a positive pixel size from the query, falling back to def.
func sizeParam(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxSVGSide)
}
