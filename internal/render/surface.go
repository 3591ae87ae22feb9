// Package render places ZIP records on a map surface in paced batches and
// captures the surface as PNG or SVG.
package render

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketmap/internal/model"
)

// Zoom limits of the map.
const (
	MinZoom = 3.0
	MaxZoom = 10.0
)

// Viewport is the visible map area.
type Viewport struct {
	Lon  float64 `json:"lon"`
	Lat  float64 `json:"lat"`
	Zoom float64 `json:"zoom"`
}

// WholeCountry is the continental US view.
var WholeCountry = Viewport{Lon: -98.5795, Lat: 39.8283, Zoom: 4}

// Bounds is a lon/lat bounding box.
type Bounds struct {
	MinLon float64 `json:"minLon"`
	MinLat float64 `json:"minLat"`
	MaxLon float64 `json:"maxLon"`
	MaxLat float64 `json:"maxLat"`
}

// Center returns the midpoint of b.
func (b Bounds) Center() (lon, lat float64) {
	return (b.MinLon + b.MaxLon) / 2, (b.MinLat + b.MaxLat) / 2
}

// FitOptions controls a FitBounds transition.
type FitOptions struct {
	Padding  int           `json:"padding"`
	Duration time.Duration `json:"duration"`
}

// DefaultFit matches the dashboard's fit animation.
var DefaultFit = FitOptions{Padding: 50, Duration: time.Second}

// MarkerStyle is the look of a ZIP marker.
type MarkerStyle struct {
	Fill        string        `json:"fill"`
	Stroke      string        `json:"stroke"`
	StrokeWidth float64       `json:"strokeWidth"`
	Size        float64       `json:"size"`
	Appear      time.Duration `json:"appear"`
}

// Marker is a placed ZIP record.
type Marker struct {
	ZipCode    string      `json:"zipCode"`
	Lon        float64     `json:"lon"`
	Lat        float64     `json:"lat"`
	Population int64       `json:"population"`
	State      string      `json:"state"`
	City       string      `json:"city,omitempty"`
	Style      MarkerStyle `json:"style"`
}

// Surface is anything markers can be placed on.
type Surface interface {
	Clear()
	Place(rec model.ZipRecord) error
	FitBounds(b Bounds, opts FitOptions)
	View() Viewport
	SetView(v Viewport)
	Markers() []Marker
}

// ErrInvalidCoordinate is returned by Place for an unplaceable record.
var ErrInvalidCoordinate = eris.New("render: invalid coordinate")

// MemorySurface is an in-process Surface with a fixed pixel size.
type MemorySurface struct {
	Width  int
	Height int

	mu       sync.Mutex
	markers  []Marker
	view     Viewport
	lastFit  *FitOptions
	style    MarkerStyle
	styleSet sync.Once
}

// NewMemorySurface returns a surface of the given size showing WholeCountry.
func NewMemorySurface(width, height int) *MemorySurface {
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 640
	}
	return &MemorySurface{Width: width, Height: height, view: WholeCountry}
}

// markerStyle initializes the shared marker style on first use.
func (s *MemorySurface) markerStyle() MarkerStyle {
	s.styleSet.Do(func() {
		s.style = MarkerStyle{
			Fill:        "#FF0000",
			Stroke:      "#FFFFFF",
			StrokeWidth: 2,
			Size:        20,
			Appear:      500 * time.Millisecond,
		}
	})
	return s.style
}

// Clear removes every marker.
func (s *MemorySurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = nil
	s.lastFit = nil
}

// Place adds a marker for rec.
func (s *MemorySurface) Place(rec model.ZipRecord) error {
	if !rec.ValidCoordinate() {
		return eris.Wrapf(ErrInvalidCoordinate, "zip %s (%v, %v)", rec.ZipCode, rec.Latitude, rec.Longitude)
	}
	style := s.markerStyle()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append(s.markers, Marker{
		ZipCode:    rec.ZipCode,
		Lon:        rec.Longitude,
		Lat:        rec.Latitude,
		Population: rec.Population,
		State:      rec.State,
		City:       rec.City,
		Style:      style,
	})
	return nil
}

// FitBounds centres the view on b at the largest zoom that keeps b inside
// the padded surface.
func (s *MemorySurface) FitBounds(b Bounds, opts FitOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lon, lat := b.Center()
	s.view = Viewport{Lon: lon, Lat: lat, Zoom: fitZoom(b, s.Width, s.Height, opts.Padding)}
	o := opts
	s.lastFit = &o
}

// View returns the current viewport.
func (s *MemorySurface) View() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// SetView jumps to v.
func (s *MemorySurface) SetView(v Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = v
}

// Markers returns a copy of the placed markers in placement order.
func (s *MemorySurface) Markers() []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Marker, len(s.markers))
	copy(out, s.markers)
	return out
}

// LastFit returns the options of the most recent FitBounds since Clear.
func (s *MemorySurface) LastFit() (FitOptions, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastFit == nil {
		return FitOptions{}, false
	}
	return *s.lastFit, true
}
