package render

import "math"

const tileSize = 256.0

// mercator projects lon/lat to world pixels at zoom 0.
func mercator(lon, lat float64) (x, y float64) {
	lat = math.Max(math.Min(lat, 85.05112878), -85.05112878)
	x = (lon + 180) / 360 * tileSize
	s := math.Sin(lat * math.Pi / 180)
	y = (0.5 - math.Log((1+s)/(1-s))/(4*math.Pi)) * tileSize
	return x, y
}

// project maps lon/lat to surface pixels for view.
func project(view Viewport, width, height int, lon, lat float64) (px, py float64) {
	scale := math.Pow(2, view.Zoom)
	cx, cy := mercator(view.Lon, view.Lat)
	x, y := mercator(lon, lat)
	px = (x-cx)*scale + float64(width)/2
	py = (y-cy)*scale + float64(height)/2
	return px, py
}

func fitZoom(b Bounds, width, height, padding int) float64 {
	x0, y0 := mercator(b.MinLon, b.MaxLat)
	x1, y1 := mercator(b.MaxLon, b.MinLat)
	dx, dy := math.Abs(x1-x0), math.Abs(y1-y0)

	availW := float64(width - 2*padding)
	availH := float64(height - 2*padding)
	if availW <= 0 || availH <= 0 {
		return MinZoom
	}

	zoom := MaxZoom
	if dx > 0 {
		zoom = math.Min(zoom, math.Log2(availW/dx))
	}
	if dy > 0 {
		zoom = math.Min(zoom, math.Log2(availH/dy))
	}
	return math.Max(MinZoom, math.Min(MaxZoom, zoom))
}
