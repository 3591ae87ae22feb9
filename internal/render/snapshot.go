package render

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"io"
	"math"

	"git.sr.ht/~sbinet/gg"
	svg "github.com/ajstarks/svgo"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/image/font/basicfont"
)

var (
	colorWater    = color.RGBA{R: 0xe8, G: 0xf1, B: 0xf8, A: 0xff}
	colorGrid     = color.RGBA{R: 0xc9, G: 0xd6, B: 0xe3, A: 0xff}
	colorLandmark = color.RGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff}
	colorLabel    = color.RGBA{R: 0x37, G: 0x41, B: 0x51, A: 0xff}
	colorMarker   = color.RGBA{R: 0xff, A: 0xff}
	colorWhite    = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// SnapshotCapturer renders a Surface to PNG at the whole-country view.
type SnapshotCapturer struct {
	Surface Surface
	Width   int
	Height  int
}

// NewSnapshotCapturer returns a capturer producing width x height images.
func NewSnapshotCapturer(s Surface, width, height int) *SnapshotCapturer {
	if width <= 0 {
		width = 1200
	}
	if height <= 0 {
		height = 750
	}
	return &SnapshotCapturer{Surface: s, Width: width, Height: height}
}

// Capture returns a PNG of every marker at WholeCountry. The surface's
// viewport is restored before returning, on success or failure.
func (c *SnapshotCapturer) Capture(ctx context.Context) (png []byte, err error) {
	if c.Surface == nil {
		return nil, eris.New("render: capture without surface")
	}
	prev := c.Surface.View()
	defer func() {
		c.Surface.SetView(prev)
		if r := recover(); r != nil {
			err = eris.Errorf("render: capture panicked: %v", r)
		}
	}()

	c.Surface.SetView(WholeCountry)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "render: capture")
	}

	view := c.Surface.View()
	markers := c.Surface.Markers()

	dc := gg.NewContext(c.Width, c.Height)
	dc.SetColor(colorWater)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	drawGraticule(dc, view, c.Width, c.Height)

	for _, lm := range MajorCities {
		x, y := project(view, c.Width, c.Height, lm.Lon, lm.Lat)
		dc.SetColor(colorLandmark)
		dc.DrawCircle(x, y, 4)
		dc.Fill()
		dc.SetColor(colorLabel)
		dc.DrawStringAnchored(lm.Name, x+7, y, 0, 0.5)
	}

	for _, m := range markers {
		x, y := project(view, c.Width, c.Height, m.Lon, m.Lat)
		r := m.Style.Size / 4
		if r <= 0 {
			r = 5
		}
		dc.SetColor(colorMarker)
		dc.DrawCircle(x, y, r)
		dc.Fill()
		dc.SetColor(colorWhite)
		dc.SetLineWidth(m.Style.StrokeWidth)
		dc.DrawCircle(x, y, r)
		dc.Stroke()
	}

	dc.SetColor(colorLabel)
	dc.DrawStringAnchored(fmt.Sprintf("%d ZIP codes", len(markers)), 16, float64(c.Height)-16, 0, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, eris.Wrap(err, "render: encode png")
	}
	zap.L().Debug("render: captured snapshot",
		zap.Int("markers", len(markers)),
		zap.Int("bytes", buf.Len()),
	)
	return buf.Bytes(), nil
}

func drawGraticule(dc *gg.Context, view Viewport, width, height int) {
	dc.SetColor(colorGrid)
	dc.SetLineWidth(1)
	for lon := -180.0; lon <= 180; lon += 10 {
		x0, y0 := project(view, width, height, lon, -80)
		x1, y1 := project(view, width, height, lon, 80)
		dc.DrawLine(x0, y0, x1, y1)
		dc.Stroke()
	}
	for lat := -80.0; lat <= 80; lat += 10 {
		x0, y0 := project(view, width, height, -180, lat)
		x1, y1 := project(view, width, height, 180, lat)
		dc.DrawLine(x0, y0, x1, y1)
		dc.Stroke()
	}
}

// WriteSVG renders the surface at its current viewport as SVG.
func WriteSVG(w io.Writer, s Surface, width, height int) error {
	if width <= 0 || height <= 0 {
		return eris.Errorf("render: invalid svg size %dx%d", width, height)
	}
	view := s.View()
	markers := s.Markers()

	canvas := svg.New(w)
	canvas.Start(width, height)
	canvas.Rect(0, 0, width, height, "fill:"+css(colorWater))

	for _, lm := range MajorCities {
		x, y := project(view, width, height, lm.Lon, lm.Lat)
		if !onCanvas(x, y, width, height) {
			continue
		}
		canvas.Circle(int(x), int(y), 4, "fill:"+css(colorLandmark))
		canvas.Text(int(x)+7, int(y)+4, lm.Name,
			fmt.Sprintf("fill:%s;font-size:11px;font-family:sans-serif", css(colorLabel)))
	}

	canvas.Gid("zip-markers")
	for _, m := range markers {
		x, y := project(view, width, height, m.Lon, m.Lat)
		if !onCanvas(x, y, width, height) {
			continue
		}
		r := int(math.Max(1, m.Style.Size/4))
		canvas.Circle(int(x), int(y), r,
			fmt.Sprintf("fill:%s;stroke:%s;stroke-width:%.0f", m.Style.Fill, m.Style.Stroke, m.Style.StrokeWidth))
	}
	canvas.Gend()
	canvas.End()
	return nil
}

func onCanvas(x, y float64, width, height int) bool {
	return x >= 0 && y >= 0 && x <= float64(width) && y <= float64(height)
}

func css(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
