package export

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap/internal/model"
	"github.com/sells-group/marketmap/internal/summary"
)

// Capturer produces a PNG snapshot of the map.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Visual section kinds.
const (
	VisualSnapshot = "snapshot"
	VisualTextual  = "textual"
)

const (
	defaultTitle = "Market Opportunity Report"

	textualTopRows  = 50
	textualPerState = 5

	rowHeight    = 6.0
	headerHeight = 7.0
	margin       = 12.0
	footerSpace  = 15.0
)

// Report is the input to the PDF report.
type Report struct {
	Title       string
	GeneratedAt time.Time
	Filters     model.Filters
	Summary     summary.Metrics
	Rows        []model.TableRow
	Snapshot    Capturer
}

// ReportStats describes a written report.
type ReportStats struct {
	ID          string `json:"id"`
	Pages       int    `json:"pages"`
	DetailPages int    `json:"detailPages"`
	Rows        int    `json:"rows"`
	Visual      string `json:"visual"`
	Bytes       int64  `json:"bytes"`
}

type detailColumn struct {
	title string
	width float64
	align string
}

var detailColumns = []detailColumn{
	{"#", 12, "R"},
	{"ZIP", 18, "L"},
	{"City / State", 50, "L"},
	{"Target", 28, "R"},
	{"Total Pop.", 28, "R"},
	{"Conc. %", 22, "R"},
	{"Market Potential", 34, "R"},
}

type pdfWriter struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

// Write renders the report to w. Nothing is written unless the whole
// document renders.
func (r Report) Write(ctx context.Context, w io.Writer) (ReportStats, error) {
	if len(r.Rows) == 0 {
		return ReportStats{}, ErrNoData
	}
	title := r.Title
	if title == "" {
		title = defaultTitle
	}
	generated := r.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	stats := ReportStats{ID: uuid.NewString(), Rows: len(r.Rows)}
	log := zap.L().With(zap.String("report_id", stats.ID))

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pdf.SetTitle(title, true)
	pdf.SetCreator("marketmap", true)
	pdf.SetCreationDate(generated)
	pdf.AliasNbPages("")
	pw := &pdfWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-margin)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	totals := model.Totals(r.Rows)
	pw.cover(title, generated, r.Filters, r.Summary, totals)

	stats.Visual = VisualTextual
	if img := r.capture(ctx, log); img != nil {
		pw.snapshot(img)
		stats.Visual = VisualSnapshot
	} else {
		pw.textual(r.Rows)
	}
	if err := ctx.Err(); err != nil {
		return ReportStats{}, eris.Wrap(err, "export: cancelled")
	}

	stats.DetailPages = pw.detail(r.Rows)
	pw.closing(totals)

	if err := pdf.Error(); err != nil {
		return ReportStats{}, eris.Wrap(err, "export: render pdf")
	}
	stats.Pages = pdf.PageNo()

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return ReportStats{}, eris.Wrap(err, "export: encode pdf")
	}
	n, err := buf.WriteTo(w)
	if err != nil {
		return ReportStats{}, eris.Wrap(err, "export: write pdf")
	}
	stats.Bytes = n

	log.Info("export: wrote pdf report",
		zap.Int("pages", stats.Pages),
		zap.Int("rows", stats.Rows),
		zap.String("visual", stats.Visual),
	)
	return stats, nil
}

// capture returns a decodable PNG or nil when the textual fallback is needed.
func (r Report) capture(ctx context.Context, log *zap.Logger) []byte {
	if r.Snapshot == nil {
		return nil
	}
	data, err := r.Snapshot.Capture(ctx)
	if err != nil {
		log.Warn("export: map snapshot failed, using textual section", zap.Error(err))
		return nil
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		log.Warn("export: map snapshot unreadable, using textual section", zap.Error(err))
		return nil
	}
	return data
}

func (pw *pdfWriter) heading(text string, size float64) {
	pw.pdf.SetFont("Helvetica", "B", size)
	pw.pdf.SetTextColor(17, 24, 39)
	pw.pdf.CellFormat(0, size*0.5, pw.tr(text), "", 1, "L", false, 0, "")
	pw.pdf.Ln(2)
}

func (pw *pdfWriter) body(text string) {
	pw.pdf.SetFont("Helvetica", "", 11)
	pw.pdf.SetTextColor(55, 65, 81)
	pw.pdf.MultiCell(0, 6, pw.tr(text), "", "L", false)
}

func (pw *pdfWriter) cover(title string, generated time.Time, filters model.Filters, m summary.Metrics, totals model.TableTotals) {
	pdf := pw.pdf
	pdf.AddPage()

	pdf.SetFillColor(16, 185, 129)
	pdf.Rect(0, 0, 216, 6, "F")
	pdf.Ln(20)

	pw.heading(title, 26)
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(107, 114, 128)
	pdf.CellFormat(0, 6, "Generated "+generated.Format("January 2, 2006 at 3:04 PM"), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	pw.body(FilterSentence(filters))
	pdf.Ln(8)

	pw.heading("Executive Summary", 16)
	kpis := []struct{ label, value string }{
		{"ZIP codes analyzed", summary.Thousands(int64(totals.Rows))},
		{"Total target audience", summary.Thousands(totals.TargetAudience) + " (" + summary.FormatCount(float64(totals.TargetAudience)) + ")"},
		{"Audience concentration", fmt.Sprintf("%.2f%%", totals.AudienceConcentration)},
		{"Total market potential", summary.FormatCurrency(totals.MarketPotential) + " (" + summary.Money(totals.MarketPotential) + ")"},
	}
	if m.TotalPopulation > 0 {
		kpis = append(kpis,
			struct{ label, value string }{"Mapped target population", summary.FormatCount(float64(m.TotalPopulation))},
			struct{ label, value string }{"ZIP codes reaching 50% / 80%", fmt.Sprintf("%d / %d", m.ZipsFor50Percent, m.ZipsFor80Percent)},
			struct{ label, value string }{"Market size at " + summary.Money(m.PerCapita) + " per person", m.MarketSizeText},
		)
	}

	pdf.SetFillColor(243, 244, 246)
	for i, k := range kpis {
		fill := i%2 == 0
		pdf.SetFont("Helvetica", "", 11)
		pdf.SetTextColor(75, 85, 99)
		pdf.CellFormat(95, 9, pw.tr(k.label), "", 0, "L", fill, 0, "")
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetTextColor(17, 24, 39)
		pdf.CellFormat(0, 9, pw.tr(k.value), "", 1, "R", fill, 0, "")
	}
}

func (pw *pdfWriter) snapshot(data []byte) {
	pdf := pw.pdf
	pdf.AddPage()
	pw.heading("Market Map", 18)
	pw.body("Each red marker is one of the top-ranked ZIP codes for the selected audience.")
	pdf.Ln(4)

	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("map-snapshot", opts, bytes.NewReader(data))
	pageW, _ := pdf.GetPageSize()
	pdf.ImageOptions("map-snapshot", margin, pdf.GetY(), pageW-2*margin, 0, false, opts, 0, "")
}

// textual lists the leading rows grouped by state when no map image exists.
func (pw *pdfWriter) textual(rows []model.TableRow) {
	pdf := pw.pdf
	pdf.AddPage()
	pw.heading("Top Markets by State", 18)
	pw.body(fmt.Sprintf("Map preview unavailable. Listing up to %d ZIP codes per state from the top %d.", textualPerState, textualTopRows))
	pdf.Ln(4)

	_, pageH := pdf.GetPageSize()
	for _, g := range GroupByState(rows, textualTopRows, textualPerState) {
		if pdf.GetY()+headerHeight+rowHeight > pageH-footerSpace {
			pdf.AddPage()
		}
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetTextColor(17, 24, 39)
		pdf.CellFormat(0, headerHeight, pw.tr(fmt.Sprintf("%s (%d in top %d)", stateLabel(g.State), g.Count, textualTopRows)), "B", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(55, 65, 81)
		for _, r := range g.Rows {
			if pdf.GetY()+rowHeight > pageH-footerSpace {
				pdf.AddPage()
			}
			line := fmt.Sprintf("%s  %s: %.2f%% concentration, %s target audience",
				r.ZipCode, cityLabel(r.City), r.AudienceConcentration, summary.Thousands(r.TargetAudience))
			pdf.CellFormat(0, rowHeight, pw.tr(line), "", 1, "L", false, 0, "")
		}
		pdf.Ln(2)
	}
}

func (pw *pdfWriter) detailHeader() {
	pdf := pw.pdf
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(31, 41, 55)
	pdf.SetTextColor(255, 255, 255)
	for _, c := range detailColumns {
		pdf.CellFormat(c.width, headerHeight, c.title, "", 0, c.align, true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(31, 41, 55)
}

// detail writes every row, starting a new page with a repeated header when
// the next row would cross the bottom margin. It returns the pages used.
func (pw *pdfWriter) detail(rows []model.TableRow) int {
	pdf := pw.pdf
	pdf.AddPage()
	pages := 1
	pw.heading("ZIP Code Detail", 18)
	pw.detailHeader()

	_, pageH := pdf.GetPageSize()
	pdf.SetFillColor(249, 250, 251)
	for i, r := range rows {
		if pdf.GetY()+rowHeight > pageH-footerSpace {
			pdf.AddPage()
			pages++
			pw.detailHeader()
			pdf.SetFillColor(249, 250, 251)
		}
		cells := []string{
			fmt.Sprintf("%d", i+1),
			r.ZipCode,
			truncate(cityLabel(r.City)+", "+r.State, 30),
			summary.Thousands(r.TargetAudience),
			summary.Thousands(r.TotalPopulation),
			fmt.Sprintf("%.2f", r.AudienceConcentration),
			summary.FormatCurrency(r.MarketPotential),
		}
		fill := i%2 == 1
		for j, c := range detailColumns {
			pdf.CellFormat(c.width, rowHeight, pw.tr(cells[j]), "", 0, c.align, fill, 0, "")
		}
		pdf.Ln(-1)
	}
	return pages
}

func (pw *pdfWriter) closing(totals model.TableTotals) {
	pdf := pw.pdf
	_, pageH := pdf.GetPageSize()
	if pdf.GetY()+70 > pageH-footerSpace {
		pdf.AddPage()
	} else {
		pdf.Ln(10)
	}

	pw.heading("Next Steps", 18)
	pw.body(fmt.Sprintf("This market holds %s in potential across %s ZIP codes.",
		summary.FormatCurrency(totals.MarketPotential), summary.Thousands(int64(totals.Rows))))
	pdf.Ln(3)
	for _, step := range closingSteps {
		pw.body("- " + step)
	}
	pdf.Ln(6)

	pdf.SetFillColor(16, 185, 129)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 12, "Talk to our team about launching in these markets.", "", 1, "C", true, 0, "")
}

var closingSteps = []string{
	"Start with the ZIP codes that together reach half of your audience.",
	"Expand outward to the 80% set once early markets prove out.",
	"Refresh the analysis whenever your audience definition changes.",
}

// FilterSentence describes the active filters in prose.
func FilterSentence(f model.Filters) string {
	active := f.Active()
	if len(active) == 0 {
		return "Analysis of all ZIP codes with no demographic filters applied."
	}
	parts := make([]string, len(active))
	for i, p := range active {
		parts[i] = fmt.Sprintf("%s is %s", p.Key, p.Value)
	}
	return "Analysis of ZIP codes where " + strings.Join(parts, " and ") + "."
}

// StateGroup is one state's slice of the leading rows.
type StateGroup struct {
	State string
	Count int
	Rows  []model.TableRow
}

// GroupByState groups the first top rows by state, keeping at most perState
// rows per state. Groups appear in order of their best-ranked row.
func GroupByState(rows []model.TableRow, top, perState int) []StateGroup {
	if len(rows) > top {
		rows = rows[:top]
	}
	idx := map[string]int{}
	var groups []StateGroup
	for _, r := range rows {
		i, ok := idx[r.State]
		if !ok {
			i = len(groups)
			idx[r.State] = i
			groups = append(groups, StateGroup{State: r.State})
		}
		groups[i].Count++
		if len(groups[i].Rows) < perState {
			groups[i].Rows = append(groups[i].Rows, r)
		}
	}
	return groups
}

func stateLabel(s string) string {
	if s == "" {
		return "Unknown state"
	}
	return s
}

func cityLabel(c string) string {
	if c == "" {
		return "Unknown"
	}
	return c
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "."
}
