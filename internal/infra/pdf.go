package infra

// pdf.go: margin analysis report rendering using go-pdf/fpdf.
// A4 portrait, one page per ~45 rows:
//   - Title with scope and generation time
//   - Aggregate block (count, average, min, max)
//   - Products below the minimum margin, then above the maximum
//   - Full product table sorted by margin ascending

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
)

// MarginReportPDF renders dto.MarginAnalysisResponse as a PDF document.
type MarginReportPDF struct {
	Title string
}

func NewMarginReportPDF(title string) *MarginReportPDF {
	if title == "" {
		title = "Margin Analysis"
	}
	return &MarginReportPDF{Title: title}
}

// RenderMarginReport returns the PDF bytes for r.
func (m *MarginReportPDF) RenderMarginReport(r *dto.MarginAnalysisResponse) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("pdf: nil margin report")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(12, 12, 12)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 24

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 15)
	pdf.CellFormat(contentW, 8, m.Title, "", 1, "L", false, 0, "")

	scope := r.Scope
	if r.ScopeID != nil {
		scope = fmt.Sprintf("%s #%d", r.Scope, *r.ScopeID)
	}
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Scope: %s    Generated: %s",
		scope, r.GeneratedAt.UTC().Format("2006-01-02 15:04 MST")), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	// ── Aggregates ──────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 10)
	summary := []struct{ label, value string }{
		{"Products", fmt.Sprintf("%d", r.ProductCount)},
		{"Average margin", r.AverageMargin.StringFixed(2) + "%"},
		{"Lowest margin", r.MinMargin.StringFixed(2) + "%"},
		{"Highest margin", r.MaxMargin.StringFixed(2) + "%"},
		{"Below minimum", fmt.Sprintf("%d", len(r.BelowMin))},
		{"Above maximum", fmt.Sprintf("%d", len(r.AboveMax))},
	}
	for _, s := range summary {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(45, 5, s.label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(contentW-45, 5, s.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	marginTable(pdf, contentW, "Below minimum margin", r.BelowMin)
	marginTable(pdf, contentW, "Above maximum margin", r.AboveMax)
	marginTable(pdf, contentW, "All products", r.Products)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: render margin report: %w", err)
	}
	return buf.Bytes(), nil
}

func marginTable(pdf *fpdf.Fpdf, contentW float64, title string, items []dto.MarginItem) {
	if len(items) == 0 {
		return
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(contentW, 7, fmt.Sprintf("%s (%d)", title, len(items)), "", 1, "L", false, 0, "")

	cols := []struct {
		head  string
		width float64
		align string
	}{
		{"SKU", 0.16, "L"},
		{"Product", 0.32, "L"},
		{"Cost", 0.12, "R"},
		{"Retail", 0.12, "R"},
		{"Margin %", 0.10, "R"},
		{"Margin $", 0.10, "R"},
		{"Bounds", 0.08, "C"},
	}

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(230, 230, 230)
	for i, c := range cols {
		ln := 0
		if i == len(cols)-1 {
			ln = 1
		}
		pdf.CellFormat(contentW*c.width, 6, c.head, "B", ln, c.align, true, 0, "")
	}

	pdf.SetFont("Helvetica", "", 8)
	for _, it := range items {
		name := it.Name
		if len(name) > 42 {
			name = name[:39] + "..."
		}
		row := []string{
			it.SKU,
			name,
			it.Cost.StringFixed(2),
			it.RetailPrice.StringFixed(2),
			it.MarginPercent.StringFixed(2),
			it.MarginAmount.StringFixed(2),
			it.MinMargin.StringFixed(0) + "-" + it.MaxMargin.StringFixed(0),
		}
		for i, c := range cols {
			ln := 0
			if i == len(cols)-1 {
				ln = 1
			}
			pdf.CellFormat(contentW*c.width, 5, row[i], "", ln, c.align, false, 0, "")
		}
	}
	pdf.Ln(4)
}
