package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets and certificates into PDF documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a tabular PDF document with an optional title. Used for
// progress reports and member rosters.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			value := row[header]
			pdf.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// CertificateData carries the fields printed on a completion certificate.
type CertificateData struct {
	RecipientName string
	ModuleTitle   string
	CourseTitle   string
	Code          string
	IssuedAt      time.Time
	IssuerName    string
}

// RenderCertificate produces a landscape completion certificate.
func (e *PDFExporter) RenderCertificate(data CertificateData) ([]byte, error) {
	if data.RecipientName == "" || data.Code == "" {
		return nil, fmt.Errorf("certificate requires recipient and code")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	pdf.SetLineWidth(1)
	pdf.Rect(10, 10, 277, 190, "D")

	pdf.SetFont("Times", "B", 28)
	pdf.CellFormat(0, 16, "Certificate of Completion", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 13)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Times", "B", 22)
	pdf.CellFormat(0, 12, data.RecipientName, "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 13)
	pdf.CellFormat(0, 8, "has completed the module", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, data.ModuleTitle, "", 1, "C", false, 0, "")
	if data.CourseTitle != "" {
		pdf.SetFont("Arial", "I", 12)
		pdf.CellFormat(0, 8, data.CourseTitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Issued on %s by %s", data.IssuedAt.Format("January 2, 2006"), data.IssuerName), "", 1, "C", false, 0, "")
	pdf.Ln(4)
	pdf.SetFont("Courier", "B", 12)
	pdf.CellFormat(0, 7, fmt.Sprintf("Verification code: %s", strings.ToUpper(data.Code)), "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
