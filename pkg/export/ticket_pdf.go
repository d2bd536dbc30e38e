package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// TicketDocument carries the fields rendered onto a ticket PDF.
type TicketDocument struct {
	IssuerName   string
	EventName    string
	ClubName     string
	AttendeeName string
	TicketCode   string
	Tier         string
	PriceLabel   string
	EventStarts  time.Time
	IssuedAt     time.Time
}

// TicketPDFRenderer renders issued tickets as printable PDFs.
type TicketPDFRenderer struct{}

// NewTicketPDFRenderer constructs a ticket renderer.
func NewTicketPDFRenderer() *TicketPDFRenderer {
	return &TicketPDFRenderer{}
}

// Render produces the PDF bytes for a single ticket.
func (r *TicketPDFRenderer) Render(doc TicketDocument) ([]byte, error) {
	if doc.TicketCode == "" {
		return nil, fmt.Errorf("ticket pdf requires a ticket code")
	}

	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(12, 14, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, strings.ToUpper(doc.IssuerName), "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 9, doc.EventName, "", 1, "C", false, 0, "")
	if doc.ClubName != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, doc.ClubName, "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	rows := [][2]string{
		{"Attendee", doc.AttendeeName},
		{"Starts", doc.EventStarts.Format("Mon, 02 Jan 2006 15:04 MST")},
		{"Tier", doc.Tier},
		{"Price", doc.PriceLabel},
		{"Issued", doc.IssuedAt.Format("2006-01-02 15:04 MST")},
	}
	pdf.SetFont("Arial", "", 10)
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(30, 7, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, row[1], "", 1, "L", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Courier", "B", 14)
	pdf.CellFormat(0, 12, doc.TicketCode, "1", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 6, "Present this code at the door.", "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render ticket pdf: %w", err)
	}
	return buf.Bytes(), nil
}
