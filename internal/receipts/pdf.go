package receipts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	logoMaxW = 70.0 // mm
	logoMaxH = 35.0
)

// Document is everything printed on a receipt.
type Document struct {
	BusinessName     string
	LogoPath         string
	Tx               Tx
	Status           string
	Buyer            string
	Product          string
	VerificationCode string
	GeneratedAt      time.Time
}

// Render writes d as a single-page A4 PDF. A logo that is missing or
// cannot be decoded is left out.
func Render(w io.Writer, d Document) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	pdf.SetTitle("Transaction Receipt", true)
	pdf.SetCreator("basemcp receipt bot", true)
	pdf.SetCreationDate(d.GeneratedAt)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	drawLogo(pdf, d.LogoPath)

	business := d.BusinessName
	if business == "" {
		business = DefaultBusinessName
	}
	pdf.SetFont("Helvetica", "B", 26)
	pdf.CellFormat(0, 12, tr(business), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 20)
	pdf.CellFormat(0, 10, "Transaction Receipt", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	heading(pdf, "Transaction Details:")
	status := d.Status
	if status == "" {
		status = "Success"
	}
	pdf.SetFont("Courier", "", 10)
	for _, line := range []string{
		"Transaction Hash: " + d.Tx.Hash,
		fmt.Sprintf("Block Number: %d", d.Tx.BlockNumber),
		"From: " + d.Tx.From,
		"To: " + orNA(d.Tx.To),
		"Amount: " + d.Tx.AmountEth + " ETH",
		"Status: " + status,
	} {
		pdf.MultiCell(0, 5.5, line, "", "L", false)
	}
	pdf.Ln(5)

	heading(pdf, "Receipt Details:")
	pdf.SetFont("Helvetica", "", 13)
	for _, line := range []string{
		"Buyer: " + d.Buyer,
		"Product: " + d.Product,
		"Amount Paid: " + d.Tx.AmountEth + " ETH",
	} {
		pdf.MultiCell(0, 7, tr(line), "", "L", false)
	}
	pdf.Ln(5)

	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 7, "Generated: "+d.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"), "", 1, "L", false, 0, "")

	if d.VerificationCode != "" {
		pdf.Ln(4)
		pdf.SetFont("Courier", "B", 11)
		pdf.CellFormat(0, 6, "Verification code: "+d.VerificationCode, "", 1, "L", false, 0, "")
	}

	return pdf.Output(w)
}

func heading(pdf *fpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "U", 16)
	pdf.CellFormat(0, 9, text, "", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func drawLogo(pdf *fpdf.Fpdf, path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	opts := fpdf.ImageOptions{ReadDpi: true, ImageType: imageType(path)}
	info := pdf.RegisterImageOptions(path, opts)
	if pdf.Err() || info == nil {
		pdf.ClearError()
		return
	}

	w, h := info.Width(), info.Height()
	if w <= 0 || h <= 0 {
		return
	}
	scale := min(logoMaxW/w, logoMaxH/h, 1)
	w, h = w*scale, h*scale

	pageW, _ := pdf.GetPageSize()
	pdf.ImageOptions(path, (pageW-w)/2, pdf.GetY(), w, h, false, opts, 0, "")
	pdf.Ln(h + 6)
}

func imageType(path string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "png":
		return "PNG"
	case "gif":
		return "GIF"
	default:
		return "JPG"
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
