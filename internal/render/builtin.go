package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/wseagar/invoice-kitchen/internal/invoice"
)

// BuiltinRenderer draws the invoice straight onto an A4 page with gofpdf. The
// layout follows the invoice page: business header, header fields, customer
// block, line item table, totals, notes.
type BuiltinRenderer struct{}

// NewBuiltinRenderer creates a BuiltinRenderer.
func NewBuiltinRenderer() *BuiltinRenderer {
	return &BuiltinRenderer{}
}

// RenderPDF renders job.Invoice without touching the network.
func (r *BuiltinRenderer) RenderPDF(_ context.Context, job Job) ([]byte, error) {
	inv := job.Invoice
	if inv == nil {
		return nil, errors.New("builtin renderer: job has no invoice snapshot")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if inv.Logo != nil {
		r.drawLogo(pdf, *inv.Logo)
	}

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(120, 10, tr(inv.BusinessName))
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 10)
	multiLine(pdf, tr, inv.BusinessHeaderFreeText, 120)
	pdf.Ln(4)

	for _, field := range inv.HeaderFields {
		value := field.Value
		if value == "" {
			value = field.Placeholder
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.Cell(40, 6, tr(field.Label))
		pdf.SetFont("Helvetica", "", 10)
		pdf.Cell(60, 6, tr(value))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(100, 8, tr(inv.InvoiceSubheader))
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	multiLine(pdf, tr, inv.InvoiceSubheaderFreeText, 120)
	pdf.Ln(6)

	r.drawLineItems(pdf, tr, inv)
	r.drawTotals(pdf, tr, inv)

	if inv.NotesFreeText != "" {
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.Cell(100, 6, tr(inv.NotesLabel))
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "", 10)
		multiLine(pdf, tr, inv.NotesFreeText, 170)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// drawLogo decodes an inline data URI and places the image in the top right
// corner. Unsupported or corrupt logos are skipped rather than failing the
// whole render.
func (r *BuiltinRenderer) drawLogo(pdf *gofpdf.Fpdf, dataURI string) {
	imageType, data, err := decodeDataURI(dataURI)
	if err != nil {
		return
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return
	}
	opts := gofpdf.ImageOptions{ImageType: imageType, ReadDpi: true}
	pdf.RegisterImageOptionsReader("logo", opts, bytes.NewReader(data))
	pdf.ImageOptions("logo", 165, 12, 30, 0, false, opts, 0, "")
}

func (r *BuiltinRenderer) drawLineItems(pdf *gofpdf.Fpdf, tr func(string) string, inv *invoice.Invoice) {
	const (
		nameWidth   = 80.0
		qtyWidth    = 20.0
		priceWidth  = 35.0
		amountWidth = 35.0
	)
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(nameWidth, 8, "Item", "B", 0, "L", true, 0, "")
	pdf.CellFormat(qtyWidth, 8, "Qty", "B", 0, "R", true, 0, "")
	pdf.CellFormat(priceWidth, 8, "Price", "B", 0, "R", true, 0, "")
	pdf.CellFormat(amountWidth, 8, "Amount", "B", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range inv.LineItems {
		qty, price, amount := "", "", ""
		if item.Quantity != nil {
			qty = trimFloat(*item.Quantity)
		}
		if item.Price != nil {
			price = inv.FormatAmount(*item.Price)
			effectiveQty := 1.0
			if item.Quantity != nil {
				effectiveQty = *item.Quantity
			}
			amount = inv.FormatAmount(effectiveQty * *item.Price)
		}
		pdf.CellFormat(nameWidth, 7, tr(item.Name), "", 0, "L", false, 0, "")
		pdf.CellFormat(qtyWidth, 7, qty, "", 0, "R", false, 0, "")
		pdf.CellFormat(priceWidth, 7, tr(price), "", 0, "R", false, 0, "")
		pdf.CellFormat(amountWidth, 7, tr(amount), "", 1, "R", false, 0, "")
		if item.Description != "" {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.SetTextColor(110, 110, 110)
			pdf.CellFormat(nameWidth, 5, tr(item.Description), "", 1, "L", false, 0, "")
			pdf.SetTextColor(0, 0, 0)
			pdf.SetFont("Helvetica", "", 10)
		}
	}
}

func (r *BuiltinRenderer) drawTotals(pdf *gofpdf.Fpdf, tr func(string) string, inv *invoice.Invoice) {
	pdf.Ln(4)
	label := func(text, value string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.CellFormat(135, 7, text, "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, tr(value), "T", 1, "R", false, 0, "")
	}
	if inv.TaxEnabled && inv.TaxRate != nil {
		label("Subtotal", inv.FormatAmount(inv.Subtotal()), false)
		label(fmt.Sprintf("Tax (%s%%)", trimFloat(*inv.TaxRate)), inv.FormatAmount(inv.TaxAmount()), false)
	}
	label("Total", inv.FormatAmount(inv.Total()), true)
}

func multiLine(pdf *gofpdf.Fpdf, tr func(string) string, text string, width float64) {
	if text == "" {
		return
	}
	pdf.MultiCell(width, 5, tr(text), "", "L", false)
}

func trimFloat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

// decodeDataURI splits "data:image/png;base64,...." into a gofpdf image type
// and raw bytes.
func decodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:image/")
	if !ok {
		return "", nil, errors.New("not an image data uri")
	}
	mediaType, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return "", nil, errors.New("data uri is not base64 encoded")
	}
	var imageType string
	switch strings.ToLower(mediaType) {
	case "png":
		imageType = "PNG"
	case "jpeg", "jpg":
		imageType = "JPG"
	case "gif":
		imageType = "GIF"
	default:
		return "", nil, fmt.Errorf("unsupported logo type %q", mediaType)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode logo: %w", err)
	}
	return imageType, data, nil
}
