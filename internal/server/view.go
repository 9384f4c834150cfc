package server

import (
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/wseagar/invoice-kitchen/internal/invoice"
)

// viewData feeds the invoice page template. Amounts are preformatted so the
// template stays free of float logic. Logo is typed template.URL because the
// editor stores logos as data URIs, which the html/template sanitizer would
// otherwise strip.
type viewData struct {
	Invoice   *invoice.Invoice
	Logo      template.URL
	Rows      []viewRow
	Subtotal  string
	TaxLabel  string
	TaxAmount string
	Total     string
}

type viewRow struct {
	Name        string
	Description string
	Quantity    string
	Price       string
	Amount      string
}

func (s *Server) renderViewPage(w http.ResponseWriter, inv *invoice.Invoice) {
	data := viewData{
		Invoice:  inv,
		Subtotal: inv.FormatAmount(inv.Subtotal()),
		Total:    inv.FormatAmount(inv.Total()),
	}
	if inv.Logo != nil && strings.HasPrefix(*inv.Logo, "data:image/") {
		data.Logo = template.URL(*inv.Logo)
	}
	if inv.TaxEnabled && inv.TaxRate != nil {
		data.TaxLabel = "Tax (" + trimFloat(*inv.TaxRate) + "%)"
		data.TaxAmount = inv.FormatAmount(inv.TaxAmount())
	}
	for _, item := range inv.LineItems {
		row := viewRow{Name: item.Name, Description: item.Description}
		qty := 1.0
		if item.Quantity != nil {
			qty = *item.Quantity
			row.Quantity = trimFloat(qty)
		}
		if item.Price != nil {
			row.Price = inv.FormatAmount(*item.Price)
			row.Amount = inv.FormatAmount(qty * *item.Price)
		}
		data.Rows = append(data.Rows, row)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := viewTemplate.Execute(w, data); err != nil {
		s.log.Error().Err(err).Msg("render invoice page failed")
	}
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// viewTemplate is the printable invoice page. The headless renderer waits for
// the #invoice-page element before printing, so that id must stay on the root
// container.
var viewTemplate = template.Must(template.New("invoice").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Invoice</title>
<style>
  @page { size: A4; margin: 0; }
  body { margin: 0; font-family: Helvetica, Arial, sans-serif; color: #1a1a1a; }
  #invoice-page { width: 210mm; min-height: 297mm; box-sizing: border-box; padding: 18mm; background: #fff; }
  .header { display: flex; justify-content: space-between; }
  .business-name { font-size: 24px; font-weight: bold; }
  .free-text { white-space: pre-line; color: #444; font-size: 13px; }
  .logo img { max-width: 120px; max-height: 120px; }
  .header-fields { margin-top: 16px; font-size: 13px; }
  .header-fields td { padding: 2px 12px 2px 0; }
  .header-fields .label { font-weight: bold; }
  .subheader { margin-top: 24px; font-weight: bold; font-size: 14px; }
  table.items { width: 100%; margin-top: 16px; border-collapse: collapse; font-size: 13px; }
  table.items th { text-align: left; border-bottom: 2px solid #1a1a1a; padding: 6px 4px; }
  table.items td { border-bottom: 1px solid #ddd; padding: 6px 4px; vertical-align: top; }
  table.items .num { text-align: right; }
  .description { color: #777; font-style: italic; font-size: 12px; }
  .totals { margin-top: 16px; margin-left: auto; font-size: 13px; }
  .totals td { padding: 3px 4px; text-align: right; }
  .totals .grand { font-weight: bold; border-top: 2px solid #1a1a1a; }
  .notes { margin-top: 32px; font-size: 13px; }
  .notes .label { font-weight: bold; }
</style>
</head>
<body>
<div id="invoice-page">
  <div class="header">
    <div>
      <div class="business-name">{{.Invoice.BusinessName}}</div>
      <div class="free-text">{{.Invoice.BusinessHeaderFreeText}}</div>
      <table class="header-fields">
        {{range .Invoice.HeaderFields}}<tr><td class="label">{{.Label}}</td><td>{{.Value}}</td></tr>
        {{end}}
      </table>
    </div>
    {{if .Logo}}<div class="logo"><img src="{{.Logo}}" alt=""></div>{{end}}
  </div>

  <div class="subheader">{{.Invoice.InvoiceSubheader}}</div>
  <div class="free-text">{{.Invoice.InvoiceSubheaderFreeText}}</div>

  <table class="items">
    <tr><th>Item</th><th class="num">Qty</th><th class="num">Price</th><th class="num">Amount</th></tr>
    {{range .Rows}}<tr>
      <td>{{.Name}}{{if .Description}}<div class="description">{{.Description}}</div>{{end}}</td>
      <td class="num">{{.Quantity}}</td>
      <td class="num">{{.Price}}</td>
      <td class="num">{{.Amount}}</td>
    </tr>
    {{end}}
  </table>

  <table class="totals">
    {{if .TaxLabel}}<tr><td>Subtotal</td><td>{{.Subtotal}}</td></tr>
    <tr><td>{{.TaxLabel}}</td><td>{{.TaxAmount}}</td></tr>
    {{end}}<tr class="grand"><td class="grand">Total</td><td class="grand">{{.Total}}</td></tr>
  </table>

  {{if .Invoice.NotesFreeText}}<div class="notes">
    <div class="label">{{.Invoice.NotesLabel}}</div>
    <div class="free-text">{{.Invoice.NotesFreeText}}</div>
  </div>{{end}}
</div>
</body>
</html>
`))
