// Package invoice defines the invoice draft model shared by the draft store,
// the submission pipeline, and the renderers.
package invoice

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CurrentVersion tags newly created drafts. Stored drafts with an older
// version are upgraded on load, see Migrate.
const CurrentVersion = "2"

// Currency names the invoice currency along with its ISO code.
type Currency struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HeaderField is one label/value pair in the invoice header, e.g. the invoice
// number or the issue date. Placeholder is the ghost text shown while the
// value is empty.
type HeaderField struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Placeholder string `json:"placeholder"`
}

// LineItem is a single billable row. Quantity and Price stay nil until the
// user fills them in, which keeps "no value" distinct from zero.
type LineItem struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity,omitempty"`
	Price       *float64 `json:"price,omitempty"`
}

// Invoice is a full draft snapshot. Identifier is assigned once when the draft
// is created and never changes afterwards; every submission of the same draft
// reuses it while getting a fresh file id.
type Invoice struct {
	Identifier string   `json:"identifier"`
	Version    string   `json:"version"`
	Currency   Currency `json:"currency"`
	TaxRate    *float64 `json:"taxRate"`
	TaxEnabled bool     `json:"taxEnabled"`
	Logo       *string  `json:"logo"`

	BusinessName           string        `json:"businessName"`
	BusinessHeaderFreeText string        `json:"businessHeaderFreeText"`
	HeaderFields           []HeaderField `json:"headerFields"`

	InvoiceSubheader         string `json:"invoiceSubheader"`
	InvoiceSubheaderFreeText string `json:"invoiceSubheaderFreeText"`

	NotesLabel    string `json:"notesLabel"`
	NotesFreeText string `json:"notesFreeText"`

	LineItems []LineItem `json:"lineItems"`
}

// Blank returns a fresh draft with the editor defaults.
func Blank() *Invoice {
	return &Invoice{
		Identifier: uuid.NewString(),
		Version:    CurrentVersion,
		Currency:   Currency{Name: "United States Dollar", Value: "USD"},
		HeaderFields: []HeaderField{
			{Label: "INVOICE #", Value: "", Placeholder: "INV-0001"},
			{Label: "DATE", Value: "", Placeholder: "01/01/2021"},
		},
		InvoiceSubheader: "TAX INVOICE",
		NotesLabel:       "NOTES",
		LineItems:        []LineItem{},
	}
}

// Preset returns an example invoice used to seed the editor.
func Preset() *Invoice {
	rate := 15.0
	qty1, price1 := 12.0, 120.0
	qty2, price2 := 1.0, 450.0
	inv := Blank()
	inv.TaxRate = &rate
	inv.TaxEnabled = true
	inv.BusinessName = "The Pastry Shop"
	inv.BusinessHeaderFreeText = "12 Baker Street\nWellington\nNew Zealand"
	inv.HeaderFields[0].Value = "INV-0001"
	inv.HeaderFields[1].Value = "01/06/2023"
	inv.InvoiceSubheaderFreeText = "Cafe on the Corner\n45 Cuba Street\nWellington"
	inv.NotesFreeText = "Payment due within 14 days."
	inv.LineItems = []LineItem{
		{Name: "Croissants", Description: "Butter croissants, boxed by the dozen", Quantity: &qty1, Price: &price1},
		{Name: "Wedding cake", Description: "Three tier, lemon curd filling", Quantity: &qty2, Price: &price2},
	}
	return inv
}

// Migrate upgrades a stored draft to the current version in place. Version 1
// predates the tax toggle, so TaxEnabled is derived from whether a tax rate
// was set. All other fields are left untouched.
func (inv *Invoice) Migrate() {
	if inv.Version == CurrentVersion {
		return
	}
	inv.TaxEnabled = inv.TaxRate != nil
	inv.Version = CurrentVersion
}

// Number returns the invoice number from the header fields, i.e. the value of
// the first field whose label mentions "INVOICE".
func (inv *Invoice) Number() string {
	if f := inv.numberField(); f != nil {
		return f.Value
	}
	return ""
}

// SetNumber writes the invoice number back into the header fields.
func (inv *Invoice) SetNumber(n string) {
	if f := inv.numberField(); f != nil {
		f.Value = n
	}
}

func (inv *Invoice) numberField() *HeaderField {
	for i := range inv.HeaderFields {
		if strings.Contains(strings.ToUpper(inv.HeaderFields[i].Label), "INVOICE") {
			return &inv.HeaderFields[i]
		}
	}
	return nil
}

// Subtotal sums quantity times price over all line items. Items missing a
// price contribute nothing; a missing quantity counts as one.
func (inv *Invoice) Subtotal() float64 {
	var total float64
	for _, item := range inv.LineItems {
		if item.Price == nil {
			continue
		}
		qty := 1.0
		if item.Quantity != nil {
			qty = *item.Quantity
		}
		total += qty * *item.Price
	}
	return total
}

// TaxAmount returns the tax portion of the invoice, zero when tax is disabled.
func (inv *Invoice) TaxAmount() float64 {
	if !inv.TaxEnabled || inv.TaxRate == nil {
		return 0
	}
	return inv.Subtotal() * *inv.TaxRate / 100
}

// Total is the grand total including tax.
func (inv *Invoice) Total() float64 {
	return inv.Subtotal() + inv.TaxAmount()
}

// FormatAmount renders a monetary value with the invoice's currency symbol.
func (inv *Invoice) FormatAmount(v float64) string {
	symbol, ok := currencySymbols[inv.Currency.Value]
	if !ok {
		return fmt.Sprintf("%s %.2f", inv.Currency.Value, v)
	}
	return fmt.Sprintf("%s%.2f", symbol, v)
}

var currencySymbols = map[string]string{
	"USD": "$",
	"NZD": "$",
	"AUD": "$",
	"CAD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"INR": "₹",
}

// Fields flattens the snapshot into a string map suitable for a redis hash.
// Scalars map directly; structured fields are JSON encoded; nil optionals are
// omitted so absence survives the round trip.
func (inv *Invoice) Fields() (map[string]string, error) {
	fields := map[string]string{
		"identifier":               inv.Identifier,
		"version":                  inv.Version,
		"businessName":             inv.BusinessName,
		"businessHeaderFreeText":   inv.BusinessHeaderFreeText,
		"invoiceSubheader":         inv.InvoiceSubheader,
		"invoiceSubheaderFreeText": inv.InvoiceSubheaderFreeText,
		"notesLabel":               inv.NotesLabel,
		"notesFreeText":            inv.NotesFreeText,
		"taxEnabled":               fmt.Sprintf("%t", inv.TaxEnabled),
	}
	currency, err := json.Marshal(inv.Currency)
	if err != nil {
		return nil, fmt.Errorf("marshal currency: %w", err)
	}
	fields["currency"] = string(currency)
	headerFields, err := json.Marshal(inv.HeaderFields)
	if err != nil {
		return nil, fmt.Errorf("marshal header fields: %w", err)
	}
	fields["headerFields"] = string(headerFields)
	lineItems, err := json.Marshal(inv.LineItems)
	if err != nil {
		return nil, fmt.Errorf("marshal line items: %w", err)
	}
	fields["lineItems"] = string(lineItems)
	if inv.TaxRate != nil {
		fields["taxRate"] = fmt.Sprintf("%g", *inv.TaxRate)
	}
	if inv.Logo != nil {
		fields["logo"] = *inv.Logo
	}
	return fields, nil
}

// FromFields rebuilds a snapshot out of a redis hash produced by Fields.
func FromFields(fields map[string]string) (*Invoice, error) {
	inv := &Invoice{
		Identifier:               fields["identifier"],
		Version:                  fields["version"],
		BusinessName:             fields["businessName"],
		BusinessHeaderFreeText:   fields["businessHeaderFreeText"],
		InvoiceSubheader:         fields["invoiceSubheader"],
		InvoiceSubheaderFreeText: fields["invoiceSubheaderFreeText"],
		NotesLabel:               fields["notesLabel"],
		NotesFreeText:            fields["notesFreeText"],
		TaxEnabled:               fields["taxEnabled"] == "true",
	}
	if raw, ok := fields["currency"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &inv.Currency); err != nil {
			return nil, fmt.Errorf("unmarshal currency: %w", err)
		}
	}
	if raw, ok := fields["headerFields"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &inv.HeaderFields); err != nil {
			return nil, fmt.Errorf("unmarshal header fields: %w", err)
		}
	}
	if raw, ok := fields["lineItems"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &inv.LineItems); err != nil {
			return nil, fmt.Errorf("unmarshal line items: %w", err)
		}
	}
	if raw, ok := fields["taxRate"]; ok && raw != "" {
		var rate float64
		if _, err := fmt.Sscanf(raw, "%g", &rate); err != nil {
			return nil, fmt.Errorf("parse tax rate %q: %w", raw, err)
		}
		inv.TaxRate = &rate
	}
	if raw, ok := fields["logo"]; ok && raw != "" {
		logo := raw
		inv.Logo = &logo
	}
	return inv, nil
}
