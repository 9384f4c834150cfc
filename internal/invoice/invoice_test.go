package invoice

import "testing"

func TestNextNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"INV-0007", "INV-0008"},
		{"INV-099", "INV-100"},
		{"INV-999", "INV-1000"},
		{"INV-0001", "INV-0002"},
		{"7", "8"},
		{"2023/09", "2023/10"},
		{"", "INV-0001"},
		{"DRAFT", "DRAFT-2"},
	}
	for _, tc := range cases {
		if got := NextNumber(tc.in); got != tc.want {
			t.Errorf("NextNumber(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMigrateDerivesTaxEnabled(t *testing.T) {
	rate := 12.5
	inv := Blank()
	inv.Version = "1"
	inv.TaxRate = &rate
	inv.BusinessName = "The Pastry Shop"
	inv.Migrate()
	if !inv.TaxEnabled {
		t.Fatalf("expected taxEnabled after migrating draft with tax rate")
	}
	if inv.Version != CurrentVersion {
		t.Fatalf("expected version %q, got %q", CurrentVersion, inv.Version)
	}
	if inv.BusinessName != "The Pastry Shop" {
		t.Fatalf("migration must not touch other fields")
	}

	inv = Blank()
	inv.Version = "1"
	inv.Migrate()
	if inv.TaxEnabled {
		t.Fatalf("expected taxEnabled false when no tax rate was stored")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	inv := Blank()
	inv.TaxRate = nil
	inv.TaxEnabled = true // explicit toggle on a current-version draft
	inv.Migrate()
	if !inv.TaxEnabled {
		t.Fatalf("current-version drafts must not be rewritten")
	}
}

func TestTotals(t *testing.T) {
	inv := Preset()
	subtotal := inv.Subtotal()
	if subtotal != 12*120+450 {
		t.Fatalf("subtotal = %v", subtotal)
	}
	if got := inv.TaxAmount(); got != subtotal*0.15 {
		t.Fatalf("tax = %v", got)
	}
	if got := inv.Total(); got != subtotal*1.15 {
		t.Fatalf("total = %v", got)
	}

	inv.TaxEnabled = false
	if got := inv.TaxAmount(); got != 0 {
		t.Fatalf("tax should be zero when disabled, got %v", got)
	}
}

func TestFieldsRoundTrip(t *testing.T) {
	inv := Preset()
	logo := "data:image/png;base64,iVBORw0KGgo="
	inv.Logo = &logo

	fields, err := inv.Fields()
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	back, err := FromFields(fields)
	if err != nil {
		t.Fatalf("from fields: %v", err)
	}
	if back.Identifier != inv.Identifier {
		t.Fatalf("identifier changed across round trip")
	}
	if back.TaxRate == nil || *back.TaxRate != *inv.TaxRate {
		t.Fatalf("tax rate lost")
	}
	if back.Logo == nil || *back.Logo != logo {
		t.Fatalf("logo lost")
	}
	if len(back.LineItems) != 2 || back.LineItems[0].Name != "Croissants" {
		t.Fatalf("line items lost: %+v", back.LineItems)
	}
	if back.Number() != "INV-0001" {
		t.Fatalf("invoice number lost, got %q", back.Number())
	}
}

func TestFromFieldsOmitsOptionals(t *testing.T) {
	inv := Blank()
	fields, err := inv.Fields()
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if _, ok := fields["taxRate"]; ok {
		t.Fatalf("nil tax rate must not be stored")
	}
	back, err := FromFields(fields)
	if err != nil {
		t.Fatalf("from fields: %v", err)
	}
	if back.TaxRate != nil || back.Logo != nil {
		t.Fatalf("optionals should stay nil")
	}
}
