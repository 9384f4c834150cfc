// Package draft manages the single in-progress invoice kept per profile, the
// server-side counterpart of the browser's versioned local-storage record.
// The draft is loaded on page open, migrated if it was written by an older
// version, and overwritten on every edit.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wseagar/invoice-kitchen/internal/invoice"
	"github.com/wseagar/invoice-kitchen/internal/kvstore"
)

// Store reads and writes one draft per profile id.
type Store struct {
	kv kvstore.StringStore
}

// NewStore creates a draft store over the given KV backend.
func NewStore(kv kvstore.StringStore) *Store {
	return &Store{kv: kv}
}

func draftKey(profile string) string {
	return "draft:" + profile
}

// Load returns the profile's draft, migrated to the current version. Profiles
// without a stored draft get a blank one; it is not persisted until the first
// Save.
func (s *Store) Load(ctx context.Context, profile string) (*invoice.Invoice, error) {
	raw, err := s.kv.Get(ctx, draftKey(profile))
	if errors.Is(err, kvstore.ErrNotFound) {
		return invoice.Blank(), nil
	}
	if err != nil {
		return nil, err
	}
	var inv invoice.Invoice
	if err := json.Unmarshal([]byte(raw), &inv); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	inv.Migrate()
	return &inv, nil
}

// Save overwrites the profile's draft. The identifier is assigned on first
// save and preserved from then on.
func (s *Store) Save(ctx context.Context, profile string, inv *invoice.Invoice) error {
	if inv.Identifier == "" {
		blank := invoice.Blank()
		inv.Identifier = blank.Identifier
	}
	if inv.Version == "" {
		inv.Version = invoice.CurrentVersion
	}
	raw, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	return s.kv.Set(ctx, draftKey(profile), string(raw))
}

// Clear resets the draft to a blank state with a fresh identifier.
func (s *Store) Clear(ctx context.Context, profile string) (*invoice.Invoice, error) {
	inv := invoice.Blank()
	if err := s.Save(ctx, profile, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// New starts a new invoice from the current draft: the header and notes
// sections stay intact, the invoice number is incremented, and the item table
// and customer details are cleared. The new draft gets its own identifier.
func (s *Store) New(ctx context.Context, profile string) (*invoice.Invoice, error) {
	cur, err := s.Load(ctx, profile)
	if err != nil {
		return nil, err
	}
	next := *cur
	next.Identifier = invoice.Blank().Identifier
	next.HeaderFields = make([]invoice.HeaderField, len(cur.HeaderFields))
	copy(next.HeaderFields, cur.HeaderFields)
	if n := next.Number(); n != "" {
		next.SetNumber(invoice.NextNumber(n))
	}
	next.InvoiceSubheaderFreeText = ""
	next.LineItems = []invoice.LineItem{}
	if err := s.Save(ctx, profile, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// Preset fills the draft with example data to get the user started.
func (s *Store) Preset(ctx context.Context, profile string) (*invoice.Invoice, error) {
	inv := invoice.Preset()
	if err := s.Save(ctx, profile, inv); err != nil {
		return nil, err
	}
	return inv, nil
}
