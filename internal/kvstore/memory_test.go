package kvstore

import (
	"context"
	"errors"
	"testing"

	"github.com/wseagar/invoice-kitchen/internal/invoice"
)

func TestKeyShape(t *testing.T) {
	got := Key("a@b.com", "inv1", "file1")
	if got != "a@b.com:invoice:inv1:file1" {
		t.Fatalf("key = %q", got)
	}
}

func TestMemoryStoreInvoiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	inv := invoice.Preset()
	key := Key("a@b.com", inv.Identifier, "file1")

	if err := store.PutInvoice(ctx, key, inv); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.GetInvoice(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Identifier != inv.Identifier || got.BusinessName != inv.BusinessName {
		t.Fatalf("snapshot mismatch: %+v", got)
	}

	if _, err := store.GetInvoice(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreResubmitCreatesNewEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	inv := invoice.Preset()

	k1 := Key("a@b.com", inv.Identifier, "file1")
	k2 := Key("a@b.com", inv.Identifier, "file2")
	if err := store.PutInvoice(ctx, k1, inv); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.PutInvoice(ctx, k2, inv); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got := len(store.Keys()); got != 2 {
		t.Fatalf("expected 2 entries, got %d", got)
	}
}

func TestMemoryStoreStrings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Set(ctx, "draft:p1", `{"version":"2"}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, err := store.Get(ctx, "draft:p1")
	if err != nil || val != `{"version":"2"}` {
		t.Fatalf("get = %q, %v", val, err)
	}
	if err := store.Del(ctx, "draft:p1"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := store.Get(ctx, "draft:p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after del, got %v", err)
	}
}
