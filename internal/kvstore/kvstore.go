// Package kvstore persists submitted invoice snapshots and draft records in a
// key-value store. Snapshots are written field by field as a hash under
// {email}:invoice:{identifier}:{fileId}; a fresh file id per submission means
// resubmitting the same invoice creates a new entry instead of overwriting.
package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/wseagar/invoice-kitchen/internal/invoice"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("kvstore: not found")

// Key builds the storage key for one submission attempt.
func Key(email, identifier, fileID string) string {
	return fmt.Sprintf("%s:invoice:%s:%s", email, identifier, fileID)
}

// Store is the invoice snapshot store consumed by the pipeline and the
// renderer-facing view handler.
type Store interface {
	PutInvoice(ctx context.Context, key string, inv *invoice.Invoice) error
	GetInvoice(ctx context.Context, key string) (*invoice.Invoice, error)
}

// StringStore is a plain string KV used for per-profile draft records.
type StringStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
}
