// Package repository records one row per submission so "job submitted / job
// completed" is an explicit, pollable contract instead of two divergent code
// paths.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubmissionStatus enumerates the pipeline lifecycle of one submission.
type SubmissionStatus string

const (
	StatusQueued    SubmissionStatus = "queued"
	StatusRendering SubmissionStatus = "rendering"
	StatusRendered  SubmissionStatus = "rendered"
	StatusSent      SubmissionStatus = "sent"
	StatusFailed    SubmissionStatus = "failed"
)

// ErrNotFound is returned when no submission exists for a file id.
var ErrNotFound = errors.New("submission not found")

// Submission is a row in the submissions table. FileID doubles as the PDF
// object key; StorageKey is the invoice snapshot's KV key.
type Submission struct {
	FileID       string           `json:"fileId"`
	Email        string           `json:"email"`
	InvoiceID    string           `json:"invoiceId"`
	StorageKey   string           `json:"storageKey"`
	ObjectKey    *string          `json:"objectKey,omitempty"`
	Status       SubmissionStatus `json:"status"`
	ErrorMessage *string          `json:"errorMessage,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// SubmissionRepository wraps all SQL used by the API server and the worker.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository constructs a repository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Create inserts a queued submission before rendering begins.
func (r *SubmissionRepository) Create(ctx context.Context, sub *Submission) error {
	now := time.Now().UTC()
	sub.Status = StatusQueued
	sub.CreatedAt = now
	sub.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO submissions (file_id, email, invoice_id, storage_key, object_key, status, error_message, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sub.FileID, sub.Email, sub.InvoiceID, sub.StorageKey, nil, sub.Status, nil, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// Get returns a submission by file id.
func (r *SubmissionRepository) Get(ctx context.Context, fileID string) (*Submission, error) {
	var (
		sub       Submission
		objectKey sql.NullString
		errorMsg  sql.NullString
	)
	row := r.pool.QueryRow(ctx, `
		SELECT file_id, email, invoice_id, storage_key, object_key, status, error_message, created_at, updated_at
		FROM submissions WHERE file_id=$1
	`, fileID)
	if err := row.Scan(&sub.FileID, &sub.Email, &sub.InvoiceID, &sub.StorageKey, &objectKey, &sub.Status, &errorMsg, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select submission: %w", err)
	}
	if objectKey.Valid {
		key := objectKey.String
		sub.ObjectKey = &key
	}
	if errorMsg.Valid {
		msg := errorMsg.String
		sub.ErrorMessage = &msg
	}
	return &sub, nil
}

// MarkRendering sets the status to rendering.
func (r *SubmissionRepository) MarkRendering(ctx context.Context, fileID string) error {
	return r.updateStatus(ctx, fileID, StatusRendering, nil, nil)
}

// MarkRendered records the stored PDF's object key once the capture is safely
// in the artifact store. Without a callback URL this is the terminal success
// state; the caller fetches the PDF directly.
func (r *SubmissionRepository) MarkRendered(ctx context.Context, fileID, objectKey string) error {
	return r.updateStatus(ctx, fileID, StatusRendered, &objectKey, nil)
}

// MarkSent records the delivered PDF's object key.
func (r *SubmissionRepository) MarkSent(ctx context.Context, fileID, objectKey string) error {
	return r.updateStatus(ctx, fileID, StatusSent, &objectKey, nil)
}

// MarkFailed marks the submission as failed and stores the message.
func (r *SubmissionRepository) MarkFailed(ctx context.Context, fileID, msg string) error {
	return r.updateStatus(ctx, fileID, StatusFailed, nil, &msg)
}

func (r *SubmissionRepository) updateStatus(ctx context.Context, fileID string, status SubmissionStatus, objectKey *string, errorMsg *string) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		UPDATE submissions
		SET status=$1,
			object_key = COALESCE($2, object_key),
			error_message = $3,
			updated_at=$4
		WHERE file_id=$5
	`, status, objectKey, errorMsg, now, fileID)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	return nil
}
