// Package queue defines the asynq tasks exchanged between the API server and
// the render worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// RenderInvoiceTask is scheduled for each submission in callback mode.
	RenderInvoiceTask = "invoice:render"
)

// RenderPayload tells the worker which invoice page to print. The worker only
// ever sees the signed token, never storage credentials.
type RenderPayload struct {
	JWTToken    string `json:"jwtToken"`
	FileID      string `json:"fileId"`
	Email       string `json:"email"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// Client enqueues render jobs. It exists so the pipeline can swap in a fake
// during tests.
type Client struct {
	client *asynq.Client
}

// NewClient wraps an asynq client.
func NewClient(client *asynq.Client) *Client {
	return &Client{client: client}
}

// EnqueueRender queues a render job. Failed submissions are abandoned rather
// than retried, so the task gets no retry budget.
func (c *Client) EnqueueRender(ctx context.Context, payload RenderPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(RenderInvoiceTask, data)
	if _, err := c.client.EnqueueContext(ctx, task, asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("enqueue render task: %w", err)
	}
	return nil
}
