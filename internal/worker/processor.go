// Package worker consumes render jobs from the queue: it prints the tokenized
// invoice page to PDF, stores the capture, and issues the one-shot completion
// callback when the submission asked for one.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/wseagar/invoice-kitchen/internal/metrics"
	"github.com/wseagar/invoice-kitchen/internal/queue"
	"github.com/wseagar/invoice-kitchen/internal/render"
)

// Artifacts is the slice of the PDF store the worker needs.
type Artifacts interface {
	Put(ctx context.Context, fileID string, data []byte) error
	PresignURL(ctx context.Context, fileID string, expiry time.Duration) (string, error)
}

// Submissions is the slice of the repository the worker needs.
type Submissions interface {
	MarkRendering(ctx context.Context, fileID string) error
	MarkRendered(ctx context.Context, fileID, objectKey string) error
	MarkFailed(ctx context.Context, fileID, msg string) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	renderer   render.Renderer
	artifacts  Artifacts
	subs       Submissions
	baseURL    string
	presignTTL time.Duration
	client     *http.Client
	log        zerolog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(renderer render.Renderer, artifacts Artifacts, subs Submissions, baseURL string, presignTTL time.Duration, log zerolog.Logger) *Processor {
	return &Processor{
		renderer:   renderer,
		artifacts:  artifacts,
		subs:       subs,
		baseURL:    baseURL,
		presignTTL: presignTTL,
		client:     &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

// Handler registers the render job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.RenderInvoiceTask, p.handleRender)
	return mux
}

func (p *Processor) handleRender(ctx context.Context, task *asynq.Task) error {
	var payload queue.RenderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	log := p.log.With().Str("fileId", payload.FileID).Str("email", payload.Email).Logger()
	failure := func(err error) error {
		log.Error().Err(err).Msg("render job failed")
		metrics.RendersTotal.WithLabelValues("failed").Inc()
		_ = p.subs.MarkFailed(ctx, payload.FileID, err.Error())
		return err
	}

	if err := p.subs.MarkRendering(ctx, payload.FileID); err != nil {
		return failure(err)
	}
	pageURL := p.baseURL + "/invoice/view?token=" + url.QueryEscape(payload.JWTToken)
	pdf, err := p.renderer.RenderPDF(ctx, render.Job{PageURL: pageURL})
	if err != nil {
		return failure(err)
	}
	if err := render.Verify(pdf); err != nil {
		return failure(err)
	}
	metrics.RendersTotal.WithLabelValues("ok").Inc()
	if err := p.artifacts.Put(ctx, payload.FileID, pdf); err != nil {
		return failure(err)
	}
	if err := p.subs.MarkRendered(ctx, payload.FileID, payload.FileID); err != nil {
		return failure(err)
	}
	pdfURL, err := p.artifacts.PresignURL(ctx, payload.FileID, p.presignTTL)
	if err != nil {
		return failure(err)
	}
	log.Info().Int("bytes", len(pdf)).Msg("invoice rendered")

	if payload.CallbackURL == "" {
		return nil
	}
	// Best-effort one-shot notification; a failed callback is logged but does
	// not fail the job, the PDF is already stored and fetchable.
	p.callback(ctx, log, payload, pdfURL)
	return nil
}

type callbackBody struct {
	JWTToken string `json:"jwtToken"`
	FileID   string `json:"fileId"`
	Email    string `json:"email"`
	PDFURL   string `json:"pdfUrl"`
}

func (p *Processor) callback(ctx context.Context, log zerolog.Logger, payload queue.RenderPayload, pdfURL string) {
	body, err := json.Marshal(callbackBody{
		JWTToken: payload.JWTToken,
		FileID:   payload.FileID,
		Email:    payload.Email,
		PDFURL:   pdfURL,
	})
	if err != nil {
		log.Error().Err(err).Msg("encode callback body")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, payload.CallbackURL, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("build callback request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("callback request failed")
		return
	}
	defer resp.Body.Close()
	log.Info().Int("status", resp.StatusCode).Str("url", payload.CallbackURL).Msg("callback delivered")
}
