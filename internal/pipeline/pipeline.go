// Package pipeline orchestrates a submission from CAPTCHA check to email
// delivery. The historical deployment variants (synchronous route, callback
// worker, direct browser worker) collapse here into one flow with pluggable
// backends for storage, rendering, and email, selected by configuration.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wseagar/invoice-kitchen/internal/config"
	"github.com/wseagar/invoice-kitchen/internal/invoice"
	"github.com/wseagar/invoice-kitchen/internal/kvstore"
	"github.com/wseagar/invoice-kitchen/internal/mailer"
	"github.com/wseagar/invoice-kitchen/internal/metrics"
	"github.com/wseagar/invoice-kitchen/internal/pdfstore"
	"github.com/wseagar/invoice-kitchen/internal/queue"
	"github.com/wseagar/invoice-kitchen/internal/render"
	"github.com/wseagar/invoice-kitchen/internal/repository"
	"github.com/wseagar/invoice-kitchen/internal/token"
)

// Sentinel errors mapped to HTTP statuses by the server: invalid captcha is a
// client error, a missing PDF is not found, a refused email is a server error.
var (
	ErrInvalidCaptcha = errors.New("pipeline: invalid captcha")
	ErrPDFNotFound    = errors.New("pipeline: pdf not found")
	ErrEmailFailed    = errors.New("pipeline: email not sent")
	ErrInvalidToken   = errors.New("pipeline: invalid token")
)

// CaptchaVerifier validates the anti-abuse token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, responseToken, remoteIP string) error
}

// Submissions records per-submission job state.
type Submissions interface {
	Create(ctx context.Context, sub *repository.Submission) error
	Get(ctx context.Context, fileID string) (*repository.Submission, error)
	MarkRendering(ctx context.Context, fileID string) error
	MarkSent(ctx context.Context, fileID, objectKey string) error
	MarkFailed(ctx context.Context, fileID, msg string) error
}

// RenderQueue hands render jobs to the worker in callback mode.
type RenderQueue interface {
	EnqueueRender(ctx context.Context, payload queue.RenderPayload) error
}

// ArtifactStore holds rendered PDFs.
type ArtifactStore interface {
	Put(ctx context.Context, fileID string, data []byte) error
	Get(ctx context.Context, fileID string) ([]byte, error)
	PresignURL(ctx context.Context, fileID string, expiry time.Duration) (string, error)
}

// Deps collects every backend the pipeline drives. All of them are interfaces
// so tests and alternative deployments can swap implementations.
type Deps struct {
	KV       kvstore.Store
	Captcha  CaptchaVerifier
	Subs     Submissions
	Queue    RenderQueue
	PDFs     ArtifactStore
	Mailer   mailer.Mailer
	Renderer render.Renderer
	Minter   *token.Minter
	Logger   zerolog.Logger
}

// Pipeline runs submissions end to end.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
}

// New builds a Pipeline.
func New(cfg *config.Config, deps Deps) *Pipeline {
	return &Pipeline{cfg: cfg, deps: deps}
}

// SubmitRequest is the validated body of POST /api/invoice.
type SubmitRequest struct {
	Email    string
	Invoice  *invoice.Invoice
	Token    string
	RemoteIP string
}

// SubmitResult reports what a submission produced. Sent is true only in sync
// mode, where the email goes out before the response.
type SubmitResult struct {
	FileID     string
	StorageKey string
	Token      string
	Sent       bool
}

// Submit runs the front half of the pipeline: captcha, persistence, token
// minting, then either an inline render+send or a queued render job.
func (p *Pipeline) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if !p.cfg.IsDevelopment() {
		if err := p.deps.Captcha.Verify(ctx, req.Token, req.RemoteIP); err != nil {
			metrics.SubmissionsTotal.WithLabelValues(p.cfg.RenderMode, "captcha_rejected").Inc()
			return nil, fmt.Errorf("%w: %v", ErrInvalidCaptcha, err)
		}
	}

	inv := req.Invoice
	inv.Migrate()

	fileID := uuid.NewString()
	key := kvstore.Key(req.Email, inv.Identifier, fileID)
	if err := p.deps.KV.PutInvoice(ctx, key, inv); err != nil {
		return nil, fmt.Errorf("persist invoice: %w", err)
	}

	jwtToken, err := p.deps.Minter.Mint(key)
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}

	sub := &repository.Submission{
		FileID:     fileID,
		Email:      req.Email,
		InvoiceID:  inv.Identifier,
		StorageKey: key,
	}
	if err := p.deps.Subs.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("record submission: %w", err)
	}

	result := &SubmitResult{FileID: fileID, StorageKey: key, Token: jwtToken}
	log := p.deps.Logger.With().Str("fileId", fileID).Str("email", req.Email).Logger()

	if p.cfg.RenderMode == config.RenderModeSync {
		if err := p.renderAndSend(ctx, log, jwtToken, fileID, req.Email, inv); err != nil {
			metrics.SubmissionsTotal.WithLabelValues(p.cfg.RenderMode, "failed").Inc()
			return nil, err
		}
		result.Sent = true
		metrics.SubmissionsTotal.WithLabelValues(p.cfg.RenderMode, "sent").Inc()
		return result, nil
	}

	payload := queue.RenderPayload{
		JWTToken:    jwtToken,
		FileID:      fileID,
		Email:       req.Email,
		CallbackURL: p.cfg.BaseURL + "/api/invoice",
	}
	if err := p.deps.Queue.EnqueueRender(ctx, payload); err != nil {
		_ = p.deps.Subs.MarkFailed(ctx, fileID, err.Error())
		metrics.SubmissionsTotal.WithLabelValues(p.cfg.RenderMode, "failed").Inc()
		return nil, fmt.Errorf("enqueue render: %w", err)
	}
	log.Info().Msg("render job queued")
	metrics.SubmissionsTotal.WithLabelValues(p.cfg.RenderMode, "queued").Inc()
	return result, nil
}

// renderAndSend is the sync-mode back half: render inline, stash the PDF, and
// email it before the submission request returns.
func (p *Pipeline) renderAndSend(ctx context.Context, log zerolog.Logger, jwtToken, fileID, email string, inv *invoice.Invoice) error {
	if err := p.deps.Subs.MarkRendering(ctx, fileID); err != nil {
		return fmt.Errorf("mark rendering: %w", err)
	}
	pageURL := p.ViewURL(jwtToken)
	pdf, err := p.deps.Renderer.RenderPDF(ctx, render.Job{PageURL: pageURL, Invoice: inv})
	if err != nil {
		metrics.RendersTotal.WithLabelValues("failed").Inc()
		_ = p.deps.Subs.MarkFailed(ctx, fileID, err.Error())
		return fmt.Errorf("%w: %v", ErrPDFNotFound, err)
	}
	if err := render.Verify(pdf); err != nil {
		metrics.RendersTotal.WithLabelValues("invalid").Inc()
		_ = p.deps.Subs.MarkFailed(ctx, fileID, err.Error())
		return fmt.Errorf("%w: %v", ErrPDFNotFound, err)
	}
	metrics.RendersTotal.WithLabelValues("ok").Inc()
	if err := p.deps.PDFs.Put(ctx, fileID, pdf); err != nil {
		_ = p.deps.Subs.MarkFailed(ctx, fileID, err.Error())
		return fmt.Errorf("store pdf: %w", err)
	}
	if err := p.deps.Mailer.SendInvoice(ctx, mailer.Message{To: email, InvoiceURL: pageURL, PDF: pdf}); err != nil {
		metrics.EmailsTotal.WithLabelValues("failed").Inc()
		_ = p.deps.Subs.MarkFailed(ctx, fileID, err.Error())
		return fmt.Errorf("%w: %v", ErrEmailFailed, err)
	}
	metrics.EmailsTotal.WithLabelValues("ok").Inc()
	if err := p.deps.Subs.MarkSent(ctx, fileID, fileID); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	log.Info().Msg("invoice rendered and emailed")
	return nil
}

// CompleteRequest is the body of the render worker's one-shot PUT callback.
type CompleteRequest struct {
	Token  string
	FileID string
	Email  string
	PDFURL string
}

// Complete finishes a callback-mode submission once the worker reports the
// PDF location: verify the token, fetch the artifact, send the email.
func (p *Pipeline) Complete(ctx context.Context, req CompleteRequest) error {
	key, err := p.deps.Minter.Verify(req.Token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	fileID := req.FileID
	if req.PDFURL != "" {
		if id, err := pdfstore.FileIDFromURL(req.PDFURL); err == nil {
			fileID = id
		}
	}

	pdf, err := p.deps.PDFs.Get(ctx, fileID)
	if err != nil || len(pdf) == 0 {
		_ = p.deps.Subs.MarkFailed(ctx, req.FileID, "pdf missing at callback")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPDFNotFound, err)
		}
		return ErrPDFNotFound
	}

	viewURL := p.ViewURL(req.Token)
	if err := p.deps.Mailer.SendInvoice(ctx, mailer.Message{To: req.Email, InvoiceURL: viewURL, PDF: pdf}); err != nil {
		metrics.EmailsTotal.WithLabelValues("failed").Inc()
		_ = p.deps.Subs.MarkFailed(ctx, req.FileID, err.Error())
		return fmt.Errorf("%w: %v", ErrEmailFailed, err)
	}
	metrics.EmailsTotal.WithLabelValues("ok").Inc()
	if err := p.deps.Subs.MarkSent(ctx, req.FileID, fileID); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	p.deps.Logger.Info().Str("fileId", req.FileID).Str("storageKey", key).Msg("callback completed, invoice emailed")
	return nil
}

// Status returns the job record for a file id.
func (p *Pipeline) Status(ctx context.Context, fileID string) (*repository.Submission, error) {
	return p.deps.Subs.Get(ctx, fileID)
}

// ViewURL builds the tokenized invoice page URL the renderer loads and the
// email links to.
func (p *Pipeline) ViewURL(jwtToken string) string {
	return p.cfg.BaseURL + "/invoice/view?token=" + url.QueryEscape(jwtToken)
}
