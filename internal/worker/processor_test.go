package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/wseagar/invoice-kitchen/internal/invoice"
	"github.com/wseagar/invoice-kitchen/internal/queue"
	"github.com/wseagar/invoice-kitchen/internal/render"
)

type stubRenderer struct {
	err  error
	pdf  []byte
	urls []string
}

func (s *stubRenderer) RenderPDF(_ context.Context, job render.Job) ([]byte, error) {
	s.urls = append(s.urls, job.PageURL)
	if s.err != nil {
		return nil, s.err
	}
	return s.pdf, nil
}

type stubArtifacts struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *stubArtifacts) Put(_ context.Context, fileID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[fileID] = data
	return nil
}

func (s *stubArtifacts) PresignURL(_ context.Context, fileID string, _ time.Duration) (string, error) {
	return "http://minio.local/invoice-pdfs/" + fileID + ".pdf", nil
}

type stubSubs struct {
	statuses []string
	lastErr  string
}

func (s *stubSubs) MarkRendering(_ context.Context, _ string) error {
	s.statuses = append(s.statuses, "rendering")
	return nil
}

func (s *stubSubs) MarkRendered(_ context.Context, _, _ string) error {
	s.statuses = append(s.statuses, "rendered")
	return nil
}

func (s *stubSubs) MarkFailed(_ context.Context, _, msg string) error {
	s.statuses = append(s.statuses, "failed")
	s.lastErr = msg
	return nil
}

func renderTask(t *testing.T, payload queue.RenderPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(queue.RenderInvoiceTask, data)
}

func validPDF(t *testing.T) []byte {
	t.Helper()
	data, err := render.NewBuiltinRenderer().RenderPDF(context.Background(), render.Job{Invoice: invoice.Preset()})
	if err != nil {
		t.Fatalf("fixture pdf: %v", err)
	}
	return data
}

func TestHandleRenderStoresAndCallsBack(t *testing.T) {
	var (
		mu   sync.Mutex
		gotM string
		body callbackBody
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotM = r.Method
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	renderer := &stubRenderer{pdf: validPDF(t)}
	artifacts := &stubArtifacts{}
	subs := &stubSubs{}
	p := NewProcessor(renderer, artifacts, subs, "http://localhost:8080", time.Hour, zerolog.Nop())

	payload := queue.RenderPayload{
		JWTToken:    "jwt-abc",
		FileID:      "file1",
		Email:       "a@b.com",
		CallbackURL: srv.URL,
	}
	if err := p.handleRender(context.Background(), renderTask(t, payload)); err != nil {
		t.Fatalf("handle render: %v", err)
	}

	if len(renderer.urls) != 1 || renderer.urls[0] != "http://localhost:8080/invoice/view?token=jwt-abc" {
		t.Fatalf("rendered urls = %v", renderer.urls)
	}
	if len(artifacts.objects["file1"]) == 0 {
		t.Fatalf("pdf not stored")
	}
	mu.Lock()
	defer mu.Unlock()
	if gotM != http.MethodPut {
		t.Fatalf("callback method = %q, want PUT", gotM)
	}
	if body.JWTToken != "jwt-abc" || body.FileID != "file1" || body.Email != "a@b.com" {
		t.Fatalf("callback body = %+v", body)
	}
	if body.PDFURL != "http://minio.local/invoice-pdfs/file1.pdf" {
		t.Fatalf("callback pdf url = %q", body.PDFURL)
	}
	if len(subs.statuses) != 2 || subs.statuses[0] != "rendering" || subs.statuses[1] != "rendered" {
		t.Fatalf("statuses = %v", subs.statuses)
	}
}

func TestHandleRenderWithoutCallback(t *testing.T) {
	renderer := &stubRenderer{pdf: validPDF(t)}
	artifacts := &stubArtifacts{}
	subs := &stubSubs{}
	p := NewProcessor(renderer, artifacts, subs, "http://localhost:8080", time.Hour, zerolog.Nop())

	payload := queue.RenderPayload{JWTToken: "jwt", FileID: "file1", Email: "a@b.com"}
	if err := p.handleRender(context.Background(), renderTask(t, payload)); err != nil {
		t.Fatalf("handle render: %v", err)
	}
	if len(artifacts.objects["file1"]) == 0 {
		t.Fatalf("pdf not stored")
	}
}

func TestHandleRenderFailureMarksFailed(t *testing.T) {
	renderer := &stubRenderer{err: errors.New("browser crashed")}
	subs := &stubSubs{}
	p := NewProcessor(renderer, &stubArtifacts{}, subs, "http://localhost:8080", time.Hour, zerolog.Nop())

	payload := queue.RenderPayload{JWTToken: "jwt", FileID: "file1", Email: "a@b.com", CallbackURL: "http://unreachable.invalid"}
	if err := p.handleRender(context.Background(), renderTask(t, payload)); err == nil {
		t.Fatalf("expected error")
	}
	if len(subs.statuses) == 0 || subs.statuses[len(subs.statuses)-1] != "failed" {
		t.Fatalf("statuses = %v", subs.statuses)
	}
	if subs.lastErr == "" {
		t.Fatalf("failure message not recorded")
	}
}

func TestHandleRenderRejectsCorruptCapture(t *testing.T) {
	renderer := &stubRenderer{pdf: []byte("not a pdf")}
	subs := &stubSubs{}
	p := NewProcessor(renderer, &stubArtifacts{}, subs, "http://localhost:8080", time.Hour, zerolog.Nop())

	payload := queue.RenderPayload{JWTToken: "jwt", FileID: "file1", Email: "a@b.com"}
	if err := p.handleRender(context.Background(), renderTask(t, payload)); err == nil {
		t.Fatalf("expected error for corrupt capture")
	}
}
