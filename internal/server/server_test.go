package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wseagar/invoice-kitchen/internal/config"
	"github.com/wseagar/invoice-kitchen/internal/draft"
	"github.com/wseagar/invoice-kitchen/internal/invoice"
	"github.com/wseagar/invoice-kitchen/internal/kvstore"
	"github.com/wseagar/invoice-kitchen/internal/mailer"
	"github.com/wseagar/invoice-kitchen/internal/pipeline"
	"github.com/wseagar/invoice-kitchen/internal/queue"
	"github.com/wseagar/invoice-kitchen/internal/render"
	"github.com/wseagar/invoice-kitchen/internal/repository"
	"github.com/wseagar/invoice-kitchen/internal/token"
)

type fakeCaptcha struct {
	err   error
	calls int
}

func (f *fakeCaptcha) Verify(context.Context, string, string) error {
	f.calls++
	return f.err
}

type fakeSubs struct {
	mu   sync.Mutex
	rows map[string]*repository.Submission
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{rows: make(map[string]*repository.Submission)}
}

func (f *fakeSubs) Create(_ context.Context, sub *repository.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sub
	cp.Status = repository.StatusQueued
	f.rows[sub.FileID] = &cp
	return nil
}

func (f *fakeSubs) Get(_ context.Context, fileID string) (*repository.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.rows[fileID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeSubs) setStatus(fileID string, status repository.SubmissionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.rows[fileID]; ok {
		sub.Status = status
	}
	return nil
}

func (f *fakeSubs) MarkRendering(_ context.Context, fileID string) error {
	return f.setStatus(fileID, repository.StatusRendering)
}

func (f *fakeSubs) MarkSent(_ context.Context, fileID, _ string) error {
	return f.setStatus(fileID, repository.StatusSent)
}

func (f *fakeSubs) MarkFailed(_ context.Context, fileID, _ string) error {
	return f.setStatus(fileID, repository.StatusFailed)
}

type fakeQueue struct {
	mu       sync.Mutex
	payloads []queue.RenderPayload
}

func (f *fakeQueue) EnqueueRender(_ context.Context, payload queue.RenderPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

type fakeArtifacts struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{objects: make(map[string][]byte)}
}

func (f *fakeArtifacts) Put(_ context.Context, fileID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[fileID] = data
	return nil
}

func (f *fakeArtifacts) Get(_ context.Context, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[fileID]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (f *fakeArtifacts) PresignURL(_ context.Context, fileID string, _ time.Duration) (string, error) {
	return "http://minio.local/invoice-pdfs/" + fileID + ".pdf", nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (f *fakeMailer) SendInvoice(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fixture struct {
	srv     *httptest.Server
	kv      *kvstore.MemoryStore
	subs    *fakeSubs
	queue   *fakeQueue
	pdfs    *fakeArtifacts
	mail    *fakeMailer
	captcha *fakeCaptcha
	minter  *token.Minter
}

func newFixture(t *testing.T, env, mode string) *fixture {
	t.Helper()
	cfg := &config.Config{
		Address:        ":0",
		BaseURL:        "http://localhost:8080",
		Env:            env,
		AllowedOrigins: []string{"https://invoice.kitchen"},
		SigningKey:     []byte("test-signing-key"),
		TokenTTL:       time.Hour,
		RenderMode:     mode,
	}
	f := &fixture{
		kv:      kvstore.NewMemoryStore(),
		subs:    newFakeSubs(),
		queue:   &fakeQueue{},
		pdfs:    newFakeArtifacts(),
		mail:    &fakeMailer{},
		captcha: &fakeCaptcha{},
		minter:  token.NewMinter(cfg.SigningKey, cfg.TokenTTL),
	}
	pipe := pipeline.New(cfg, pipeline.Deps{
		KV:       f.kv,
		Captcha:  f.captcha,
		Subs:     f.subs,
		Queue:    f.queue,
		PDFs:     f.pdfs,
		Mailer:   f.mail,
		Renderer: render.NewBuiltinRenderer(),
		Minter:   f.minter,
		Logger:   zerolog.Nop(),
	})
	drafts := draft.NewStore(f.kv)
	server := New(cfg, pipe, drafts, f.kv, f.minter, zerolog.Nop())
	f.srv = httptest.NewServer(server.Routes())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestSubmitSyncSendsEmail(t *testing.T) {
	f := newFixture(t, "development", config.RenderModeSync)

	resp := f.postJSON(t, "/api/invoice", submitRequest{Email: "a@b.com", Invoice: invoice.Preset()})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody[submitResponse](t, resp)
	if body.FileID == "" || body.Status != "sent" {
		t.Fatalf("body = %+v", body)
	}
	if len(f.mail.sent) != 1 || f.mail.sent[0].To != "a@b.com" || len(f.mail.sent[0].PDF) == 0 {
		t.Fatalf("mail sent = %+v", f.mail.sent)
	}
	sub, err := f.subs.Get(context.Background(), body.FileID)
	if err != nil || sub.Status != repository.StatusSent {
		t.Fatalf("submission = %+v, err = %v", sub, err)
	}
}

func TestSubmitRejectsInvalidCaptcha(t *testing.T) {
	f := newFixture(t, "production", config.RenderModeSync)
	f.captcha.err = errors.New("turnstile rejected")

	resp := f.postJSON(t, "/api/invoice", submitRequest{Email: "a@b.com", Invoice: invoice.Preset(), Token: "bad"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if f.captcha.calls != 1 {
		t.Fatalf("captcha calls = %d", f.captcha.calls)
	}
	if len(f.kv.Keys()) != 0 {
		t.Fatalf("invoice persisted despite rejected captcha")
	}
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	f := newFixture(t, "development", config.RenderModeSync)
	resp := f.postJSON(t, "/api/invoice", submitRequest{Email: "a@b.com"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSubmitCallbackModeQueues(t *testing.T) {
	f := newFixture(t, "development", config.RenderModeCallback)

	resp := f.postJSON(t, "/api/invoice", submitRequest{Email: "a@b.com", Invoice: invoice.Preset()})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	body := decodeBody[submitResponse](t, resp)
	if body.Status != "queued" {
		t.Fatalf("body = %+v", body)
	}
	if len(f.queue.payloads) != 1 || f.queue.payloads[0].FileID != body.FileID {
		t.Fatalf("queued payloads = %+v", f.queue.payloads)
	}
	if len(f.mail.sent) != 0 {
		t.Fatalf("email sent before render completed")
	}
}

func TestCallbackAcceptsLegacyFieldName(t *testing.T) {
	f := newFixture(t, "development", config.RenderModeCallback)
	jwtToken, err := f.minter.Mint("a@b.com:invoice:inv1:file1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	_ = f.subs.Create(context.Background(), &repository.Submission{FileID: "file1", Email: "a@b.com"})
	_ = f.pdfs.Put(context.Background(), "file1", []byte("%PDF-1.4 data"))

	raw, _ := json.Marshal(map[string]string{
		"jwtToken": jwtToken,
		"fileId":   "file1",
		"email":    "a@b.com",
		"apifyUrl": "http://minio.local/invoice-pdfs/file1.pdf",
	})
	req, err := http.NewRequest(http.MethodPut, f.srv.URL+"/api/invoice", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put callback: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(f.mail.sent) != 1 {
		t.Fatalf("mail sent = %+v", f.mail.sent)
	}
	sub, _ := f.subs.Get(context.Background(), "file1")
	if sub.Status != repository.StatusSent {
		t.Fatalf("status = %s, want sent", sub.Status)
	}
}

func TestCallbackRejectsBadToken(t *testing.T) {
	f := newFixture(t, "development", config.RenderModeCallback)
	raw, _ := json.Marshal(map[string]string{"jwtToken": "garbage", "fileId": "file1", "email": "a@b.com"})
	req, _ := http.NewRequest(http.MethodPut, f.srv.URL+"/api/invoice", bytes.NewReader(raw))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put callback: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, "development", config.RenderModeCallback)
	_ = f.subs.Create(context.Background(), &repository.Submission{FileID: "file1", Email: "a@b.com"})

	resp, err := http.Get(f.srv.URL + "/api/invoice/file1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	body := decodeBody[repository.Submission](t, resp)
	if body.FileID != "file1" || body.Status != repository.StatusQueued {
		t.Fatalf("body = %+v", body)
	}

	resp, err = http.Get(f.srv.URL + "/api/invoice/missing")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestViewRendersInvoicePage(t *testing.T) {
	f := newFixture(t, "development", config.RenderModeSync)
	inv := invoice.Preset()
	key := kvstore.Key("a@b.com", inv.Identifier, "file1")
	if err := f.kv.PutInvoice(context.Background(), key, inv); err != nil {
		t.Fatalf("put invoice: %v", err)
	}
	jwtToken, err := f.minter.Mint(key)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	resp, err := http.Get(f.srv.URL + "/invoice/view?token=" + jwtToken)
	if err != nil {
		t.Fatalf("get view: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, `id="invoice-page"`) {
		t.Fatalf("page missing invoice-page root:\n%s", html)
	}
	if !strings.Contains(html, "The Pastry Shop") || !strings.Contains(html, "Croissants") {
		t.Fatalf("page missing invoice content")
	}
	if !strings.Contains(html, "$2173.50") {
		t.Fatalf("page missing total:\n%s", html)
	}
	if !strings.Contains(html, "Tax (15%)") {
		t.Fatalf("page missing tax row:\n%s", html)
	}
}

func TestViewRejectsInvalidToken(t *testing.T) {
	f := newFixture(t, "development", config.RenderModeSync)
	resp, err := http.Get(f.srv.URL + "/invoice/view?token=garbage")
	if err != nil {
		t.Fatalf("get view: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestDraftLifecycle(t *testing.T) {
	f := newFixture(t, "development", config.RenderModeSync)

	resp, err := http.Get(f.srv.URL + "/api/draft/alice/")
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	blank := decodeBody[invoice.Invoice](t, resp)
	if blank.Version != invoice.CurrentVersion || blank.Identifier == "" {
		t.Fatalf("blank draft = %+v", blank)
	}

	blank.BusinessName = "Alice's Bakery"
	blank.SetNumber("INV-0009")
	raw, _ := json.Marshal(blank)
	req, _ := http.NewRequest(http.MethodPut, f.srv.URL+"/api/draft/alice/", bytes.NewReader(raw))
	putResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put draft: %v", err)
	}
	putResp.Body.Close()
	if putResp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d", putResp.StatusCode)
	}

	resp = f.postJSON(t, "/api/draft/alice/new", nil)
	next := decodeBody[invoice.Invoice](t, resp)
	if next.Identifier == blank.Identifier {
		t.Fatalf("new draft kept the old identifier")
	}
	if next.Number() != "INV-0010" {
		t.Fatalf("number = %q, want INV-0010", next.Number())
	}
	if next.BusinessName != "Alice's Bakery" {
		t.Fatalf("business name not carried over")
	}
}

func TestCORSReflectsAllowedOrigin(t *testing.T) {
	f := newFixture(t, "development", config.RenderModeSync)

	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/healthz", nil)
	req.Header.Set("Origin", "https://invoice.kitchen")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://invoice.kitchen" {
		t.Fatalf("allow origin = %q", got)
	}

	req, _ = http.NewRequest(http.MethodGet, f.srv.URL+"/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("allow origin = %q, want empty", got)
	}
}
