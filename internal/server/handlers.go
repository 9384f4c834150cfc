package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wseagar/invoice-kitchen/internal/invoice"
	"github.com/wseagar/invoice-kitchen/internal/kvstore"
	"github.com/wseagar/invoice-kitchen/internal/pipeline"
	"github.com/wseagar/invoice-kitchen/internal/repository"
)

type submitRequest struct {
	Email   string           `json:"email"`
	Invoice *invoice.Invoice `json:"invoice"`
	Token   string           `json:"token"`
}

type submitResponse struct {
	FileID string `json:"fileId"`
	Status string `json:"status"`
}

// callbackRequest is the worker's PUT body. ApifyURL is the legacy field name
// older render workers send; PDFURL wins when both are present.
type callbackRequest struct {
	JWTToken string `json:"jwtToken"`
	FileID   string `json:"fileId"`
	Email    string `json:"email"`
	PDFURL   string `json:"pdfUrl"`
	ApifyURL string `json:"apifyUrl"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Invoice == nil {
		writeError(w, http.StatusBadRequest, "email and invoice are required")
		return
	}

	result, err := s.pipe.Submit(r.Context(), pipeline.SubmitRequest{
		Email:    req.Email,
		Invoice:  req.Invoice,
		Token:    req.Token,
		RemoteIP: remoteIP(r),
	})
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	if result.Sent {
		writeJSON(w, http.StatusOK, submitResponse{FileID: result.FileID, Status: string(repository.StatusSent)})
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{FileID: result.FileID, Status: string(repository.StatusQueued)})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pdfURL := req.PDFURL
	if pdfURL == "" {
		pdfURL = req.ApifyURL
	}
	err := s.pipe.Complete(r.Context(), pipeline.CompleteRequest{
		Token:  req.JWTToken,
		FileID: req.FileID,
		Email:  req.Email,
		PDFURL: pdfURL,
	})
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(repository.StatusSent)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	sub, err := s.pipe.Status(r.Context(), fileID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("fileId", fileID).Msg("status lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	rawToken := r.URL.Query().Get("token")
	if rawToken == "" {
		writeError(w, http.StatusUnauthorized, "token required")
		return
	}
	key, err := s.minter.Verify(rawToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	inv, err := s.kv.GetInvoice(r.Context(), key)
	if errors.Is(err, kvstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "invoice not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("load invoice failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.renderViewPage(w, inv)
}

func (s *Server) handleDraftGet(w http.ResponseWriter, r *http.Request) {
	inv, err := s.drafts.Load(r.Context(), chi.URLParam(r, "profile"))
	if err != nil {
		s.log.Error().Err(err).Msg("load draft failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleDraftPut(w http.ResponseWriter, r *http.Request) {
	var inv invoice.Invoice
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inv.Migrate()
	if err := s.drafts.Save(r.Context(), chi.URLParam(r, "profile"), &inv); err != nil {
		s.log.Error().Err(err).Msg("save draft failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, &inv)
}

func (s *Server) handleDraftNew(w http.ResponseWriter, r *http.Request) {
	s.draftAction(w, r, s.drafts.New)
}

func (s *Server) handleDraftClear(w http.ResponseWriter, r *http.Request) {
	s.draftAction(w, r, s.drafts.Clear)
}

func (s *Server) handleDraftPreset(w http.ResponseWriter, r *http.Request) {
	s.draftAction(w, r, s.drafts.Preset)
}

func (s *Server) draftAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, profile string) (*invoice.Invoice, error)) {
	inv, err := fn(r.Context(), chi.URLParam(r, "profile"))
	if err != nil {
		s.log.Error().Err(err).Msg("draft action failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidCaptcha):
		writeError(w, http.StatusBadRequest, "Invalid captcha")
	case errors.Is(err, pipeline.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "Invalid token")
	case errors.Is(err, pipeline.ErrPDFNotFound):
		writeError(w, http.StatusNotFound, "PDF not found")
	case errors.Is(err, pipeline.ErrEmailFailed):
		writeError(w, http.StatusInternalServerError, "Email not sent")
	default:
		s.log.Error().Err(err).Msg("submission failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
