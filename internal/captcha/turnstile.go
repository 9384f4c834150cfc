// Package captcha validates Cloudflare Turnstile anti-abuse tokens against
// the siteverify endpoint.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidToken marks a token that Turnstile rejected, as opposed to a
// transport failure reaching the verification service.
var ErrInvalidToken = errors.New("captcha: invalid token")

const siteVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// Verifier calls the Turnstile siteverify API.
type Verifier struct {
	secret   string
	endpoint string
	client   *http.Client
}

// Option customizes a Verifier.
type Option func(*Verifier)

// WithEndpoint overrides the siteverify URL, used by tests.
func WithEndpoint(endpoint string) Option {
	return func(v *Verifier) { v.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) { v.client = client }
}

// NewVerifier creates a Verifier for the given shared secret.
func NewVerifier(secret string, opts ...Option) *Verifier {
	v := &Verifier{
		secret:   secret,
		endpoint: siteVerifyURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify posts the token to siteverify and returns ErrInvalidToken when the
// challenge fails. remoteIP is forwarded when known.
func (v *Verifier) Verify(ctx context.Context, responseToken, remoteIP string) error {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", responseToken)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("call siteverify: %w", err)
	}
	defer resp.Body.Close()
	var body siteVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode siteverify response: %w", err)
	}
	if !body.Success {
		return fmt.Errorf("%w: %s", ErrInvalidToken, strings.Join(body.ErrorCodes, ","))
	}
	return nil
}
