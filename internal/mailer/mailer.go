// Package mailer delivers the rendered invoice as an email attachment. One
// transactional send per submission, no retry; the provider's immediate
// accept/reject is the only delivery signal.
package mailer

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/resend/resend-go/v2"
)

const subject = "Invoice Kitchen - Your invoice is ready!"

// Message is one outgoing invoice email.
type Message struct {
	To         string
	InvoiceURL string
	PDF        []byte
}

// Mailer sends invoice emails.
type Mailer interface {
	SendInvoice(ctx context.Context, msg Message) error
}

// ResendMailer sends through the Resend API.
type ResendMailer struct {
	client *resend.Client
	from   string
}

// NewResend creates a ResendMailer.
func NewResend(apiKey, from string) *ResendMailer {
	return &ResendMailer{client: resend.NewClient(apiKey), from: from}
}

// SendInvoice sends a single email with the PDF attached and a link back to
// the rendered invoice page.
func (m *ResendMailer) SendInvoice(ctx context.Context, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: subject,
		Html:    emailBody(msg.InvoiceURL),
		Attachments: []*resend.Attachment{
			{Content: msg.PDF, Filename: "invoice.pdf"},
		},
	}
	sent, err := m.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send invoice email: %w", err)
	}
	if sent == nil || sent.Id == "" {
		return fmt.Errorf("send invoice email: provider did not accept the message")
	}
	return nil
}

var emailTemplate = template.Must(template.New("email").Parse(`<html>
  <body style="font-family: sans-serif; color: #1f2937;">
    <h2>Your invoice is ready!</h2>
    <p>Fresh out of the kitchen. The PDF is attached to this email.</p>
    <p>You can also view it in your browser:</p>
    <p><a href="{{.URL}}">{{.URL}}</a></p>
    <p>— The Chef</p>
  </body>
</html>`))

func emailBody(invoiceURL string) string {
	var b strings.Builder
	if err := emailTemplate.Execute(&b, struct{ URL string }{URL: invoiceURL}); err != nil {
		// The template only interpolates a URL; fall back to a plain link.
		return fmt.Sprintf(`<p><a href="%s">View your invoice</a></p>`, template.HTMLEscapeString(invoiceURL))
	}
	return b.String()
}
