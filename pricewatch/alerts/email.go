package alerts

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"os"
	"strings"
	"sync"
	"time"
)

// EmailMessage is the provider-agnostic send request.
type EmailMessage struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// EmailResult is the provider-agnostic send outcome.
type EmailResult struct {
	Success   bool
	MessageID string
	Error     string
}

// EmailSender is the capability consumed by the email channel. The pipeline
// depends on nothing beyond this contract.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) EmailResult
}

// NewEmailSenderFromEnv builds a sender from EMAIL_* variables. It returns
// nil when email is disabled.
func NewEmailSenderFromEnv() (EmailSender, error) {
	if !envBool("EMAIL_ENABLED", false) {
		return nil, nil
	}

	from := os.Getenv("EMAIL_FROM")
	fromName := os.Getenv("EMAIL_FROM_NAME")
	provider := strings.ToLower(os.Getenv("EMAIL_PROVIDER"))

	switch provider {
	case "", "smtp":
		return newSMTPSender(from, fromName,
			os.Getenv("SMTP_HOST"), os.Getenv("SMTP_PORT"),
			os.Getenv("SMTP_USER"), os.Getenv("SMTP_PASSWORD"))
	case "gmail":
		return newSMTPSender(from, fromName,
			"smtp.gmail.com", "587",
			os.Getenv("GMAIL_USER"), os.Getenv("GMAIL_APP_PASSWORD"))
	case "mailru":
		return newSMTPSender(from, fromName,
			"smtp.mail.ru", "587",
			os.Getenv("MAILRU_USER"), os.Getenv("MAILRU_PASSWORD"))
	case "ses":
		// SES via its SMTP interface; credentials are SES SMTP credentials.
		region := os.Getenv("SES_REGION")
		if region == "" {
			region = "us-east-1"
		}
		return newSMTPSender(from, fromName,
			fmt.Sprintf("email-smtp.%s.amazonaws.com", region), "587",
			os.Getenv("SES_SMTP_USER"), os.Getenv("SES_SMTP_PASSWORD"))
	case "sendgrid":
		return newSMTPSender(from, fromName,
			"smtp.sendgrid.net", "587",
			"apikey", os.Getenv("SENDGRID_API_KEY"))
	case "mailgun":
		return newSMTPSender(from, fromName,
			"smtp.mailgun.org", "587",
			os.Getenv("MAILGUN_SMTP_USER"), os.Getenv("MAILGUN_SMTP_PASSWORD"))
	case "test":
		return NewTestEmailSender(), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", provider)
	}
}

type smtpSender struct {
	from     string
	fromName string
	addr     string
	auth     smtp.Auth
}

func newSMTPSender(from, fromName, host, port, user, password string) (EmailSender, error) {
	if from == "" {
		return nil, fmt.Errorf("EMAIL_FROM is required")
	}
	if host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if port == "" {
		port = "587"
	}

	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, password, host)
	}
	return &smtpSender{
		from:     from,
		fromName: fromName,
		addr:     host + ":" + port,
		auth:     auth,
	}, nil
}

func (s *smtpSender) Send(_ context.Context, msg EmailMessage) EmailResult {
	body := buildMIME(s.from, s.fromName, msg)
	if err := smtp.SendMail(s.addr, s.auth, s.from, msg.To, body); err != nil {
		return EmailResult{Error: err.Error()}
	}
	return EmailResult{Success: true, MessageID: fmt.Sprintf("smtp-%d", time.Now().UnixNano())}
}

const mimeBoundary = "pricewatch-alt-boundary"

// buildMIME renders a multipart/alternative message with plain-text and,
// when present, HTML variants.
func buildMIME(from, fromName string, msg EmailMessage) []byte {
	var b strings.Builder

	sender := from
	if fromName != "" {
		sender = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromName), from)
	}

	fmt.Fprintf(&b, "From: %s\r\n", sender)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	if msg.HTML == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(msg.Text)
		return []byte(b.String())
	}

	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mimeBoundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", mimeBoundary, msg.Text)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", mimeBoundary, msg.HTML)
	fmt.Fprintf(&b, "--%s--\r\n", mimeBoundary)
	return []byte(b.String())
}

// TestEmailSender records sent messages instead of delivering them.
type TestEmailSender struct {
	mu   sync.Mutex
	sent []EmailMessage
	fail bool
}

func NewTestEmailSender() *TestEmailSender { return &TestEmailSender{} }

func (t *TestEmailSender) Send(_ context.Context, msg EmailMessage) EmailResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail {
		return EmailResult{Error: "test sender configured to fail"}
	}
	t.sent = append(t.sent, msg)
	return EmailResult{Success: true, MessageID: fmt.Sprintf("test-%d", len(t.sent))}
}

// Sent returns a copy of the recorded messages.
func (t *TestEmailSender) Sent() []EmailMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]EmailMessage(nil), t.sent...)
}

// SetFail makes subsequent sends fail.
func (t *TestEmailSender) SetFail(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail = fail
}
