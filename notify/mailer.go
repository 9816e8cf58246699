package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"

	"EquiSaddles/config"
)

type Email struct {
	To          string
	Subject     string
	HTMLBody    string
	TextBody    string // derived from HTMLBody when empty
	SenderName  string // mailer default when empty
	SenderEmail string
}

// Mailer delivers one email per call. No retries.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// APIError is a non-2xx answer from the mail provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("brevo: status %d: %s", e.StatusCode, e.Body)
}

type BrevoMailer struct {
	apiKey      string
	endpoint    string
	senderName  string
	senderEmail string
	client      *http.Client
}

func NewBrevoMailer(cfg config.MailConfig, client *http.Client) *BrevoMailer {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout.Std()}
	}
	return &BrevoMailer{
		apiKey:      cfg.APIKey,
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + "/v3/smtp/email",
		senderName:  cfg.SenderName,
		senderEmail: cfg.SenderEmail,
		client:      client,
	}
}

type brevoAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoRequest struct {
	Sender      brevoAddress   `json:"sender"`
	To          []brevoAddress `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	TextContent string         `json:"textContent"`
}

func (m *BrevoMailer) Send(ctx context.Context, email Email) error {
	req := brevoRequest{
		Sender: brevoAddress{
			Name:  firstNonEmpty(email.SenderName, m.senderName),
			Email: firstNonEmpty(email.SenderEmail, m.senderEmail),
		},
		To:          []brevoAddress{{Email: email.To}},
		Subject:     email.Subject,
		HTMLContent: email.HTMLBody,
		TextContent: email.TextBody,
	}
	if req.TextContent == "" {
		req.TextContent = StripTags(email.HTMLBody)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("api-key", m.apiKey)

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// StripTags turns an HTML body into a rough plain-text alternative.
func StripTags(markup string) string {
	text := html.UnescapeString(tagPattern.ReplaceAllString(markup, ""))
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
