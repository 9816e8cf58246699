package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"EquiSaddles/config"

	"go.uber.org/zap"
)

var ErrMailDisabled = errors.New("email notifications disabled")

// NotificationError wraps a failed escalation attempt.
type NotificationError struct {
	Kind string
	To   string
	Err  error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s to %s: %v", e.Kind, e.To, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

const (
	chatSenderName    = "Equi Saddles - Système de Chat"
	replySenderName   = "Equi Saddles"
	contactSenderName = "Equi Saddles - Formulaire de Contact"
)

// Notifier turns chat events into emails. Every call is a single attempt.
type Notifier struct {
	mailer     Mailer
	adminEmail string
	publicURL  string
	timeout    time.Duration
	logger     *zap.Logger
}

type Option func(*Notifier)

// WithMailer replaces the Brevo mailer built from config.
func WithMailer(m Mailer) Option { return func(n *Notifier) { n.mailer = m } }

func NewNotifier(cfg config.MailConfig, publicURL string, logger *zap.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{
		adminEmail: cfg.AdminEmail,
		publicURL:  strings.TrimRight(publicURL, "/"),
		timeout:    cfg.Timeout.Std(),
		logger:     logger.Named("notify"),
	}
	if cfg.APIKey != "" {
		n.mailer = NewBrevoMailer(cfg, nil)
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.mailer == nil {
		n.logger.Warn("mail api key not configured, email notifications disabled")
	}
	return n
}

func (n *Notifier) Enabled() bool { return n.mailer != nil }

func (n *Notifier) NotifyAdminOfCustomerMessage(ctx context.Context, name, email, body, sessionID string) error {
	html, err := render(adminChatTemplate, templateData{
		Name:         displayName(name),
		Email:        email,
		SessionID:    sessionID,
		Body:         body,
		ReplyURL:     n.publicURL + "/admin?tab=chat&session=" + url.QueryEscape(sessionID),
		DashboardURL: n.publicURL + "/admin",
	})
	if err != nil {
		return &NotificationError{Kind: "admin", To: n.adminEmail, Err: err}
	}
	return n.deliver(ctx, "admin", Email{
		To:         n.adminEmail,
		Subject:    "Nouveau message chat - " + displayName(name),
		HTMLBody:   html,
		SenderName: chatSenderName,
	})
}

func (n *Notifier) NotifyCustomerOfAdminReply(ctx context.Context, email, name, body string) error {
	html, err := render(customerReplyTemplate, templateData{
		Name:     displayName(name),
		Email:    email,
		Body:     body,
		ReplyURL: n.publicURL + "/chat?email=" + url.QueryEscape(email),
	})
	if err != nil {
		return &NotificationError{Kind: "customer", To: email, Err: err}
	}
	return n.deliver(ctx, "customer", Email{
		To:         email,
		Subject:    "Réponse de l'équipe Equi Saddles",
		HTMLBody:   html,
		SenderName: replySenderName,
	})
}

// SendContactForm forwards a storefront contact form submission to the admin.
func (n *Notifier) SendContactForm(ctx context.Context, name, email, subject, message string) error {
	html, err := render(contactFormTemplate, templateData{
		Name:     name,
		Email:    email,
		Subject:  subject,
		Body:     message,
		ReplyURL: "mailto:" + email,
	})
	if err != nil {
		return &NotificationError{Kind: "contact", To: n.adminEmail, Err: err}
	}
	return n.deliver(ctx, "contact", Email{
		To:         n.adminEmail,
		Subject:    "Nouveau message de contact - " + subject,
		HTMLBody:   html,
		SenderName: contactSenderName,
	})
}

func (n *Notifier) deliver(ctx context.Context, kind string, email Email) error {
	if n.mailer == nil {
		n.logger.Info("email skipped, notifications disabled",
			zap.String("kind", kind),
			zap.String("to", email.To))
		return ErrMailDisabled
	}
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	if err := n.mailer.Send(ctx, email); err != nil {
		return &NotificationError{Kind: kind, To: email.To, Err: err}
	}
	n.logger.Debug("email sent", zap.String("kind", kind), zap.String("to", email.To))
	return nil
}

func displayName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "Client"
}
