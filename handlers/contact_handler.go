package handlers

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"EquiSaddles/notify"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type ContactMailer interface {
	SendContactForm(ctx context.Context, name, email, subject, message string) error
	NotifyAdminOfCustomerMessage(ctx context.Context, name, email, body, sessionID string) error
}

type ContactHandler struct {
	mailer ContactMailer
	logger *zap.Logger
}

func NewContactHandler(mailer ContactMailer, logger *zap.Logger) *ContactHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactHandler{mailer: mailer, logger: logger.Named("contact")}
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// SubmitContactForm 联系表单: all fields required
func (h *ContactHandler) SubmitContactForm(c echo.Context) error {
	var req contactRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Subject = strings.TrimSpace(req.Subject)
	req.Message = strings.TrimSpace(req.Message)
	if req.Name == "" || req.Email == "" || req.Subject == "" || req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "all fields are required"})
	}
	if !emailPattern.MatchString(req.Email) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid email format"})
	}

	if err := h.mailer.SendContactForm(c.Request().Context(), req.Name, req.Email, req.Subject, req.Message); err != nil {
		return h.mailError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

type testEmailRequest struct {
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
	Message       string `json:"message"`
	SessionID     string `json:"sessionId"`
}

// SendTestEmail sends a sample admin chat notification.
func (h *ContactHandler) SendTestEmail(c echo.Context) error {
	var req testEmailRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	err := h.mailer.NotifyAdminOfCustomerMessage(c.Request().Context(),
		orDefault(req.CustomerName, "Test Client"),
		orDefault(req.CustomerEmail, "test@example.com"),
		orDefault(req.Message, "Test message"),
		orDefault(req.SessionID, "test-session-123"))
	if err != nil {
		return h.mailError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

func (h *ContactHandler) mailError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, notify.ErrMailDisabled):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "email service not configured"})
	default:
		h.logger.Error("failed to send email", zap.Error(err))
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "failed to send email"})
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
