package chat

import (
	"time"

	"EquiSaddles/models"
)

const (
	PayloadMessage = "message"
	PayloadHistory = "history"
	PayloadSession = "session"
	PayloadError   = "error"
)

// Payload is an outbound frame.
type Payload interface {
	Kind() string
}

type MessagePayload struct {
	Type          string        `json:"type"`
	SessionID     string        `json:"sessionId"`
	Sender        models.Sender `json:"sender"`
	Body          string        `json:"body"`
	SentAt        time.Time     `json:"sentAt"`
	CustomerName  string        `json:"customerName,omitempty"`
	CustomerEmail string        `json:"customerEmail,omitempty"`
}

func (MessagePayload) Kind() string { return PayloadMessage }

type HistoryPayload struct {
	Type      string           `json:"type"`
	SessionID string           `json:"sessionId"`
	Messages  []MessagePayload `json:"messages"`
}

func (HistoryPayload) Kind() string { return PayloadHistory }

// SessionPayload tells a customer which session id the server bound it to.
type SessionPayload struct {
	Type          string `json:"type"`
	SessionID     string `json:"sessionId"`
	CustomerName  string `json:"customerName,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
}

func (SessionPayload) Kind() string { return PayloadSession }

type ErrorPayload struct {
	Type      string `json:"type"`
	Error     string `json:"error"`
	SessionID string `json:"sessionId,omitempty"`
}

func (ErrorPayload) Kind() string { return PayloadError }

func NewMessagePayload(m *models.ChatMessage) MessagePayload {
	return MessagePayload{
		Type:      PayloadMessage,
		SessionID: m.SessionID,
		Sender:    m.Sender,
		Body:      m.Body,
		SentAt:    m.SentAt.UTC(),
	}
}

func NewHistoryPayload(sessionID string, messages []models.ChatMessage) HistoryPayload {
	out := make([]MessagePayload, 0, len(messages))
	for i := range messages {
		out = append(out, NewMessagePayload(&messages[i]))
	}
	return HistoryPayload{Type: PayloadHistory, SessionID: sessionID, Messages: out}
}

func NewSessionPayload(sessionID, name, email string) SessionPayload {
	return SessionPayload{Type: PayloadSession, SessionID: sessionID, CustomerName: name, CustomerEmail: email}
}

func NewErrorPayload(sessionID string, err error) ErrorPayload {
	return ErrorPayload{Type: PayloadError, Error: err.Error(), SessionID: sessionID}
}
