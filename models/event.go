package models

import "time"

// ChatEvent is published to the event stream after a message is persisted.
type ChatEvent struct {
	Type          string    `json:"type"` // message
	SessionID     string    `json:"session_id"`
	Sender        Sender    `json:"sender"`
	Body          string    `json:"body"`
	SentAt        time.Time `json:"sent_at"`
	CustomerName  string    `json:"customer_name,omitempty"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	Delivered     bool      `json:"delivered"` // reached a live counterpart
}
