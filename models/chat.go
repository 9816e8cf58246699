package models

import "time"

type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAdmin    Sender = "admin"
)

func (s Sender) Valid() bool {
	return s == SenderCustomer || s == SenderAdmin
}

// ChatSession 一次客服对话，按 session_id 定位，可按邮箱恢复
type ChatSession struct {
	ID             uint      `json:"-" gorm:"primaryKey"`
	SessionID      string    `json:"sessionId" gorm:"size:64;uniqueIndex;not null"`
	CustomerName   string    `json:"customerName"`
	CustomerEmail  string    `json:"customerEmail" gorm:"index"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt" gorm:"index"`
}

// ChatMessage is append-only. ID doubles as the insertion order tie-breaker.
type ChatMessage struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	SessionID string    `json:"sessionId" gorm:"size:64;index;not null"`
	Sender    Sender    `json:"sender" gorm:"size:16;not null"`
	Body      string    `json:"body" gorm:"type:text"`
	SentAt    time.Time `json:"sentAt" gorm:"index"`
}
