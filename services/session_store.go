package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"EquiSaddles/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionStore 会话与消息持久化
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error)
	GetSessionByEmail(ctx context.Context, email string) (*models.ChatSession, error)
	GetOrCreateSession(ctx context.Context, sessionID, name, email string) (*models.ChatSession, error)
	AppendMessage(ctx context.Context, sessionID string, sender models.Sender, body string) (*models.ChatMessage, error)
	ListMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	ListSessions(ctx context.Context, limit int) ([]models.ChatSession, error)
}

type GormSessionStore struct {
	db          *gorm.DB
	createLocks *KeyedMutex // resolve-or-create, keyed by session id and email
	locks       *KeyedMutex // appends, keyed by session id
	now         func() time.Time
	newID       func() string
}

func NewGormSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{
		db:          db,
		createLocks: NewKeyedMutex(),
		locks:       NewKeyedMutex(),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *GormSessionStore) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *GormSessionStore) GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	var session models.ChatSession
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, persistenceError("get session", err)
	}
	return &session, nil
}

// GetSessionByEmail returns the most recently active session bound to email.
func (s *GormSessionStore) GetSessionByEmail(ctx context.Context, email string) (*models.ChatSession, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrSessionNotFound
	}
	var session models.ChatSession
	err := s.db.WithContext(ctx).
		Where("customer_email = ?", email).
		Order("last_activity_at DESC").
		Order("id DESC").
		Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, persistenceError("get session by email", err)
	}
	return &session, nil
}

// GetOrCreateSession resolves a session by id, then by email, and creates one
// only when neither matches. A known email under a new id resumes the existing
// session rather than forking its history.
func (s *GormSessionStore) GetOrCreateSession(ctx context.Context, sessionID, name, email string) (*models.ChatSession, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	// one email never forks two sessions, and one id is never created twice
	var keys []string
	if sessionID != "" {
		keys = append(keys, "id:"+sessionID)
	}
	if email != "" {
		keys = append(keys, "email:"+email)
	}
	unlock := s.createLocks.Lock(keys...)
	defer unlock()

	if sessionID != "" {
		session, err := s.GetSession(ctx, sessionID)
		if err == nil {
			return s.refreshIdentity(ctx, session, name, email)
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
	}

	if email != "" {
		session, err := s.GetSessionByEmail(ctx, email)
		if err == nil {
			return s.refreshIdentity(ctx, session, name, email)
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
	}

	if sessionID == "" {
		sessionID = s.newID()
	}
	now := s.timestamp()
	session := models.ChatSession{
		SessionID:      sessionID,
		CustomerName:   name,
		CustomerEmail:  email,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, persistenceError("create session", err)
	}
	return &session, nil
}

// refreshIdentity updates name/email when provided and changed. The row is
// only written when something differs.
func (s *GormSessionStore) refreshIdentity(ctx context.Context, session *models.ChatSession, name, email string) (*models.ChatSession, error) {
	updates := map[string]interface{}{}
	if name != "" && name != session.CustomerName {
		updates["customer_name"] = name
	}
	if email != "" && email != session.CustomerEmail {
		updates["customer_email"] = email
	}
	if len(updates) == 0 {
		return session, nil
	}
	err := s.db.WithContext(ctx).
		Model(&models.ChatSession{}).
		Where("id = ?", session.ID).
		Updates(updates).Error
	if err != nil {
		return nil, persistenceError("update session", err)
	}
	if v, ok := updates["customer_name"]; ok {
		session.CustomerName = v.(string)
	}
	if v, ok := updates["customer_email"]; ok {
		session.CustomerEmail = v.(string)
	}
	return session, nil
}

// AppendMessage stores a message and bumps the session's last activity in one
// transaction. SentAt never goes backwards within a session.
func (s *GormSessionStore) AppendMessage(ctx context.Context, sessionID string, sender models.Sender, body string) (*models.ChatMessage, error) {
	if !sender.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSender, sender)
	}
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var message models.ChatMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.ChatSession
		if err := tx.Where("session_id = ?", sessionID).Take(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		sentAt := s.timestamp()
		if sentAt.Before(session.LastActivityAt) {
			sentAt = session.LastActivityAt
		}
		message = models.ChatMessage{
			SessionID: sessionID,
			Sender:    sender,
			Body:      body,
			SentAt:    sentAt,
		}
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		return tx.Model(&models.ChatSession{}).
			Where("id = ?", session.ID).
			Update("last_activity_at", sentAt).Error
	})
	if errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, persistenceError("append message", err)
	}
	return &message, nil
}

// ListMessages returns the full history, oldest first.
func (s *GormSessionStore) ListMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	messages := make([]models.ChatMessage, 0)
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sent_at ASC").
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, persistenceError("list messages", err)
	}
	return messages, nil
}

// ListSessions returns sessions by most recent activity. limit <= 0 means no limit.
func (s *GormSessionStore) ListSessions(ctx context.Context, limit int) ([]models.ChatSession, error) {
	sessions := make([]models.ChatSession, 0)
	query := s.db.WithContext(ctx).Order("last_activity_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&sessions).Error; err != nil {
		return nil, persistenceError("list sessions", err)
	}
	return sessions, nil
}
