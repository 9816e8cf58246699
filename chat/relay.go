package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"EquiSaddles/metrics"
	"EquiSaddles/models"
	"EquiSaddles/services"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultEscalationTimeout = 10 * time.Second

// Notifier sends email escalations. Implementations make one attempt per call.
type Notifier interface {
	NotifyAdminOfCustomerMessage(ctx context.Context, name, email, body, sessionID string) error
	NotifyCustomerOfAdminReply(ctx context.Context, email, name, body string) error
	// Enabled is false when email delivery is not configured.
	Enabled() bool
}

// EventPublisher receives every persisted message. Publishing is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event models.ChatEvent) error
}

// Result reports what the relay did with an event.
type Result struct {
	SessionID string              // session the connection is bound to after the event
	Message   *models.ChatMessage // persisted message, for message events
	Delivered bool                // reached at least one live counterpart
}

// Relay dispatches inbound events. Sessions live in the store, connections
// in the registry; the relay only holds per-session locks that keep
// persist, forward and publish in one order.
type Relay struct {
	store     services.SessionStore
	registry  *Registry
	notifier  Notifier
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	newID     func() string

	sessionLocks      *services.KeyedMutex
	escalationTimeout time.Duration
}

type Option func(*Relay)

func WithPublisher(p EventPublisher) Option { return func(r *Relay) { r.publisher = p } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Relay) { r.metrics = m } }

func WithIDGenerator(fn func() string) Option { return func(r *Relay) { r.newID = fn } }

func WithEscalationTimeout(d time.Duration) Option {
	return func(r *Relay) { r.escalationTimeout = d }
}

func NewRelay(store services.SessionStore, registry *Registry, notifier Notifier, logger *zap.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Relay{
		store:             store,
		registry:          registry,
		notifier:          notifier,
		logger:            logger.Named("relay"),
		newID:             func() string { return uuid.New().String() },
		sessionLocks:      services.NewKeyedMutex(),
		escalationTimeout: defaultEscalationTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Registry() *Registry { return r.registry }

// Handle processes one event. Store errors are returned to the caller;
// registry, publish and escalation failures never are.
func (r *Relay) Handle(ctx context.Context, ev Event) (Result, error) {
	switch e := ev.(type) {
	case CustomerConnected:
		return r.customerConnected(ctx, e)
	case AdminConnected:
		r.registry.RegisterAdmin(e.Conn)
		r.updateGauges()
		return Result{}, nil
	case CustomerMessage:
		return r.customerMessage(ctx, e)
	case AdminMessage:
		return r.adminMessage(ctx, e)
	case ConnectionClosed:
		r.registry.Unregister(e.Conn)
		r.updateGauges()
		return Result{}, nil
	default:
		return Result{}, ErrUnknownEvent
	}
}

func (r *Relay) customerConnected(ctx context.Context, e CustomerConnected) (Result, error) {
	session, err := r.resolveExisting(ctx, e.SessionID, e.Email)
	if err != nil {
		return Result{}, err
	}

	sessionID, name, email := e.SessionID, e.Name, e.Email
	if session != nil {
		sessionID, name, email = session.SessionID, session.CustomerName, session.CustomerEmail
	} else if sessionID == "" {
		// no row until the first message
		sessionID = r.newID()
	}

	r.bindCustomer(sessionID, e.Conn)
	result := Result{SessionID: sessionID}

	if err := r.send(e.Conn, NewSessionPayload(sessionID, name, email)); err != nil {
		return result, nil
	}
	if session == nil {
		return result, nil
	}

	messages, err := r.store.ListMessages(ctx, sessionID)
	if err != nil {
		return result, err
	}
	_ = r.send(e.Conn, NewHistoryPayload(sessionID, messages))
	return result, nil
}

// resolveExisting looks a session up by id, then by email. A miss is (nil, nil).
func (r *Relay) resolveExisting(ctx context.Context, sessionID, email string) (*models.ChatSession, error) {
	if sessionID != "" {
		session, err := r.store.GetSession(ctx, sessionID)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, services.ErrSessionNotFound) {
			return nil, err
		}
	}
	if strings.TrimSpace(email) != "" {
		session, err := r.store.GetSessionByEmail(ctx, email)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, services.ErrSessionNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (r *Relay) bindCustomer(sessionID string, conn Conn) {
	if conn == nil {
		return
	}
	if prev := r.registry.RegisterCustomer(sessionID, conn); prev != nil {
		r.logger.Debug("customer connection superseded",
			zap.String("session_id", sessionID),
			zap.String("conn_id", prev.ID()))
		_ = prev.Close()
	}
	r.updateGauges()
}

func (r *Relay) customerMessage(ctx context.Context, e CustomerMessage) (Result, error) {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return Result{SessionID: e.SessionID}, ErrEmptyMessage
	}

	session, err := r.store.GetOrCreateSession(ctx, e.SessionID, e.Name, e.Email)
	if err != nil {
		return Result{SessionID: e.SessionID}, err
	}
	result := Result{SessionID: session.SessionID}

	// live order must match stored order
	unlock := r.sessionLocks.Lock(session.SessionID)
	if e.Conn != nil {
		if bound, ok := r.registry.SessionOf(e.Conn); !ok || bound != session.SessionID {
			r.bindCustomer(session.SessionID, e.Conn)
		}
		if session.SessionID != e.SessionID {
			_ = r.send(e.Conn, NewSessionPayload(session.SessionID, session.CustomerName, session.CustomerEmail))
		}
	}

	msg, err := r.store.AppendMessage(ctx, session.SessionID, models.SenderCustomer, body)
	if err != nil {
		unlock()
		return result, err
	}
	result.Message = msg
	r.metrics.MessageRelayed(string(models.SenderCustomer))

	payload := NewMessagePayload(msg)
	payload.CustomerName = session.CustomerName
	payload.CustomerEmail = session.CustomerEmail
	result.Delivered = r.broadcastAdmins(payload, nil) > 0

	r.publish(ctx, session, msg, result.Delivered)
	unlock()

	if !result.Delivered {
		r.escalate(ctx, "admin", session.SessionID, func(ctx context.Context) error {
			return r.notifier.NotifyAdminOfCustomerMessage(ctx, session.CustomerName, session.CustomerEmail, body, session.SessionID)
		})
	}
	return result, nil
}

func (r *Relay) adminMessage(ctx context.Context, e AdminMessage) (Result, error) {
	result := Result{SessionID: e.SessionID}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return result, ErrEmptyMessage
	}

	session, err := r.store.GetSession(ctx, e.SessionID)
	if err != nil {
		return result, err
	}

	unlock := r.sessionLocks.Lock(session.SessionID)
	msg, err := r.store.AppendMessage(ctx, session.SessionID, models.SenderAdmin, body)
	if err != nil {
		unlock()
		return result, err
	}
	result.Message = msg
	r.metrics.MessageRelayed(string(models.SenderAdmin))

	payload := NewMessagePayload(msg)
	if conn, ok := r.registry.CustomerConnection(session.SessionID); ok {
		result.Delivered = r.send(conn, payload) == nil
	}

	// keep the other admins' views in sync
	mirror := payload
	mirror.CustomerName = session.CustomerName
	mirror.CustomerEmail = session.CustomerEmail
	r.broadcastAdmins(mirror, e.Conn)

	r.publish(ctx, session, msg, result.Delivered)
	unlock()

	if !result.Delivered {
		if session.CustomerEmail == "" {
			r.logger.Info("customer offline and no email on file",
				zap.String("session_id", session.SessionID))
			return result, nil
		}
		r.escalate(ctx, "customer", session.SessionID, func(ctx context.Context) error {
			return r.notifier.NotifyCustomerOfAdminReply(ctx, session.CustomerEmail, session.CustomerName, body)
		})
	}
	return result, nil
}

// send delivers p and drops the connection on failure.
func (r *Relay) send(conn Conn, p Payload) error {
	if err := conn.Send(p); err != nil {
		r.logger.Debug("send failed, dropping connection",
			zap.String("conn_id", conn.ID()),
			zap.String("payload", p.Kind()),
			zap.Error(err))
		r.registry.Unregister(conn)
		_ = conn.Close()
		r.metrics.ConnectionDropped()
		r.updateGauges()
		return err
	}
	return nil
}

// broadcastAdmins returns how many admin connections accepted p.
func (r *Relay) broadcastAdmins(p Payload, except Conn) int {
	delivered := 0
	for _, conn := range r.registry.AdminConnections() {
		if except != nil && conn.ID() == except.ID() {
			continue
		}
		if r.send(conn, p) == nil {
			delivered++
		}
	}
	return delivered
}

func (r *Relay) publish(ctx context.Context, session *models.ChatSession, msg *models.ChatMessage, delivered bool) {
	if r.publisher == nil {
		return
	}
	event := models.ChatEvent{
		Type:          PayloadMessage,
		SessionID:     msg.SessionID,
		Sender:        msg.Sender,
		Body:          msg.Body,
		SentAt:        msg.SentAt,
		CustomerName:  session.CustomerName,
		CustomerEmail: session.CustomerEmail,
		Delivered:     delivered,
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.metrics.PublishFailed()
		r.logger.Warn("failed to publish chat event",
			zap.String("session_id", msg.SessionID),
			zap.Error(err))
	}
}

// escalate runs one notification attempt. Errors are logged, never returned.
func (r *Relay) escalate(ctx context.Context, kind, sessionID string, fn func(context.Context) error) {
	if r.notifier == nil {
		return
	}
	if !r.notifier.Enabled() {
		r.metrics.EscalationSkipped(kind)
		r.logger.Info("email escalation skipped, mail disabled",
			zap.String("kind", kind),
			zap.String("session_id", sessionID))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.escalationTimeout)
	defer cancel()

	err := fn(ctx)
	r.metrics.Escalation(kind, err)
	if err != nil {
		r.logger.Warn("email escalation failed",
			zap.String("kind", kind),
			zap.String("session_id", sessionID),
			zap.Error(err))
		return
	}
	r.logger.Info("email escalation sent",
		zap.String("kind", kind),
		zap.String("session_id", sessionID))
}

func (r *Relay) updateGauges() {
	r.metrics.SetConnections(r.registry.Counts())
}
