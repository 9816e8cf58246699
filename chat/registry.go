package chat

import "sync"

// Registry maps live connections to sessions. A session has at most one
// customer connection; any number of admins may be connected. The registry
// only does bookkeeping: closing transports is left to the caller.
type Registry struct {
	mu        sync.RWMutex
	customers map[string]Conn   // session id -> conn
	sessionOf map[string]string // conn id -> session id
	admins    map[string]Conn   // conn id -> conn
}

func NewRegistry() *Registry {
	return &Registry{
		customers: make(map[string]Conn),
		sessionOf: make(map[string]string),
		admins:    make(map[string]Conn),
	}
}

// RegisterCustomer binds conn to sessionID and returns the connection it
// superseded, if any. A conn already bound to another session is moved.
func (r *Registry) RegisterCustomer(sessionID string, conn Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if old, ok := r.sessionOf[id]; ok && old != sessionID {
		if cur, ok := r.customers[old]; ok && cur.ID() == id {
			delete(r.customers, old)
		}
	}

	prev, hadPrev := r.customers[sessionID]
	r.customers[sessionID] = conn
	r.sessionOf[id] = sessionID

	if hadPrev && prev.ID() != id {
		delete(r.sessionOf, prev.ID())
		return prev
	}
	return nil
}

func (r *Registry) RegisterAdmin(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[conn.ID()] = conn
}

// Unregister removes conn from whichever set holds it. A superseded customer
// connection never evicts its successor.
func (r *Registry) Unregister(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if sessionID, ok := r.sessionOf[id]; ok {
		delete(r.sessionOf, id)
		if cur, ok := r.customers[sessionID]; ok && cur.ID() == id {
			delete(r.customers, sessionID)
		}
	}
	delete(r.admins, id)
}

func (r *Registry) CustomerConnection(sessionID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.customers[sessionID]
	return conn, ok
}

// SessionOf returns the session a customer connection is bound to.
func (r *Registry) SessionOf(conn Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessionID, ok := r.sessionOf[conn.ID()]
	return sessionID, ok
}

// AdminConnections returns a snapshot; it is safe to send on while other
// goroutines register or unregister.
func (r *Registry) AdminConnections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.admins))
	for _, conn := range r.admins {
		conns = append(conns, conn)
	}
	return conns
}

func (r *Registry) Counts() (customers, admins int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.customers), len(r.admins)
}
