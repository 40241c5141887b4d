package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edlive/classrelay/internal/core"
	"github.com/edlive/classrelay/internal/domain"
)

type connEntry struct {
	Room    domain.RoomID
	Session core.MemberSession
	User    *domain.User
	Cancel  context.CancelFunc
}

// Registry is the authoritative table of live connections. It knows, for
// every connection id, the transport session, the identity behind it and
// the one room (or none) the connection currently sits in.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.ConnID]*connEntry)}
}

func (r *Registry) Bind(cid core.ConnID, user *domain.User, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[cid] = &connEntry{
		Session: sess,
		User:    user,
		Cancel:  cancel,
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("user", user.Username).Msg("bound connection")
}

// Unbind removes the connection and reports whether it was still present,
// which makes disconnect handling idempotent for the caller.
func (r *Registry) Unbind(cid core.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[cid]; !ok {
		return false
	}
	delete(r.conns, cid)
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("unbound connection")
	return true
}

// Take atomically removes the connection and returns the room it was in.
// Exactly one caller wins when several teardown paths race, which is what
// keeps disconnect idempotent end to end.
func (r *Registry) Take(cid core.ConnID) (domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return "", false
	}
	delete(r.conns, cid)
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("took connection for teardown")
	return e.Room, true
}

func (r *Registry) Session(cid core.ConnID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[cid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) User(cid core.ConnID) (*domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[cid]; ok {
		return e.User, true
	}
	return nil, false
}

func (r *Registry) RoomOf(cid core.ConnID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok || e.Room == "" {
		return "", false
	}
	return e.Room, true
}

func (r *Registry) UpdateRoom(cid core.ConnID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return false
	}
	e.Room = room
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("room", string(room)).Msg("updated room")
	return true
}

func (r *Registry) ClearRoom(cid core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[cid]; ok {
		e.Room = ""
	}
}

// Cancel fires the connection's context, which tears the transport down
// through the adapter's normal disconnect path.
func (r *Registry) Cancel(cid core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("canceled connection")
	return true
}
