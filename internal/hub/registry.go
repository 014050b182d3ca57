package hub

import (
	"log"
	"sync"

	"nexus-backend/internal/middleware"
)

// conn is the write side of a duplex channel. *websocket.Conn satisfies it;
// tests inject fakes so registry and hub logic run without sockets.
type conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Session is one physical connection of one user to one group. A user with
// several tabs open holds several sessions, each receiving broadcasts
// independently.
type Session struct {
	Identity middleware.Identity
	GroupID  int64

	conn      conn
	closeOnce sync.Once
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}

// Registry owns the set of live sessions per group. It is the only mutator of
// that set; broadcast failures feed back into Unregister so a dead peer is
// dropped without disturbing the rest of the group.
type Registry struct {
	mu     sync.RWMutex
	groups map[int64]map[*Session]struct{}
}

func NewRegistry() *Registry {
	return &Registry{groups: make(map[int64]map[*Session]struct{})}
}

func (r *Registry) Register(groupID int64, identity middleware.Identity, c conn) *Session {
	s := &Session{Identity: identity, GroupID: groupID, conn: c}

	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.groups[groupID]
	if !ok {
		sessions = make(map[*Session]struct{})
		r.groups[groupID] = sessions
	}
	sessions[s] = struct{}{}

	log.Printf("chat session joined: group %d user %s (%d in group)", groupID, identity.UserID, len(sessions))
	return s
}

// Unregister removes the session and closes its channel. Safe to call more
// than once; the underlying channel is closed exactly once.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	sessions, ok := r.groups[s.GroupID]
	if ok {
		if _, present := sessions[s]; present {
			delete(sessions, s)
			if len(sessions) == 0 {
				delete(r.groups, s.GroupID)
			}
			log.Printf("chat session left: group %d user %s", s.GroupID, s.Identity.UserID)
		}
	}
	r.mu.Unlock()

	s.close()
}

// IsRegistered reports whether the session is still attached to its group.
func (r *Registry) IsRegistered(s *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.groups[s.GroupID][s]
	return ok
}

// Broadcast fans the payload out to every session in the group except
// exclude. A failed write never aborts delivery to the remaining sessions;
// the failing session is unregistered afterwards.
func (r *Registry) Broadcast(groupID int64, payload interface{}, exclude *Session) {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.groups[groupID]))
	for s := range r.groups[groupID] {
		if s != exclude {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	var failed []*Session
	for _, s := range targets {
		if err := s.conn.WriteJSON(payload); err != nil {
			log.Printf("broadcast write failed: group %d user %s: %v", groupID, s.Identity.UserID, err)
			failed = append(failed, s)
		}
	}

	for _, s := range failed {
		r.Unregister(s)
	}
}
