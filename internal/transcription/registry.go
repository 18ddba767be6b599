package transcription

import (
	"sync"

	"github.com/skypro1111/speech-stream-service/internal/protocol"
)

// Registry tracks live sessions by their client-generated identifier so
// that responses from a multiplexed server endpoint can be routed back
// to the originating session. It is mutated only on session creation and
// disposal; inbound routing takes the read lock.
//
// The registry is injected explicitly rather than held as package state
// so tests can construct isolated instances.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register adds a session and links it back to this registry so that
// messages arriving on its socket for a sibling session get rerouted.
// Registering the same uid twice replaces the previous entry.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.UID()] = s
	s.setRegistry(r)
}

// Unregister removes a session by id and reports whether it was present.
func (r *Registry) Unregister(uid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[uid]
	if !ok {
		return false
	}
	delete(r.sessions, uid)
	s.setRegistry(nil)
	return true
}

// Lookup returns the session registered under uid.
func (r *Registry) Lookup(uid string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[uid]
	return s, ok
}

// Route dispatches a server message to the session it addresses. A
// message bearing an unknown session id is a complete no-op.
func (r *Registry) Route(msg *protocol.ServerMessage) bool {
	r.mu.RLock()
	s, ok := r.sessions[msg.UID]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	s.handleServerMessage(msg)
	return true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns monitoring information for every registered session.
func (r *Registry) Snapshot() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}
