package memory

import (
	"sync"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
)

// SessionRegistry is the process-wide table of live sessions. One instance
// is constructed at startup and shared by every ingest path. The stored
// records never leave the registry: Register keeps its own copy and every
// lookup returns a detached snapshot, so no caller can race the mutators.
type SessionRegistry struct {
	sessions map[domain.StreamKey]*domain.Session
	byID     map[domain.SessionID]domain.StreamKey
	mu       sync.RWMutex
}

func NewSessionRegistry() ports.SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[domain.StreamKey]*domain.Session),
		byID:     make(map[domain.SessionID]domain.StreamKey),
	}
}

// Register admits a session. A key that is already registered and not yet
// ended rejects the newcomer; the existing session is never preempted.
func (r *SessionRegistry) Register(session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[session.Key]; ok {
		if existing.Status == domain.StatusPending || existing.Status == domain.StatusLive {
			return domain.ErrAlreadyLive
		}
	}

	record := *session
	r.sessions[record.Key] = &record
	r.byID[record.ID] = record.Key
	return nil
}

func (r *SessionRegistry) Get(key domain.StreamKey) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[key]
	if !ok {
		return nil, false
	}
	snapshot := *s
	return &snapshot, true
}

func (r *SessionRegistry) GetByID(id domain.SessionID) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[key]
	if !ok {
		return nil, false
	}
	snapshot := *s
	return &snapshot, true
}

// Remove is idempotent; removing an absent key is a no-op.
func (r *SessionRegistry) Remove(key domain.StreamKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		delete(r.byID, s.ID)
		delete(r.sessions, key)
	}
}

func (r *SessionRegistry) ListLive() []*domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	live := make([]*domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Status == domain.StatusLive {
			snapshot := *s
			live = append(live, &snapshot)
		}
	}
	return live
}

func (r *SessionRegistry) SetStatus(key domain.StreamKey, status domain.SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		s.Status = status
	}
}

func (r *SessionRegistry) SetMode(key domain.StreamKey, mode domain.DistributionMode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		s.Mode = mode
	}
}

func (r *SessionRegistry) SetViewerCount(key domain.StreamKey, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		if count < 0 {
			count = 0
		}
		s.ViewerCount = count
	}
}

func (r *SessionRegistry) SetKbps(key domain.StreamKey, kbps int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		s.LastKbps = kbps
	}
}

func (r *SessionRegistry) AddBytes(key domain.StreamKey, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		s.BytesIn += n
	}
}

func (r *SessionRegistry) LiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, s := range r.sessions {
		if s.Status == domain.StatusLive {
			count++
		}
	}
	return count
}
