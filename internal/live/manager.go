package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/faceswap/internal/adapter/metrics"
	"github.com/pscheid92/faceswap/internal/domain"
	"github.com/pscheid92/faceswap/internal/swap"
)

// Manager owns the live session table.
//
// Locking: mu guards the map (insert, delete, iterate); each session's own
// mutex guards its fields and is held for the whole of an operation, so at
// most one operation per session is in flight. mu is never held while a
// session mutex is being waited on.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session

	engine  domain.FaceEngine
	clock   clockwork.Clock
	metrics *metrics.LiveMetrics
}

// NewManager creates an empty session table. m may be nil.
func NewManager(engine domain.FaceEngine, clock clockwork.Clock, m *metrics.LiveMetrics) *Manager {
	return &Manager{
		sessions: make(map[string]*session),
		engine:   engine,
		clock:    clock,
		metrics:  m,
	}
}

// Connect opens a new session in the Created state.
func (m *Manager) Connect() string {
	now := m.clock.Now()
	s := &session{
		id:           uuid.NewString(),
		state:        StateCreated,
		createdAt:    now,
		lastActivity: now,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.setActive(count)
	return s.id
}

// SetSource detects the largest face in image and makes it the session's
// source face. On ErrNoFaceDetected the session keeps its previous state.
func (m *Manager) SetSource(ctx context.Context, id string, image []byte) error {
	s, err := m.acquire(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	face, err := swap.SourceFace(ctx, m.engine, image)
	if err != nil {
		m.recordError(err)
		return err
	}

	s.source = &face
	s.state = StateSourceReady
	s.lastActivity = m.clock.Now()
	return nil
}

// ProcessFrame swaps the session's source face onto every face in frame.
// A frame without faces is returned unchanged.
func (m *Manager) ProcessFrame(ctx context.Context, id string, frame []byte) ([]byte, error) {
	s, err := m.acquire(id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	if s.state != StateSourceReady {
		m.recordError(domain.ErrSourceNotReady)
		return nil, domain.ErrSourceNotReady
	}

	start := m.clock.Now()
	out, _, err := swap.AllFaces(ctx, m.engine, frame, *s.source)
	if err != nil {
		m.recordError(domain.ErrWorkerFailure)
		return nil, fmt.Errorf("%w: %w", domain.ErrWorkerFailure, err)
	}

	s.frames++
	s.lastActivity = m.clock.Now()
	if m.metrics != nil {
		m.metrics.FrameDuration.Observe(s.lastActivity.Sub(start).Seconds())
	}
	return out, nil
}

// Touch refreshes a session's last activity without doing any work.
func (m *Manager) Touch(id string) error {
	s, err := m.acquire(id)
	if err != nil {
		return err
	}
	s.mu.Unlock()
	return nil
}

// Disconnect closes and removes a session. Unknown ids are ignored.
func (m *Manager) Disconnect(id string) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.state = StateClosed
	s.source = nil
	s.mu.Unlock()

	m.remove(id)
}

// ActiveCount returns the number of open sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Session returns a snapshot of an open session.
func (m *Manager) Session(id string) (Snapshot, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// EvictIdle closes every session idle for longer than idle and returns the
// evicted ids. A session with an operation in flight is active by definition
// and is skipped without waiting, so a sweep never blocks on a busy session.
func (m *Manager) EvictIdle(idle time.Duration) []string {
	m.mu.RLock()
	candidates := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.RUnlock()

	now := m.clock.Now()
	var evicted []string
	for _, s := range candidates {
		if !s.mu.TryLock() {
			continue
		}
		expired := s.state != StateClosed && now.Sub(s.lastActivity) > idle
		if expired {
			s.state = StateClosed
			s.source = nil
		}
		s.mu.Unlock()

		if expired {
			m.remove(s.id)
			evicted = append(evicted, s.id)
		}
	}

	if m.metrics != nil && len(evicted) > 0 {
		m.metrics.SessionsEvicted.Add(float64(len(evicted)))
	}
	return evicted
}

// acquire returns the open session locked with its last activity refreshed.
// Every message that reaches an open session counts as activity, whether or
// not the operation it asks for succeeds.
func (m *Manager) acquire(id string) (*session, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	s.lastActivity = m.clock.Now()
	return s, nil
}

// lookup returns the open session locked, or ErrSessionNotFound.
func (m *Manager) lookup(id string) (*session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		m.recordError(domain.ErrSessionNotFound)
		return nil, domain.ErrSessionNotFound
	}

	s.mu.Lock()
	// Closed between lookup and lock by a disconnect or the reaper.
	if s.state == StateClosed {
		s.mu.Unlock()
		m.recordError(domain.ErrSessionNotFound)
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()

	m.setActive(count)
	slog.Debug("Live session removed", "session_id", id, "active", count)
}

func (m *Manager) setActive(count int) {
	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(float64(count))
	}
}

func (m *Manager) recordError(err error) {
	if m.metrics == nil {
		return
	}
	kind := "other"
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		kind = "session_not_found"
	case errors.Is(err, domain.ErrSourceNotReady):
		kind = "source_not_ready"
	case errors.Is(err, domain.ErrNoFaceDetected):
		kind = "no_face"
	case errors.Is(err, domain.ErrWorkerFailure):
		kind = "worker_failure"
	}
	m.metrics.Errors.WithLabelValues(kind).Inc()
}
