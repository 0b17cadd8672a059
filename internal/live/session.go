package live

import (
	"sync"
	"time"

	"github.com/pscheid92/faceswap/internal/domain"
)

type State int

const (
	StateCreated State = iota
	StateSourceReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSourceReady:
		return "source_ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// session is the unit of locking: mu serializes every operation on one
// session, including eviction.
type session struct {
	mu           sync.Mutex
	id           string
	state        State
	source       *domain.Face
	createdAt    time.Time
	lastActivity time.Time
	frames       int64
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID           string
	State        State
	CreatedAt    time.Time
	LastActivity time.Time
	Frames       int64
}

func (s *session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:           s.id,
		State:        s.state,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
		Frames:       s.frames,
	}
}
