// Package progress holds a single job's completion percentage.
package progress

import (
	"sync"
	"sync/atomic"
)

// Sink is a single-writer, multi-reader progress percentage. Values are
// clamped to 0..100 and never move backwards.
type Sink struct {
	percent  atomic.Int32
	mu       sync.Mutex
	onChange func(percent int)
}

// NewSink creates a sink at 0%. onChange may be nil; it runs synchronously on
// the writer's goroutine after each change.
func NewSink(onChange func(percent int)) *Sink {
	return &Sink{onChange: onChange}
}

// Set records a new percentage and reports whether the stored value changed.
func (s *Sink) Set(percent int) bool {
	percent = max(0, min(100, percent))

	s.mu.Lock()
	defer s.mu.Unlock()

	if int32(percent) <= s.percent.Load() {
		return false
	}
	s.percent.Store(int32(percent))

	if s.onChange != nil {
		s.onChange(percent)
	}
	return true
}

// SetFraction records done/total as a whole percentage.
func (s *Sink) SetFraction(done, total int) bool {
	if total <= 0 {
		return false
	}
	return s.Set(done * 100 / total)
}

// Value returns the current percentage.
func (s *Sink) Value() int {
	return int(s.percent.Load())
}
