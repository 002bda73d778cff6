package orchestrator

import (
	"sync"
	"time"
)

// Timer is the part of *time.Timer the scheduler needs.
type Timer interface {
	Stop() bool
}

// AfterFunc matches time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Scheduler runs one-shot delayed callbacks keyed by a generation counter.
// Bump increments the generation and stops pending timers; a callback whose
// generation is stale when it fires does nothing.
type Scheduler struct {
	mu        sync.Mutex
	gen       uint64
	pending   map[uint64][]Timer
	afterFunc AfterFunc
}

// NewScheduler creates a scheduler. A nil afterFunc uses time.AfterFunc.
func NewScheduler(afterFunc AfterFunc) *Scheduler {
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Scheduler{
		pending:   make(map[uint64][]Timer),
		afterFunc: afterFunc,
	}
}

// Generation returns the current generation.
func (s *Scheduler) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Bump starts a new generation and cancels everything scheduled before it.
func (s *Scheduler) Bump() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.pending[s.gen] {
		t.Stop()
	}
	delete(s.pending, s.gen)
	s.gen++
	return s.gen
}

// After schedules f in the current generation.
func (s *Scheduler) After(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen := s.gen
	t := s.afterFunc(d, func() {
		if s.Generation() != gen {
			return
		}
		f()
	})
	s.pending[gen] = append(s.pending[gen], t)
}

// Stop cancels everything pending.
func (s *Scheduler) Stop() {
	s.Bump()
}
