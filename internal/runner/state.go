package runner

import (
	"sync"
	"time"
)

// State holds the loop bookkeeping: starting equity and last-report
// markers, with a defined initialization point.
type State struct {
	mu sync.Mutex

	startedAt        time.Time
	startEquity      float64
	startSet         bool
	lastReportAt     time.Time
	lastReportEquity float64
}

func NewState() *State {
	now := time.Now()
	return &State{startedAt: now, lastReportAt: now}
}

// InitEquity records the starting equity once; later calls are ignored.
func (s *State) InitEquity(equity float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startSet {
		return false
	}
	s.startEquity = equity
	s.lastReportEquity = equity
	s.startSet = true
	return true
}

func (s *State) StartEquity() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startEquity, s.startSet
}

func (s *State) MarkReport(equity float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReportAt = at
	s.lastReportEquity = equity
}
