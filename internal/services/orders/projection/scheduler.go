package projection

import (
	"math/rand"
	"sync"
	"time"
)

const (
	defaultMinSettleDelay = 2 * time.Second
	defaultMaxSettleDelay = 5 * time.Second
)

// Scheduler arms one cancellable timer per order. Scheduling the same
// order again replaces the pending timer.
type Scheduler struct {
	mu       sync.Mutex
	timers   map[string]*time.Timer
	minDelay time.Duration
	maxDelay time.Duration
}

func newScheduler() *Scheduler {
	return &Scheduler{
		timers:   make(map[string]*time.Timer),
		minDelay: defaultMinSettleDelay,
		maxDelay: defaultMaxSettleDelay,
	}
}

func (s *Scheduler) setDelayBounds(min, max time.Duration) {
	if min <= 0 || max < min {
		return
	}
	s.mu.Lock()
	s.minDelay = min
	s.maxDelay = max
	s.mu.Unlock()
}

// schedule arms a timer for orderID that fires fn after a random delay in
// the configured bounds.
func (s *Scheduler) schedule(orderID string, fn func(delay time.Duration)) {
	s.mu.Lock()
	delay := s.minDelay
	if spread := s.maxDelay - s.minDelay; spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread)))
	}
	if existing, ok := s.timers[orderID]; ok {
		existing.Stop()
	}
	s.timers[orderID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, orderID)
		s.mu.Unlock()
		fn(delay)
	})
	s.mu.Unlock()
}

// cancel stops the pending timer for orderID, reporting whether one was
// armed.
func (s *Scheduler) cancel(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.timers[orderID]
	if !ok {
		return false
	}
	delete(s.timers, orderID)
	return timer.Stop()
}

func (s *Scheduler) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for orderID, timer := range s.timers {
		timer.Stop()
		delete(s.timers, orderID)
	}
}

func (s *Scheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
