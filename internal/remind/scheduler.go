package remind

import (
	"sync"
	"time"
)

// Scheduler arms at most one delayed, single-shot reminder per ticket.
// Cancel is best-effort: a timer can fire while Cancel runs, so the fire
// callback must re-check ticket status itself before sending anything.
type Scheduler struct {
	mu      sync.Mutex
	delay   time.Duration
	fire    func(ticketID int64)
	timers  map[int64]*time.Timer
	stopped bool
}

func NewScheduler(delay time.Duration, fire func(ticketID int64)) *Scheduler {
	return &Scheduler{
		delay:  delay,
		fire:   fire,
		timers: make(map[int64]*time.Timer),
	}
}

// Arm schedules the reminder. A second Arm for the same ticket is a no-op
// while the first is still pending.
func (s *Scheduler) Arm(ticketID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if _, ok := s.timers[ticketID]; ok {
		return
	}
	s.timers[ticketID] = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		_, pending := s.timers[ticketID]
		delete(s.timers, ticketID)
		stopped := s.stopped
		s.mu.Unlock()

		// pending is false when Cancel won the race after the timer went
		// off; the callback is suppressed in that case too.
		if pending && !stopped {
			s.fire(ticketID)
		}
	})
}

// Cancel disarms the reminder if one is pending. Safe to call repeatedly
// and after the reminder fired.
func (s *Scheduler) Cancel(ticketID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[ticketID]; ok {
		t.Stop()
		delete(s.timers, ticketID)
	}
}

func (s *Scheduler) Pending(ticketID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[ticketID]
	return ok
}

// Stop cancels all pending reminders and rejects new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
