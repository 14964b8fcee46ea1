package vacuum

import (
	"sync"
	"time"
)

// DefaultDebounceWindow is the quiet period used when none is configured.
const DefaultDebounceWindow = 2 * time.Second

// SchedulerState is the state of the scheduler's most recent timer.
type SchedulerState string

// Scheduler states. Fired and Cancelled are terminal for a timer; the
// scheduler itself accepts a new Arm from any state.
const (
	SchedulerIdle      SchedulerState = "idle"
	SchedulerArmed     SchedulerState = "armed"
	SchedulerFired     SchedulerState = "fired"
	SchedulerCancelled SchedulerState = "cancelled"
)

// Scheduler runs a callback once after a quiet period. Re-arming restarts
// the period; at most one timer is outstanding.
//
// Each Arm bumps a generation counter. A timer whose generation is stale
// when it expires does nothing, so a cancelled or superseded timer never
// runs its callback even if time.Timer.Stop lost the race.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Callbacks run on their own goroutine, outside the scheduler lock.
type Scheduler struct {
	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	state      SchedulerState
	deadline   time.Time
}

// NewScheduler returns an idle scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{state: SchedulerIdle}
}

// Arm cancels any outstanding timer and schedules fn to run after delay.
func (s *Scheduler) Arm(delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	s.generation++
	gen := s.generation
	s.state = SchedulerArmed
	s.deadline = time.Now().Add(delay)
	s.timer = time.AfterFunc(delay, func() {
		s.expire(gen, fn)
	})
}

// CancelIfPending cancels the outstanding timer, if any, without
// rescheduling. It reports whether a timer was pending.
func (s *Scheduler) CancelIfPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SchedulerArmed {
		return false
	}

	s.stopLocked()
	s.generation++
	s.state = SchedulerCancelled
	return true
}

// State returns the state of the most recent timer.
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Deadline returns when the armed timer fires. ok is false when nothing is armed.
func (s *Scheduler) Deadline() (deadline time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SchedulerArmed {
		return time.Time{}, false
	}
	return s.deadline, true
}

func (s *Scheduler) expire(gen uint64, fn func()) {
	s.mu.Lock()
	if gen != s.generation || s.state != SchedulerArmed {
		s.mu.Unlock()
		return
	}
	s.state = SchedulerFired
	s.timer = nil
	s.deadline = time.Time{}
	s.mu.Unlock()

	fn()
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.deadline = time.Time{}
}
