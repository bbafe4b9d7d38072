package fetch

import "time"

// ManualClock is a Clock whose time only moves when Advance is called.
// Exported so that consumers of this package (indexlist, tokenlist) can
// exercise timeout and cache-expiry behavior deterministically in tests.
type ManualClock struct {
	now   time.Time
	sched *ManualScheduler
}

// NewManualClock returns a ManualClock starting at the given instant,
// paired with a fresh ManualScheduler that it will drive on Advance.
func NewManualClock(start time.Time) *ManualClock {
	c := &ManualClock{now: start}
	c.sched = &ManualScheduler{clock: c}
	return c
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time { return c.now }

// Scheduler returns the ManualScheduler bound to this clock.
func (c *ManualClock) Scheduler() *ManualScheduler { return c.sched }

// Advance moves the clock forward by d and fires any scheduled callbacks
// whose deadline has now passed, in the order they were scheduled.
func (c *ManualClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
	c.sched.fire(c.now)
}

type pendingCallback struct {
	deadline time.Time
	callback func()
	fired    bool
}

// ManualScheduler is a Scheduler that only fires callbacks when its bound
// ManualClock is advanced past their deadline; it never spawns goroutines
// or real OS timers, keeping tests on the same single logical thread as
// the code under test.
type ManualScheduler struct {
	clock   *ManualClock
	pending []*pendingCallback
}

// Schedule implements Scheduler.
func (s *ManualScheduler) Schedule(after time.Duration, callback func()) CancelFunc {
	pc := &pendingCallback{
		deadline: s.clock.Now().Add(after),
		callback: callback,
	}
	s.pending = append(s.pending, pc)
	return func() { pc.fired = true }
}

func (s *ManualScheduler) fire(now time.Time) {
	for _, pc := range s.pending {
		if !pc.fired && !now.Before(pc.deadline) {
			pc.fired = true
			pc.callback()
		}
	}
	remaining := s.pending[:0]
	for _, pc := range s.pending {
		if !pc.fired {
			remaining = append(remaining, pc)
		}
	}
	s.pending = remaining
}
