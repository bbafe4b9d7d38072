package fetch_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~gioverse/dynlist/fetch"
)

func TestIssueEmitsAndArms(t *testing.T) {
	clock := fetch.NewManualClock(time.Unix(0, 0))
	var emitted []*fetch.Request
	coord := fetch.NewCoordinator(clock, clock.Scheduler(), nil, fetch.Hooks{
		Emit:     func(r *fetch.Request) { emitted = append(emitted, r) },
		TimedOut: func(*fetch.Request, bool) {},
	})

	req := coord.Issue("locatorA", time.Second, 1)
	require.Len(t, emitted, 1)
	assert.Equal(t, req, emitted[0])
	assert.Equal(t, 1, coord.Outstanding())
}

func TestTimeoutRetriesThenGivesUp(t *testing.T) {
	clock := fetch.NewManualClock(time.Unix(0, 0))
	var timedOut []bool
	coord := fetch.NewCoordinator(clock, clock.Scheduler(), nil, fetch.Hooks{
		Emit:     func(*fetch.Request) {},
		TimedOut: func(_ *fetch.Request, retrying bool) { timedOut = append(timedOut, retrying) },
	})

	coord.Issue("locatorA", time.Second, 1)
	clock.Advance(time.Second)
	require.Len(t, timedOut, 1)
	assert.True(t, timedOut[0], "first timeout has a retry available")
	assert.Equal(t, 1, coord.Outstanding(), "retry re-armed a replacement request")

	clock.Advance(time.Second)
	require.Len(t, timedOut, 2)
	assert.False(t, timedOut[1], "retries exhausted")
	assert.Equal(t, 0, coord.Outstanding())
}

func TestResolveRemovesOutstanding(t *testing.T) {
	clock := fetch.NewManualClock(time.Unix(0, 0))
	coord := fetch.NewCoordinator(clock, clock.Scheduler(), nil, fetch.Hooks{
		Emit: func(*fetch.Request) {}, TimedOut: func(*fetch.Request, bool) {},
	})
	req := coord.Issue("locatorA", time.Second, 0)
	coord.Resolve(req.Token)
	assert.Equal(t, 0, coord.Outstanding())

	clock.Advance(time.Second)
	_, ok := coord.Lookup(req.Token)
	assert.False(t, ok)
}

func TestOldestMatchesLowestToken(t *testing.T) {
	clock := fetch.NewManualClock(time.Unix(0, 0))
	coord := fetch.NewCoordinator(clock, clock.Scheduler(), nil, fetch.Hooks{
		Emit: func(*fetch.Request) {}, TimedOut: func(*fetch.Request, bool) {},
	})
	first := coord.Issue("region", time.Minute, 0)
	coord.Issue("region", time.Minute, 0)

	got, ok := coord.Oldest(func(r *fetch.Request) bool { return r.Locator == "region" })
	require.True(t, ok)
	assert.Equal(t, first.Token, got.Token)
}

func TestCancelMatchingMakesTimeoutANoop(t *testing.T) {
	clock := fetch.NewManualClock(time.Unix(0, 0))
	fired := false
	coord := fetch.NewCoordinator(clock, clock.Scheduler(), nil, fetch.Hooks{
		Emit:     func(*fetch.Request) {},
		TimedOut: func(*fetch.Request, bool) { fired = true },
	})
	coord.Issue("region", time.Second, 0)
	coord.CancelMatching(func(r *fetch.Request) bool { return r.Locator == "region" })
	assert.Equal(t, 0, coord.Outstanding())

	clock.Advance(time.Second)
	assert.False(t, fired, "a cancelled request's timer must not fire")
}

func TestManualClockAdvanceFiresInScheduleOrder(t *testing.T) {
	clock := fetch.NewManualClock(time.Unix(0, 0))
	var order []int
	clock.Scheduler().Schedule(time.Second, func() { order = append(order, 1) })
	clock.Scheduler().Schedule(time.Second, func() { order = append(order, 2) })
	clock.Scheduler().Schedule(2*time.Second, func() { order = append(order, 3) })

	clock.Advance(time.Second)
	assert.Equal(t, []int{1, 2}, order)

	clock.Advance(time.Second)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestScheduleCancelPreventsFire(t *testing.T) {
	clock := fetch.NewManualClock(time.Unix(0, 0))
	fired := false
	cancel := clock.Scheduler().Schedule(time.Second, func() { fired = true })
	cancel()
	clock.Advance(time.Second)
	assert.False(t, fired)
}
