package arbiter

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alertcast/alertcast/internal/feed"
	"github.com/alertcast/alertcast/internal/metrics"
)

// sinkEvent is one SetTier call in arrival order.
type sinkEvent struct {
	tier   feed.Tier
	active bool
}

type fakeSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (f *fakeSink) SetTier(tier feed.Tier, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, sinkEvent{tier: tier, active: active})
}

func (f *fakeSink) snapshot() []sinkEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]sinkEvent(nil), f.events...)
}

// countInactive counts inactive emissions for one tier.
func (f *fakeSink) countInactive(tier feed.Tier) int {
	count := 0

	for _, ev := range f.snapshot() {
		if ev.tier == tier && !ev.active {
			count++
		}
	}

	return count
}

type playCall struct {
	tier   feed.Tier
	isTest bool
	areas  []string
}

type fakeTrigger struct {
	mu    sync.Mutex
	calls []playCall
}

func (f *fakeTrigger) Play(tier feed.Tier, isTest bool, areas []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, playCall{tier: tier, isTest: isTest, areas: areas})
}

func (f *fakeTrigger) snapshot() []playCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]playCall(nil), f.calls...)
}

func newTestArbiter(t *testing.T, timeout time.Duration, gate func() bool) (*Arbiter, *fakeSink, *fakeTrigger) {
	t.Helper()

	sink := &fakeSink{}
	trigger := &fakeTrigger{}

	a := New(zap.NewNop().Sugar(), timeout, sink, trigger, gate, metrics.New(prometheus.NewRegistry()))
	t.Cleanup(a.Stop)

	return a, sink, trigger
}

func alwaysOpen() bool { return true }

func TestArbiterPrimary(t *testing.T) {
	t.Run("activation marks tier active and triggers playback", func(t *testing.T) {
		a, sink, trigger := newTestArbiter(t, time.Minute, alwaysOpen)

		a.ActivatePrimary([]string{"Tel Aviv"}, false)

		assert.True(t, a.Active(feed.TierPrimary))
		require.Len(t, trigger.snapshot(), 1)
		assert.Equal(t, feed.TierPrimary, trigger.snapshot()[0].tier)
		assert.Equal(t, []sinkEvent{{feed.TierPrimary, true}}, sink.snapshot())
	})

	t.Run("test activation is marked as test playback", func(t *testing.T) {
		a, _, trigger := newTestArbiter(t, time.Minute, alwaysOpen)

		a.ActivatePrimary([]string{"ברחבי הארץ"}, true)

		require.Len(t, trigger.snapshot(), 1)
		assert.True(t, trigger.snapshot()[0].isTest)
	})

	t.Run("primary preempts both lower tiers before going active", func(t *testing.T) {
		a, sink, _ := newTestArbiter(t, time.Minute, alwaysOpen)

		require.True(t, a.ActivateEarlyWarning([]string{"Tel Aviv"}))
		a.ActivatePrimary([]string{"Tel Aviv"}, false)

		assert.True(t, a.Active(feed.TierPrimary))
		assert.False(t, a.Active(feed.TierEarlyWarning))

		events := sink.snapshot()
		require.Len(t, events, 3)
		assert.Equal(t, sinkEvent{feed.TierEarlyWarning, true}, events[0])
		assert.Equal(t, sinkEvent{feed.TierEarlyWarning, false}, events[1], "lower tier goes idle first")
		assert.Equal(t, sinkEvent{feed.TierPrimary, true}, events[2])
	})

	t.Run("all clear forces primary idle", func(t *testing.T) {
		a, sink, _ := newTestArbiter(t, time.Minute, alwaysOpen)

		a.ActivatePrimary([]string{"Tel Aviv"}, false)
		a.AllClear()

		assert.False(t, a.Active(feed.TierPrimary))
		assert.Equal(t, 1, sink.countInactive(feed.TierPrimary))
	})

	t.Run("all clear on idle primary still emits the inactive signal", func(t *testing.T) {
		a, sink, _ := newTestArbiter(t, time.Minute, alwaysOpen)

		a.AllClear()

		assert.Equal(t, 1, sink.countInactive(feed.TierPrimary))
	})

	t.Run("all clear leaves lower tiers alone", func(t *testing.T) {
		a, _, _ := newTestArbiter(t, time.Minute, alwaysOpen)

		require.True(t, a.ActivateFlashAlert([]string{"Haifa"}))
		a.AllClear()

		assert.True(t, a.Active(feed.TierFlashAlert))
	})
}

func TestArbiterTierPriority(t *testing.T) {
	t.Run("early warning rejected while primary active", func(t *testing.T) {
		a, _, trigger := newTestArbiter(t, time.Minute, alwaysOpen)

		a.ActivatePrimary([]string{"Tel Aviv"}, false)

		assert.False(t, a.ActivateEarlyWarning([]string{"Tel Aviv"}))
		assert.Len(t, trigger.snapshot(), 1, "no early warning playback")
	})

	t.Run("early warning rejected while flash active", func(t *testing.T) {
		a, _, _ := newTestArbiter(t, time.Minute, alwaysOpen)

		require.True(t, a.ActivateFlashAlert([]string{"Tel Aviv"}))

		assert.False(t, a.ActivateEarlyWarning([]string{"Tel Aviv"}))
		assert.True(t, a.Active(feed.TierFlashAlert))
	})

	t.Run("flash preempts early warning", func(t *testing.T) {
		a, sink, _ := newTestArbiter(t, time.Minute, alwaysOpen)

		require.True(t, a.ActivateEarlyWarning([]string{"Tel Aviv"}))
		require.True(t, a.ActivateFlashAlert([]string{"Tel Aviv"}))

		assert.False(t, a.Active(feed.TierEarlyWarning))
		assert.True(t, a.Active(feed.TierFlashAlert))
		assert.Equal(t, 1, sink.countInactive(feed.TierEarlyWarning))
	})

	t.Run("flash rejected while primary active", func(t *testing.T) {
		a, _, _ := newTestArbiter(t, time.Minute, alwaysOpen)

		a.ActivatePrimary([]string{"Tel Aviv"}, false)

		assert.False(t, a.ActivateFlashAlert([]string{"Tel Aviv"}))
	})

	t.Run("early warning rejected by the hour gate", func(t *testing.T) {
		a, _, trigger := newTestArbiter(t, time.Minute, func() bool { return false })

		assert.False(t, a.ActivateEarlyWarning([]string{"Tel Aviv"}))
		assert.False(t, a.Active(feed.TierEarlyWarning))
		assert.Empty(t, trigger.snapshot())
	})

	t.Run("hour gate does not apply to flash", func(t *testing.T) {
		a, _, _ := newTestArbiter(t, time.Minute, func() bool { return false })

		assert.True(t, a.ActivateFlashAlert([]string{"Tel Aviv"}))
	})
}

func TestArbiterTimers(t *testing.T) {
	t.Run("tier expires after the timeout", func(t *testing.T) {
		a, sink, _ := newTestArbiter(t, 30*time.Millisecond, alwaysOpen)

		a.ActivatePrimary([]string{"Tel Aviv"}, false)
		require.True(t, a.Active(feed.TierPrimary))

		assert.Eventually(t, func() bool {
			return !a.Active(feed.TierPrimary)
		}, time.Second, 5*time.Millisecond)

		assert.Equal(t, 1, sink.countInactive(feed.TierPrimary))
	})

	t.Run("stale expiry is a no-op after preemption", func(t *testing.T) {
		a, sink, _ := newTestArbiter(t, time.Minute, alwaysOpen)

		require.True(t, a.ActivateEarlyWarning([]string{"Tel Aviv"}))

		// Grab the generation the pending timer belongs to, then preempt.
		a.mu.Lock()
		staleGeneration := a.tiers[feed.TierEarlyWarning].generation
		a.mu.Unlock()

		require.True(t, a.ActivateFlashAlert([]string{"Tel Aviv"}))
		require.Equal(t, 1, sink.countInactive(feed.TierEarlyWarning))

		// Simulate the superseded timer firing anyway.
		a.expire(feed.TierEarlyWarning, staleGeneration)

		assert.Equal(t, 1, sink.countInactive(feed.TierEarlyWarning),
			"stale timer must not emit a second idle transition")
	})

	t.Run("reactivation replaces the timer instead of stacking", func(t *testing.T) {
		a, sink, _ := newTestArbiter(t, time.Minute, alwaysOpen)

		a.ActivatePrimary([]string{"Tel Aviv"}, false)

		a.mu.Lock()
		firstGeneration := a.tiers[feed.TierPrimary].generation
		a.mu.Unlock()

		a.ActivatePrimary([]string{"Tel Aviv", "Haifa"}, false)

		// The first activation's timer firing now must be ignored: the
		// latest activation's window wins.
		a.expire(feed.TierPrimary, firstGeneration)

		assert.True(t, a.Active(feed.TierPrimary))
		assert.Equal(t, 0, sink.countInactive(feed.TierPrimary))
	})

	t.Run("reset cancels the timer and is idempotent", func(t *testing.T) {
		a, sink, _ := newTestArbiter(t, time.Minute, alwaysOpen)

		require.True(t, a.ActivateEarlyWarning([]string{"Tel Aviv"}))

		a.Reset(feed.TierEarlyWarning)
		a.Reset(feed.TierEarlyWarning)

		assert.False(t, a.Active(feed.TierEarlyWarning))
		assert.Equal(t, 1, sink.countInactive(feed.TierEarlyWarning))

		a.mu.Lock()
		assert.Nil(t, a.tiers[feed.TierEarlyWarning].timer, "no timer may stay pending after reset")
		a.mu.Unlock()
	})

	t.Run("expiry on an already idle tier is a safe no-op", func(t *testing.T) {
		a, sink, _ := newTestArbiter(t, time.Minute, alwaysOpen)

		a.expire(feed.TierFlashAlert, 42)

		assert.Empty(t, sink.snapshot())
	})
}

func TestArbiterSnapshot(t *testing.T) {
	t.Run("snapshot reflects active tiers and areas", func(t *testing.T) {
		a, _, _ := newTestArbiter(t, time.Minute, alwaysOpen)

		require.True(t, a.ActivateFlashAlert([]string{"Haifa"}))

		snapshot := a.Snapshot()
		require.Len(t, snapshot, 3)

		assert.False(t, snapshot[feed.TierPrimary].Active)
		assert.False(t, snapshot[feed.TierEarlyWarning].Active)
		assert.True(t, snapshot[feed.TierFlashAlert].Active)
		assert.Equal(t, []string{"Haifa"}, snapshot[feed.TierFlashAlert].Areas)
	})

	t.Run("snapshot areas are a copy", func(t *testing.T) {
		a, _, _ := newTestArbiter(t, time.Minute, alwaysOpen)

		a.ActivatePrimary([]string{"Tel Aviv"}, false)

		snapshot := a.Snapshot()
		snapshot[feed.TierPrimary].Areas[0] = "mutated"

		assert.Equal(t, []string{"Tel Aviv"}, a.Snapshot()[feed.TierPrimary].Areas)
	})

	t.Run("concurrent feeds cannot corrupt tier state", func(t *testing.T) {
		a, _, _ := newTestArbiter(t, time.Minute, alwaysOpen)

		var wg sync.WaitGroup

		for i := 0; i < 4; i++ {
			wg.Add(1)

			go func() {
				defer wg.Done()

				for j := 0; j < 50; j++ {
					a.ActivatePrimary([]string{"Tel Aviv"}, false)
					a.ActivateEarlyWarning([]string{"Tel Aviv"})
					a.ActivateFlashAlert([]string{"Tel Aviv"})
					a.AllClear()
				}
			}()
		}

		wg.Wait()

		// Whatever interleaving happened, the invariant holds: early
		// warning and primary are never active together.
		snapshot := a.Snapshot()
		if snapshot[feed.TierPrimary].Active {
			assert.False(t, snapshot[feed.TierEarlyWarning].Active)
			assert.False(t, snapshot[feed.TierFlashAlert].Active)
		}
	})
}
