package feed

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DedupRetention is how long seen alert identities stay in the window.
	// The polled feed re-serves up to two hours of overlapping history.
	DedupRetention = 120 * time.Minute

	// DedupSweepInterval is how often expired identities are evicted.
	DedupSweepInterval = 60 * time.Minute
)

// Window tracks seen alert identities so overlapping history reads cannot
// re-trigger the same physical alert.
type Window struct {
	log *zap.SugaredLogger

	mu   sync.Mutex
	seen map[string]time.Time

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewWindow creates a dedup window and starts its sweep loop.
func NewWindow(log *zap.SugaredLogger) *Window {
	w := &Window{
		log:       log,
		seen:      make(map[string]time.Time),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	go w.sweepLoop()

	return w
}

// SeenOrRecord atomically checks whether identity is new and records it if
// so. Returns true for a new identity, false for a duplicate. The check and
// the insert happen under one lock so two concurrent batches cannot both
// claim the same alert.
func (w *Window) SeenOrRecord(identity string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.seen[identity]; exists {
		return false
	}

	w.seen[identity] = time.Now()

	return true
}

// sweepLoop periodically evicts identities past the retention horizon.
func (w *Window) sweepLoop() {
	ticker := time.NewTicker(DedupSweepInterval)
	defer ticker.Stop()
	defer close(w.sweepDone)

	for {
		select {
		case <-ticker.C:
			w.sweep(time.Now())
		case <-w.stopSweep:
			return
		}
	}
}

// sweep removes identities recorded more than DedupRetention before now.
func (w *Window) sweep(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	expired := 0

	for identity, recordedAt := range w.seen {
		if now.Sub(recordedAt) > DedupRetention {
			delete(w.seen, identity)
			expired++
		}
	}

	if expired > 0 {
		w.log.Debugw("Swept expired dedup entries",
			"expired", expired,
			"remaining", len(w.seen))
	}
}

// Stop stops the sweep loop and waits for it to finish.
func (w *Window) Stop() {
	close(w.stopSweep)
	<-w.sweepDone
}
