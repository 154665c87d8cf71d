package feed

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alertcast/alertcast/internal/metrics"
)

// HistoryFetcher is the seam between the poller and the HTTP client.
type HistoryFetcher interface {
	FetchHistory() ([]HistoryRecord, error)
}

// HistoryHandler consumes one polled batch. Implemented by Processor.
type HistoryHandler interface {
	ProcessHistory(records []HistoryRecord)
}

// Poller drives the history feed on a fixed cadence. Poll failures are
// logged and counted but never stop the loop; the feed is expected to
// misbehave occasionally.
type Poller struct {
	log      *zap.SugaredLogger
	interval time.Duration
	client   HistoryFetcher
	handler  HistoryHandler
	health   *Health
	metrics  *metrics.Metrics

	stop chan struct{}
	done chan struct{}
}

// NewPoller creates a poller. Call Start to begin polling.
func NewPoller(
	log *zap.SugaredLogger,
	interval time.Duration,
	client HistoryFetcher,
	handler HistoryHandler,
	health *Health,
	m *metrics.Metrics,
) *Poller {
	return &Poller{
		log:      log,
		interval: interval,
		client:   client,
		handler:  handler,
		health:   health,
		metrics:  m,
	}
}

// Start launches the poll loop. The first cycle runs immediately.
func (p *Poller) Start() error {
	if p.stop != nil {
		return fmt.Errorf("poller already running")
	}

	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	go p.loop()

	p.log.Infow("Poller started", "interval", p.interval)

	return nil
}

func (p *Poller) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer close(p.done)

	p.run()

	for {
		select {
		case <-ticker.C:
			p.run()
		case <-p.stop:
			return
		}
	}
}

// run executes one poll cycle.
func (p *Poller) run() {
	records, err := p.client.FetchHistory()
	if err != nil {
		p.log.Errorw("Poll cycle failed", "error", err.Error())
		p.metrics.PollFailures.Inc()

		return
	}

	p.handler.ProcessHistory(records)
	p.health.SetPollSuccess(time.Now())
}

// Stop halts the poll loop and waits for an in-flight cycle to finish.
func (p *Poller) Stop() {
	if p.stop == nil {
		return
	}

	close(p.stop)
	<-p.done
	p.stop = nil

	p.log.Infow("Poller stopped")
}
