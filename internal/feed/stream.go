package feed

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/alertcast/alertcast/internal/metrics"
)

const (
	// streamPingInterval is the liveness ping cadence for the push stream.
	streamPingInterval = 30 * time.Second

	// streamWriteTimeout bounds control-frame writes.
	streamWriteTimeout = 10 * time.Second

	// streamHandshakeTimeout bounds the websocket dial.
	streamHandshakeTimeout = 10 * time.Second
)

// StreamHandler consumes raw push-stream frames. Implemented by Processor.
type StreamHandler interface {
	HandleStreamMessage(raw []byte)
}

// Stream maintains the websocket connection to the push feed, delivering
// frames to the handler and reconnecting with a fixed backoff on any close
// or error. The single run loop guarantees at most one reconnect in flight.
type Stream struct {
	log       *zap.SugaredLogger
	url       string
	reconnect time.Duration
	handler   StreamHandler
	health    *Health
	metrics   *metrics.Metrics
	dialer    *websocket.Dialer

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStream creates a push-stream listener. Call Start to connect.
func NewStream(
	log *zap.SugaredLogger,
	url string,
	reconnect time.Duration,
	handler StreamHandler,
	health *Health,
	m *metrics.Metrics,
) *Stream {
	return &Stream{
		log:       log,
		url:       url,
		reconnect: reconnect,
		handler:   handler,
		health:    health,
		metrics:   m,
		dialer: &websocket.Dialer{
			HandshakeTimeout: streamHandshakeTimeout,
		},
	}
}

// Start launches the connect/read/reconnect loop.
func (s *Stream) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)

	for {
		if ctx.Err() != nil {
			return
		}

		conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}

		if err != nil {
			s.log.Errorw("Stream connect failed",
				"url", s.url,
				"error", err.Error())
			s.metrics.StreamReconnects.Inc()

			if !sleepCtx(ctx, s.reconnect) {
				return
			}

			continue
		}

		s.log.Infow("Stream connected", "url", s.url)
		s.health.SetStreamConnected(true)

		s.readLoop(ctx, conn)

		s.health.SetStreamConnected(false)
		s.log.Warnw("Stream disconnected")

		if ctx.Err() != nil {
			return
		}

		s.metrics.StreamReconnects.Inc()

		if !sleepCtx(ctx, s.reconnect) {
			return
		}
	}
}

// readLoop reads frames until the connection breaks or the context is
// canceled. A side goroutine sends liveness pings and force-closes the
// connection on cancellation so the blocking read returns.
func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	readDone := make(chan struct{})
	defer close(readDone)

	go func() {
		ticker := time.NewTicker(streamPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(streamWriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					s.log.Debugw("Stream ping failed", "error", err.Error())
					conn.Close()

					return
				}
			case <-ctx.Done():
				conn.Close()

				return
			case <-readDone:
				conn.Close()

				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Debugw("Stream read failed", "error", err.Error())
			}

			return
		}

		s.handler.HandleStreamMessage(raw)
	}
}

// Stop closes the connection and waits for the run loop to exit.
func (s *Stream) Stop() {
	if s.cancel == nil {
		return
	}

	s.cancel()
	<-s.done
	s.cancel = nil

	s.log.Infow("Stream stopped")
}

// sleepCtx waits for d or until ctx is canceled. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
