package feed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/alertcast/alertcast/internal/metrics"
)

type recordingHandler struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *recordingHandler) HandleStreamMessage(raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frames = append(r.frames, raw)
}

func (r *recordingHandler) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.frames)
}

// startFrameServer runs a websocket endpoint that sends the given frames on
// every connection and then closes it.
func startFrameServer(t *testing.T, frames []string, connections *int, mu *sync.Mutex) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		mu.Lock()
		*connections++
		mu.Unlock()

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
	}))

	t.Cleanup(server.Close)

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestStream(t *testing.T) {
	t.Run("delivers frames to the handler", func(t *testing.T) {
		var (
			connections int
			mu          sync.Mutex
		)

		server := startFrameServer(t, []string{`{"areas":"Tel Aviv","alert_type":1}`}, &connections, &mu)

		handler := &recordingHandler{}
		health := NewHealth()
		s := NewStream(zap.NewNop().Sugar(), wsURL(server), 10*time.Millisecond,
			handler, health, metrics.New(prometheus.NewRegistry()))

		s.Start()
		defer s.Stop()

		assert.Eventually(t, func() bool {
			return handler.frameCount() >= 1
		}, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("reconnects after the server closes the connection", func(t *testing.T) {
		var (
			connections int
			mu          sync.Mutex
		)

		server := startFrameServer(t, nil, &connections, &mu)

		s := NewStream(zap.NewNop().Sugar(), wsURL(server), 10*time.Millisecond,
			&recordingHandler{}, NewHealth(), metrics.New(prometheus.NewRegistry()))

		s.Start()
		defer s.Stop()

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()

			return connections >= 2
		}, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("stop ends the loop even while disconnected", func(t *testing.T) {
		s := NewStream(zap.NewNop().Sugar(), "ws://127.0.0.1:1/nowhere", 10*time.Millisecond,
			&recordingHandler{}, NewHealth(), metrics.New(prometheus.NewRegistry()))

		s.Start()

		done := make(chan struct{})
		go func() {
			s.Stop()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Stop() did not complete within timeout")
		}
	})

	t.Run("health tracks the connection state", func(t *testing.T) {
		var (
			connections int
			mu          sync.Mutex
		)

		// A server that holds the connection open.
		upgrader := websocket.Upgrader{}
		hold := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()

			mu.Lock()
			connections++
			mu.Unlock()

			<-hold
		}))
		t.Cleanup(server.Close)
		t.Cleanup(func() { close(hold) })

		health := NewHealth()
		s := NewStream(zap.NewNop().Sugar(), wsURL(server), 10*time.Millisecond,
			&recordingHandler{}, health, metrics.New(prometheus.NewRegistry()))

		s.Start()
		defer s.Stop()

		assert.Eventually(t, func() bool {
			return health.Snapshot().StreamConnected
		}, 2*time.Second, 5*time.Millisecond)
	})
}
