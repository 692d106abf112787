package display

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rfmetrics/powermeter/internal/meter"
)

const (
	liveWriteWait    = 5 * time.Second
	livePingInterval = 30 * time.Second
	livePingWait     = 10 * time.Second
)

// LiveSink pushes readings to websocket panels. Connections register
// through HandleWebSocket; every reading is broadcast to all of them, and
// a client that attaches mid-run is caught up with the latest reading
// straight away.
type LiveSink struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex // each connection has its own write mutex
	last    []byte
}

// NewLiveSink creates a sink with no connected clients.
func NewLiveSink(logger *slog.Logger) *LiveSink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger
	}
	return &LiveSink{
		logger:  logger,
		clients: make(map[*websocket.Conn]*sync.Mutex),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Panels are served off the LAN from wherever is handy
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Clients returns the number of attached panels.
func (s *LiveSink) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// HandleWebSocket upgrades the request and serves it until the peer goes
// away.
func (s *LiveSink) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	writeMu := &sync.Mutex{}
	s.mu.Lock()
	s.clients[conn] = writeMu
	last := s.last
	count := len(s.clients)
	s.mu.Unlock()

	s.logger.Info("live client connected",
		slog.String("remote", r.RemoteAddr), slog.Int("clients", count))

	// Catch the new client up before the next tick lands
	if last != nil {
		writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		err = conn.WriteMessage(websocket.TextMessage, last)
		writeMu.Unlock()
		if err != nil {
			s.drop(conn)
			return
		}
	}

	go s.ping(conn, writeMu)

	// Inbound messages are discarded; the loop exists to notice the peer
	// closing
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.drop(conn)
	s.logger.Info("live client disconnected",
		slog.String("remote", r.RemoteAddr), slog.Int("clients", s.Clients()))
}

// Publish broadcasts the reading to every attached client and remembers it
// for clients that attach later.
func (s *LiveSink) Publish(r meter.Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("display: marshaling reading: %w", err)
	}

	// Snapshot the client list first; slow websocket writes must not hold
	// the map lock
	s.mu.Lock()
	s.last = data
	conns := make([]*websocket.Conn, 0, len(s.clients))
	mutexes := make([]*sync.Mutex, 0, len(s.clients))
	for conn, mu := range s.clients {
		conns = append(conns, conn)
		mutexes = append(mutexes, mu)
	}
	s.mu.Unlock()

	var failed []*websocket.Conn
	for i, conn := range conns {
		mutexes[i].Lock()
		conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutexes[i].Unlock()

		if err != nil {
			failed = append(failed, conn)
		}
	}

	if len(failed) > 0 {
		for _, conn := range failed {
			s.drop(conn)
		}
		s.logger.Warn("dropped unresponsive live clients",
			slog.Int("dropped", len(failed)), slog.Int("clients", s.Clients()))
	}

	return nil
}

// Close disconnects every client. Their handler goroutines unwind on the
// read error.
func (s *LiveSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.clients {
		_ = conn.Close()
		delete(s.clients, conn)
	}
}

func (s *LiveSink) drop(conn *websocket.Conn) {
	s.mu.Lock()
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		_ = conn.Close()
	}
	s.mu.Unlock()
}

func (s *LiveSink) ping(conn *websocket.Conn, writeMu *sync.Mutex) {
	ticker := time.NewTicker(livePingInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.RLock()
		_, exists := s.clients[conn]
		s.mu.RUnlock()
		if !exists {
			return
		}

		writeMu.Lock()
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(livePingWait))
		writeMu.Unlock()
		if err != nil {
			return
		}
	}
}
