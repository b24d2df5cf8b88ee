package sinks

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/twstocklab/stockboard/internal/progress"
)

const wsWriteTimeout = 5 * time.Second

// WebsocketSink broadcasts progress events as JSON frames to connected
// dashboard clients. Slow or dead clients are dropped rather than blocking
// the flush.
type WebsocketSink struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewWebsocketSink constructs the sink.
func NewWebsocketSink(logger *zap.Logger) *WebsocketSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebsocketSink{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The dashboard is served from the same origin in production;
			// cross-origin subscribers are read-only so accept them.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client until it closes.
func (s *WebsocketSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("progress subscriber connected", zap.Int("subscribers", n))

	// Drain reads so close frames are processed; drop on any error.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.remove(conn)
				return
			}
		}
	}()
}

// Consume fans the batch out to every connected client.
func (s *WebsocketSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	if len(conns) == 0 {
		return nil
	}

	frames := make([]wsFrame, 0, len(batch))
	for _, evt := range batch {
		frames = append(frames, newFrame(evt))
	}
	for _, conn := range conns {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			s.remove(conn)
			continue
		}
		if err := conn.WriteJSON(frames); err != nil {
			s.logger.Debug("dropping websocket subscriber", zap.Error(err))
			s.remove(conn)
		}
	}
	return nil
}

// Close disconnects all clients.
func (s *WebsocketSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		_ = conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	return nil
}

func (s *WebsocketSink) remove(conn *websocket.Conn) {
	s.mu.Lock()
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		_ = conn.Close()
	}
	s.mu.Unlock()
}

// wsFrame is the JSON shape pushed to dashboard clients.
type wsFrame struct {
	RunID     string `json:"run_id"`
	TS        string `json:"ts"`
	Stage     string `json:"stage"`
	Symbol    string `json:"symbol,omitempty"`
	Batch     int    `json:"batch"`
	Outcome   string `json:"outcome,omitempty"`
	Total     int64  `json:"total"`
	Processed int64  `json:"processed"`
	Succeeded int64  `json:"succeeded"`
	Failed    int64  `json:"failed"`
	ElapsedMs int64  `json:"elapsed_ms"`
	State     string `json:"state,omitempty"`
	Note      string `json:"note,omitempty"`
}

func newFrame(evt progress.Event) wsFrame {
	return wsFrame{
		RunID:     evt.RunUUID().String(),
		TS:        evt.TS.UTC().Format(time.RFC3339Nano),
		Stage:     string(evt.Stage),
		Symbol:    evt.Symbol,
		Batch:     evt.Batch,
		Outcome:   string(evt.Outcome),
		Total:     evt.Total,
		Processed: evt.Processed,
		Succeeded: evt.Succeeded,
		Failed:    evt.Failed,
		ElapsedMs: evt.Dur.Milliseconds(),
		State:     evt.State,
		Note:      evt.Note,
	}
}
