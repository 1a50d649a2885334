package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"browtool/pkg/bus"
	"browtool/pkg/logging"
	"browtool/pkg/telemetry"
)

// busEvent is the wire shape of one event on the feeds.
type busEvent struct {
	Subject   string          `json:"subject"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// handleEventsSSE streams run lifecycle events as server-sent events. The
// optional `filter` query parameter is a bus subject pattern (default
// "runs.>"). A heartbeat comment goes out every 30s so proxies keep the
// connection open.
func (s *Server) handleEventsSSE(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		respondErrorMessage(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondErrorMessage(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	pattern := r.URL.Query().Get("filter")
	if pattern == "" {
		pattern = "runs.>"
	}

	// Buffered fan-out with drop-on-full: a stalled client loses events
	// rather than blocking publishers.
	events := make(chan busEvent, 64)
	sub, err := s.bus.Subscribe(r.Context(), pattern, func(msg *bus.Message) {
		select {
		case events <- busEvent{Subject: msg.Subject, Timestamp: time.Now().UTC(), Data: msg.Data}:
		default:
		}
	})
	if err != nil {
		respondErrorMessage(w, http.StatusInternalServerError, "subscribe failed")
		return
	}
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-events:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("event: " + ev.Subject + "\ndata: " + string(payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// wsSubscribeMessage is a client control frame on the events socket.
type wsSubscribeMessage struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Subjects []string `json:"subjects,omitempty"`
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

// handleEventsWS serves the WebSocket event feed. Clients start receiving
// everything under "runs.>" and can narrow with subscribe/unsubscribe
// frames carrying explicit subjects. Slow consumers are dropped.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		respondErrorMessage(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &eventsClient{
		conn:    conn,
		send:    make(chan busEvent, 100),
		allowed: map[string]bool{},
	}

	sub, err := s.bus.Subscribe(r.Context(), "runs.>", func(msg *bus.Message) {
		if !client.wants(msg.Subject) {
			return
		}
		client.trySend(busEvent{Subject: msg.Subject, Timestamp: time.Now().UTC(), Data: msg.Data})
	})
	if err != nil {
		conn.Close()
		return
	}
	defer sub.Unsubscribe()

	if s.logger != nil {
		s.logger.Info(logging.CategoryAPI, "ws_events_connected", r.RemoteAddr, nil)
	}

	go client.writePump()
	client.readPump()
}

type eventsClient struct {
	conn    *websocket.Conn
	send    chan busEvent
	mu      sync.Mutex
	closed  bool
	allowed map[string]bool // empty means all subjects
}

// wants reports whether the client's filter admits subject. With no
// explicit subscriptions every subject passes.
func (c *eventsClient) wants(subject string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.allowed) == 0 {
		return true
	}
	return c.allowed[subject]
}

func (c *eventsClient) setSubjects(subjects []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, subj := range subjects {
		if on {
			c.allowed[subj] = true
		} else {
			delete(c.allowed, subj)
		}
	}
}

// trySend queues an event without blocking. A full buffer means a slow
// consumer, so the connection is torn down instead.
func (c *eventsClient) trySend(ev busEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- ev:
	default:
		c.closed = true
		close(c.send)
	}
}

func (c *eventsClient) closeOnce() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump consumes control frames until the connection drops.
func (c *eventsClient) readPump() {
	defer c.closeOnce()
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		var msg wsSubscribeMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Action {
		case "subscribe":
			c.setSubjects(msg.Subjects, true)
		case "unsubscribe":
			c.setSubjects(msg.Subjects, false)
		}
	}
}

// writePump forwards events and keeps the connection alive with pings.
func (c *eventsClient) writePump() {
	telemetry.MetricWSClients.Inc()
	ping := time.NewTicker(wsPingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
		telemetry.MetricWSClients.Dec()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(wsWriteWait))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
