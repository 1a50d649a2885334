package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"browtool/pkg/bus"
	"browtool/pkg/runner"
	"browtool/pkg/telemetry"
)

// StreamMessage is one typed frame on the streaming run socket.
type StreamMessage struct {
	Type     string `json:"type"` // info, stdout, stderr, error, done
	Message  string `json:"message,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

// handleRunStream runs a tool over a WebSocket, forwarding output lines as
// they are produced. Arguments arrive as a JSON object in the `args` query
// parameter. A client disconnect stops forwarding; the child process runs
// to completion regardless.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	args := map[string]any{}
	if raw := r.URL.Query().Get("args"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			respondErrorMessage(w, http.StatusBadRequest, "args must be a JSON object")
			return
		}
	}
	capture := r.URL.Query().Get("capture") == "true"

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.Server.AllowedOrigins,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	telemetry.MetricWSClients.Inc()
	defer telemetry.MetricWSClients.Dec()

	// connCtx tracks the client; runCtx is deliberately detached so a
	// dropped client does not kill the running script.
	connCtx := r.Context()
	runCtx := context.Background()

	var writeMu sync.Mutex
	send := func(msg StreamMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = wsjson.Write(connCtx, conn, msg)
	}

	send(StreamMessage{Type: "info", Message: "starting " + name})
	s.publishEvent(bus.SubjectRunStarted, map[string]any{"tool": name, "streaming": true})

	sink := runner.SinkFuncs{
		OnLine: func(stream, text string) {
			send(StreamMessage{Type: stream, Message: text})
			s.publishEvent(bus.SubjectRunLine, map[string]any{"tool": name, "stream": stream, "line": text})
		},
		OnDone: func(code int) {
			send(StreamMessage{Type: "done", ExitCode: &code})
		},
	}

	result, err := s.toolset.InvokeStreaming(runCtx, name, args, capture, sink)
	if err != nil {
		send(StreamMessage{Type: "error", Message: err.Error()})
		conn.Close(websocket.StatusInternalError, "run failed")
		return
	}

	s.publishEvent(bus.SubjectRunFinished, map[string]any{
		"tool":      name,
		"ok":        result.Ok,
		"exit_code": result.ExitCode,
		"streaming": true,
	})

	conn.Close(websocket.StatusNormalClosure, "done")
}
