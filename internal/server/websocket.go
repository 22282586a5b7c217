package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"sidekick-relay/internal/models"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = maxBodyBytes
)

// WebSocket command actions.
const (
	actionChatCompletion = "chatCompletion"
	actionStopGeneration = "stopGeneration"
	actionClearHistory   = "clearHistory"
	actionAddToHistory   = "addToHistory"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	// Extension pages connect from a chrome-extension:// origin.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsCommand is an inbound frame. Descriptor fields apply to chatCompletion,
// role and content to addToHistory.
type wsCommand struct {
	Action string `json:"action"`
	descriptorPayload
	Role    models.Role `json:"role,omitempty"`
	Content string      `json:"content,omitempty"`
}

// wsAck answers a command that was refused, or reports the session a
// chatCompletion started.
type wsAck struct {
	Type      string `json:"type"`
	Action    string `json:"action"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.ws.WriteJSON(v); err != nil {
		slog.Debug("failed to write websocket frame", "error", err)
		return err
	}
	return nil
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// handleWebSocket carries commands in and relay events out over one
// connection, mirroring the HTTP command routes and the SSE event stream.
func (s *Server) handleWebSocket(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("failed to upgrade the websocket", "error", err)
		return nil
	}
	defer ws.Close()

	conn := &wsConn{ws: ws}
	sub := s.relay.Subscribe()
	defer sub.Close()
	slog.Info("websocket client connected", "remote", c.RealIP())

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pumpEvents(conn, sub.Events(), done)
	}()

	ws.SetReadLimit(wsMaxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var cmd wsCommand
		if err := ws.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Info("websocket client disconnected", "error", err)
			}
			break
		}
		_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))

		if ack, ok := s.dispatch(cmd); ok {
			if err := conn.send(ack); err != nil {
				break
			}
		}
	}

	close(done)
	wg.Wait()
	return nil
}

// dispatch runs one command and returns the acknowledgement to send, if any.
func (s *Server) dispatch(cmd wsCommand) (wsAck, bool) {
	ack := wsAck{Type: "ack", Action: cmd.Action}

	switch cmd.Action {
	case actionChatCompletion:
		id, err := s.start(cmd.descriptorPayload)
		if err != nil {
			ack.Error = err.Error()
			return ack, true
		}
		ack.SessionID = id
		return ack, true

	case actionStopGeneration:
		s.relay.Cancel()
		return ack, false

	case actionClearHistory:
		s.relay.ClearHistory()
		return ack, false

	case actionAddToHistory:
		if err := s.relay.AppendHistory(models.Turn{Role: cmd.Role, Content: cmd.Content}); err != nil {
			ack.Error = err.Error()
			return ack, true
		}
		return ack, false

	default:
		ack.Error = "unknown action " + cmd.Action
		return ack, true
	}
}

func (s *Server) pumpEvents(conn *wsConn, events <-chan models.StreamEvent, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = conn.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "event subscriber dropped"),
					time.Now().Add(wsWriteWait))
				return
			}
			if err := conn.send(ev); err != nil {
				return
			}
		}
	}
}
