package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const keepAliveInterval = 15 * time.Second

// handleEvents streams relay events as server-sent events until the client
// disconnects or the hub drops the subscription.
func (s *Server) handleEvents(c echo.Context) error {
	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		slog.Error("http writer does not support flushing")
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}

	sub := s.relay.Subscribe()
	defer sub.Close()

	header := c.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if _, err := io.WriteString(writer, ": keep-alive\n\n"); err != nil {
				return nil
			}
			flusher.Flush()

		case ev, ok := <-sub.Events():
			if !ok {
				slog.Warn("event stream subscriber dropped", "remote", c.RealIP())
				return nil
			}
			if err := writeSSEEvent(writer, string(ev.Type), ev); err != nil {
				slog.Debug("failed to write SSE event", "event", ev.Type, "err", err)
				return nil
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write SSE event name: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write SSE data: %w", err)
	}
	return nil
}
