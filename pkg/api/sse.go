package api

import (
	"encoding/json"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

// sseEvent is the wire shape shared by both streaming endpoints,
// /chat/stream and /execute/stream (spec
// §4.8 "Event shape (all endpoints): {type, data, ts}"). ts is the frame's
// emission time, not the originating engine event's time.
type sseEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
	TS   string `json:"ts"`
}

// sseWriter streams sseEvent frames on an open HTTP response, following
// itsneelabh-gomind's SSECallback pattern (write + flush per frame) adapted
// to this system's single {type,data,ts} envelope rather than named SSE
// event types.
type sseWriter struct {
	resp *echo.Response
}

// newSSEWriter sets the SSE response headers and returns a writer.
func newSSEWriter(c *echo.Context) *sseWriter {
	resp := c.Response()
	h := resp.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	return &sseWriter{resp: resp}
}

// send writes one SSE frame. Errors from a broken client connection are
// swallowed by the caller loop (detected instead via ctx.Done()).
func (s *sseWriter) send(eventType string, data any) error {
	payload, err := json.Marshal(sseEvent{Type: eventType, Data: data, TS: time.Now().Format(time.RFC3339Nano)})
	if err != nil {
		return err
	}
	if _, err := s.resp.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.resp.Write(payload); err != nil {
		return err
	}
	if _, err := s.resp.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.resp.Flush()
	return nil
}
