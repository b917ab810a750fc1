package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/buxiuxian/summer-project/pkg/models"
)

// wireProgressEvent mirrors models.ProgressEvent for the wire format
// delivered over the progress WebSocket.
type wireProgressEvent struct {
	SessionID string    `json:"session_id"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// progressHandler handles GET /api/v1/chat/progress/:session_id. It
// upgrades the connection to a WebSocket and streams every event
// published for that session until the client disconnects, grounded on
// tarsy's handler_ws.go + pkg/events/manager.go ConnectionManager.HandleConnection:
// accept, subscribe, push a connected event, then forward published
// events until the context or connection closes.
func (s *Server) progressHandler(c *echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	sub := s.hub.Subscribe(sessionID)
	defer s.hub.Unsubscribe(sessionID, sub)

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			data, err := json.Marshal(toWireEvent(event))
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return nil
			}
		}
	}
}

func toWireEvent(e models.ProgressEvent) wireProgressEvent {
	return wireProgressEvent{
		SessionID: e.SessionID,
		Stage:     string(e.Stage),
		Message:   e.Message,
		Timestamp: e.Timestamp,
	}
}

// abortHandler handles POST /api/v1/chat/abort/:session_id (spec.md
// §4.3 abort operation).
func (s *Server) abortHandler(c *echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	found := s.abort.Abort(sessionID)
	return c.JSON(http.StatusOK, map[string]any{
		"session_id": sessionID,
		"aborted":    found,
	})
}
