package api

import (
	"errors"
	"net/http"
	"os"

	echo "github.com/labstack/echo/v5"

	"github.com/buxiuxian/summer-project/pkg/models"
)

// SessionSummary is the wire representation of a stored session,
// omitting message bodies from the list view (spec.md §4.6 List row).
type SessionSummary struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updated_at"`
}

// SessionDetail is the wire representation of one session including its
// full message history (spec.md §4.6 Load row).
type SessionDetail struct {
	SessionID string               `json:"session_id"`
	Title     string               `json:"title"`
	UpdatedAt string               `json:"updated_at"`
	Messages  []SessionChatMessage `json:"messages"`
}

// SessionChatMessage mirrors models.ChatMessage for the wire format.
type SessionChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// requestToken extracts the caller's token, accepted either as a bearer
// header or a query parameter so a browser-native EventSource/fetch can
// reach these endpoints without custom headers (spec.md §4.8 Auth: the
// token travels however the transport makes convenient, never in the URL
// path itself).
func requestToken(c *echo.Context) string {
	if auth := c.Request().Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
		return auth[7:]
	}
	return c.QueryParam("token")
}

// listSessionsHandler handles GET /api/v1/sessions.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	sessions, err := s.store.List(c.Request().Context(), requestToken(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "could not list sessions")
	}
	out := make([]SessionSummary, len(sessions))
	for i, sess := range sessions {
		out[i] = SessionSummary{
			SessionID: sess.SessionID,
			Title:     sess.Title,
			UpdatedAt: sess.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	return c.JSON(http.StatusOK, out)
}

// getSessionHandler handles GET /api/v1/sessions/:id.
func (s *Server) getSessionHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}
	session, err := s.store.Load(c.Request().Context(), requestToken(c), id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusBadGateway, "could not load session")
	}
	return c.JSON(http.StatusOK, toSessionDetail(session))
}

// deleteSessionHandler handles DELETE /api/v1/sessions/:id.
func (s *Server) deleteSessionHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}
	if err := s.store.Delete(c.Request().Context(), requestToken(c), id); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "could not delete session")
	}
	return c.NoContent(http.StatusNoContent)
}

func toSessionDetail(session *models.ChatSession) SessionDetail {
	messages := make([]SessionChatMessage, len(session.Messages))
	for i, m := range session.Messages {
		messages[i] = SessionChatMessage{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	return SessionDetail{
		SessionID: session.SessionID,
		Title:     session.Title,
		UpdatedAt: session.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Messages:  messages,
	}
}
