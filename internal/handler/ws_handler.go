package handler

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/examflow/internal/session"
	"github.com/stemsi/examflow/internal/stream"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams session snapshots and notices to the UI host.
type WSHandler struct {
	manager  *session.Manager
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(manager *session.Manager, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		manager:  manager,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream
// Upgrades to WebSocket and pushes a state event for every snapshot change
// plus a notice event for every user-facing notification. The socket is
// observe-only: mutations go over HTTP.
func (h *WSHandler) SessionStream(c *gin.Context) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}
	orch, err := h.manager.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("session_id", id.String()).Logger()
	wsLog.Info().Msg("Host connected")

	// Subscriber callbacks fire from engine goroutines; one mutex
	// serializes them against the read-loop pong writes below.
	var writeMu sync.Mutex
	push := func(v any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := stream.WriteTyped(conn, v); err != nil {
			wsLog.Debug().Err(err).Msg("Push failed")
		}
	}

	unsubState := orch.SubscribeState(func(snap session.Snapshot) {
		push(stream.StateEvent{Event: stream.EventState, Snapshot: snap})
	})
	defer unsubState()

	unsubNotices := orch.SubscribeNotices(func(n session.Notice) {
		push(stream.NoticeEvent{Event: stream.EventNotice, Notice: n})
	})
	defer unsubNotices()

	for {
		var msg stream.RequestEnvelope
		if err := stream.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case stream.ActionPing:
			push(stream.PongEvent{Event: stream.EventPong})
		default:
			push(stream.ErrorEvent{Event: stream.EventError, Error: "unknown action"})
		}
	}
}
