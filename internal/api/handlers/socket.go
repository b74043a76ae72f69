package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/shipyardci/shipyard/internal/api/models"
	"github.com/shipyardci/shipyard/internal/orchestrator"
)

// SocketHandler upgrades HTTP connections to WebSocket log streams for
// the currently-running build of a project (spec §4.E/§6).
type SocketHandler struct {
	ingress  *orchestrator.Ingress
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewSocketHandler creates a SocketHandler over ingress.
func NewSocketHandler(ingress *orchestrator.Ingress, logger *slog.Logger) *SocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketHandler{
		ingress: ingress,
		logger:  logger.With("component", "socket-handler"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Subscribe handles GET <project>/<socket endpoint>?token=<socketToken>.
func (h *SocketHandler) Subscribe(projectName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token, _ = ExtractBearerSocketToken(c)
		}

		result, err := h.ingress.Subscribe(projectName, token)
		if err != nil {
			models.RespondWithError(c, models.NewNotFoundError(c.Request.URL.Path, "no matching build for this token"))
			return
		}
		defer result.Detach()

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Debug("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		if history, err := json.Marshal(result.History); err == nil {
			if err := conn.WriteMessage(websocket.TextMessage, history); err != nil {
				return
			}
		}

		go drainIncoming(conn)

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case data, ok := <-result.Live:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}

// drainIncoming discards client frames; the protocol defines none, but
// reads must continue so control frames (close, pong) are processed.
func drainIncoming(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ExtractBearerSocketToken reads a bearer token from the Authorization
// header for clients that cannot set a query parameter on a WebSocket
// handshake.
func ExtractBearerSocketToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):], true
	}
	return "", false
}
