package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/shahnawazAlam3641/geekZone/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow CORS for demo; tighten in prod.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RegisterWS mounts GET /ws for authenticated clients.
// Auth works via:
// 1) Header: Authorization: Bearer <JWT>
// 2) Query:  ?token=<JWT>
// 3) Cookie: gz_token
func RegisterWS(rg *gin.RouterGroup, hub *Hub, relay *Relay, jwtSecret string) {
	rg.GET("/ws", func(c *gin.Context) {
		token := auth.TokenFromRequest(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		cl, err := auth.ParseToken(jwtSecret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		client := &Client{
			Hub:    hub,
			Relay:  relay,
			Conn:   conn,
			Send:   make(chan []byte, 256),
			UserID: cl.UserID,
		}
		hub.Register(client)
		// Joining the identity room on connect lets notifications reach the
		// user before any explicit announce.
		hub.Join(client, cl.UserID)

		go client.writePump()
		go client.readPump()
	})
}
