package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sozodigi/telecare/internal/channel"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The relay is reached through the platform's own origins; widget
	// embeds connect from arbitrary pages.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StartOpts holds configuration for the relay server.
type StartOpts struct {
	Hub  *Hub
	Port int
	Out  io.Writer
}

// Start launches the relay server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Hub == nil {
		return fmt.Errorf("relay: hub is required")
	}
	if opts.Port <= 0 {
		opts.Port = 4000
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/ws", handleWS(opts.Hub))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Relay listening on ws://localhost:%d/ws\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}

// handleWS upgrades the connection and attaches the client to the hub.
func handleWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("userId")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "userId is required"})
			return
		}
		client := NewClient(userID, c.Query("userName"), c.Query("role"), c.Query("room"))

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("relay: upgrade for %s: %v", userID, err)
			return
		}

		if !hub.Register(client) {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "room is full"),
				time.Now().Add(writeTimeout))
			conn.Close()
			return
		}

		go writePump(conn, client)
		readPump(conn, hub, client)
	}
}

// readPump feeds inbound frames to the hub until the connection drops,
// then unregisters the client.
func readPump(conn *websocket.Conn, hub *Hub, client *Client) {
	defer func() {
		hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("relay: read from %s: %v", client.ID, err)
			}
			return
		}
		var ev channel.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("relay: bad frame from %s: %v", client.ID, err)
			continue
		}
		hub.Route(client, ev)
	}
}

// writePump drains the client's outbound queue onto the connection and
// keeps the connection alive with pings.
func writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-client.Outbound():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("relay: write to %s: %v", client.ID, err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
