package ws

import (
	"time"

	"github.com/gorilla/websocket"

	"RigWatch/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client bridges one websocket connection and the hub. Subscribers are
// read-only; inbound frames are drained solely to service pongs and closes.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  *logger.Logger
}

// NewClient wraps an upgraded connection and registers it with the hub.
func NewClient(hub *Hub, conn *websocket.Conn, log *logger.Logger) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 32),
		log:  log,
	}
	hub.register <- c
	return c
}

func (c *Client) remoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// ReadPump drains the connection until it closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("websocket read error", logger.Error(err))
			}
			return
		}
	}
}

// WritePump forwards hub messages to the connection and keeps it alive with
// pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("websocket write error", logger.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
