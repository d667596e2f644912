package hub

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"nhooyr.io/websocket"

	"github.com/user/mdview/internal/term"
)

type Client struct {
	token term.ClientToken
	conn  *websocket.Conn
	send  chan []byte
	hub   *Hub
}

func newClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		token: term.NewClientToken(),
		conn:  conn,
		send:  make(chan []byte, 256),
		hub:   hub,
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		// A dropped connection unsubscribes the client everywhere,
		// starting grace timers for sessions left without listeners.
		c.hub.registry.RemoveSubscriberAll(c.token)
		c.hub.unregisterClient(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(256 * 1024)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				log.Printf("client %s read error: %v", c.token, err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("client %s invalid message: %v", c.token, err)
			c.hub.sendError(c, "", "invalid message format")
			continue
		}

		c.hub.route(c, msg)
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}

			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}
