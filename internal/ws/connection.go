package ws

import (
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
)

type Connection struct {
	ws     *websocket.Conn
	send   chan []byte
	userID string
	connID string
	srv    *Server
}

func (c *Connection) trySend(msg []byte) {
	select {
	case c.send <- msg:
	default:
		// slow client, drop the frame
	}
}

func (c *Connection) readPump() {
	defer c.srv.drop(c)

	c.ws.SetReadLimit(64 * 1024)
	_ = c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case "join":
			if env.GroupID != "" {
				c.srv.Hub.JoinGroup(env.GroupID, c)
			}
		case "leave":
			if env.GroupID != "" {
				c.srv.Hub.LeaveGroup(env.GroupID, c)
			}
		case "read":
			if env.MsgID != "" {
				c.srv.markRead(env.MsgID, c.userID)
			}
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
