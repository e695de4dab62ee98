package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-backend/internal/metrics"
	"github.com/fathima-sithara/chat-backend/internal/presence"
	"github.com/fathima-sithara/chat-backend/internal/service"
)

// Server owns the hub and bridges it to the message service: inbound frames
// become service calls, service notifications become outbound frames.
type Server struct {
	Hub      *Hub
	svc      *service.MessageService
	registry presence.Registry
	log      *zap.Logger
}

func NewServer(svc *service.MessageService, registry presence.Registry, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{Hub: NewHub(), svc: svc, registry: registry, log: log}
}

// HandleWS is the websocket.Handler used with websocket.New(). Locals set by
// the JWT middleware survive the upgrade.
func (s *Server) HandleWS(wsConn *websocket.Conn) {
	userID, _ := wsConn.Locals("user_id").(string)
	if userID == "" {
		_ = wsConn.Close()
		return
	}

	conn := &Connection{
		ws:     wsConn,
		send:   make(chan []byte, 256),
		userID: userID,
		connID: uuid.NewString(),
		srv:    s,
	}

	s.Hub.Register(conn)
	if groupID := wsConn.Query("group_id"); groupID != "" {
		s.Hub.JoinGroup(groupID, conn)
	}
	metrics.Connections.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := s.registry.Register(ctx, userID, conn.connID); err != nil {
		s.log.Warn("presence register failed", zap.String("user_id", userID), zap.Error(err))
	}
	cancel()

	go conn.writePump()
	conn.readPump()
}

func (s *Server) drop(c *Connection) {
	s.Hub.Unregister(c)
	close(c.send)
	metrics.Connections.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.registry.Unregister(ctx, c.userID, c.connID); err != nil {
		s.log.Warn("presence unregister failed", zap.String("user_id", c.userID), zap.Error(err))
	}
}

func (s *Server) markRead(msgID, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.svc.MarkRead(ctx, msgID, userID); err != nil {
		s.log.Warn("ws mark read failed", zap.String("msg_id", msgID), zap.Error(err))
	}
}

// NotifyUser implements service.Notifier. Fire-and-forget: an offline or
// slow recipient loses nothing, the message is already persisted.
func (s *Server) NotifyUser(userID string, ev *service.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.Hub.SendToUser(userID, b)
}

// NotifyGroup implements service.Notifier.
func (s *Server) NotifyGroup(groupID string, ev *service.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.Hub.BroadcastToGroup(groupID, b)
}

// HandleEventMessage relays broker events from other instances into the
// local hub.
func (s *Server) HandleEventMessage(_ string, value []byte) {
	var ev service.Event
	if err := json.Unmarshal(value, &ev); err != nil {
		s.log.Warn("invalid relay event", zap.Error(err))
		return
	}
	switch {
	case ev.GroupID != "":
		s.NotifyGroup(ev.GroupID, &ev)
	case ev.UserID != "":
		s.NotifyUser(ev.UserID, &ev)
	}
}
