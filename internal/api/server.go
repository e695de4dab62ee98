package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-backend/internal/auth"
	"github.com/fathima-sithara/chat-backend/internal/config"
	"github.com/fathima-sithara/chat-backend/internal/service"
	"github.com/fathima-sithara/chat-backend/internal/storage"
	"github.com/fathima-sithara/chat-backend/internal/ws"
)

func NewServer(cfg *config.Config, svc *service.MessageService, blobs storage.BlobStore, wsrv *ws.Server, jv *auth.JWTValidator, log *zap.Logger) *fiber.App {
	app := fiber.New()
	app.Use(logger.New())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	h := NewHandlers(svc, blobs, log)

	api := app.Group("/v1")
	api.Use(func(c *fiber.Ctx) error {
		hdr := c.Get("Authorization")
		if hdr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing auth"})
		}
		const pref = "Bearer "
		if len(hdr) <= len(pref) || hdr[:len(pref)] != pref {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid auth"})
		}
		sub, err := jv.Validate(hdr[len(pref):])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals("user_id", sub)
		return c.Next()
	})

	api.Post("/messages/direct", h.sendDirect)
	api.Post("/messages/group", h.sendGroup)
	api.Get("/messages/direct/:user_id", h.fetchDirect)
	api.Get("/groups/:group_id/messages", h.fetchGroup)
	api.Post("/messages/:msg_id/read", h.markRead)
	api.Delete("/messages/:msg_id", h.deleteMessage)
	api.Post("/uploads", h.upload)

	// socket upgrade authenticates via ?token= because browsers cannot set
	// headers on websocket dials
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		sub, err := jv.Validate(c.Query("token"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals("user_id", sub)
		return c.Next()
	})
	app.Get("/ws", websocket.New(wsrv.HandleWS))

	return app
}
