package api

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-backend/internal/domain"
	"github.com/fathima-sithara/chat-backend/internal/service"
	"github.com/fathima-sithara/chat-backend/internal/storage"
)

type Handlers struct {
	svc   *service.MessageService
	blobs storage.BlobStore
	log   *zap.Logger
}

func NewHandlers(svc *service.MessageService, blobs storage.BlobStore, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{svc: svc, blobs: blobs, log: log}
}

type sendDirectRequest struct {
	RecipientID    string              `json:"recipient_id"`
	Content        string              `json:"content"`
	DestroyAfterMs int64               `json:"destroy_after_ms"`
	Attachments    []domain.Attachment `json:"attachments"`
}

func (h *Handlers) sendDirect(c *fiber.Ctx) error {
	var req sendDirectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	user := c.Locals("user_id").(string)

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()
	res, err := h.svc.SendDirect(ctx, user, req.RecipientID, req.Content, req.Attachments, time.Duration(req.DestroyAfterMs)*time.Millisecond)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": res})
}

type sendGroupRequest struct {
	GroupID        string              `json:"group_id"`
	Content        string              `json:"content"`
	DestroyAfterMs int64               `json:"destroy_after_ms"`
	Attachments    []domain.Attachment `json:"attachments"`
}

func (h *Handlers) sendGroup(c *fiber.Ctx) error {
	var req sendGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	user := c.Locals("user_id").(string)

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()
	res, err := h.svc.SendGroup(ctx, user, req.GroupID, req.Content, req.Attachments, time.Duration(req.DestroyAfterMs)*time.Millisecond)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": res})
}

func (h *Handlers) fetchDirect(c *fiber.Ctx) error {
	user := c.Locals("user_id").(string)
	other := c.Params("user_id")
	limit := int64(c.QueryInt("limit", 50))

	msgs, err := h.svc.FetchDirect(c.Context(), user, other, limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": msgs})
}

func (h *Handlers) fetchGroup(c *fiber.Ctx) error {
	user := c.Locals("user_id").(string)
	groupID := c.Params("group_id")
	limit := int64(c.QueryInt("limit", 50))

	msgs, err := h.svc.FetchGroup(c.Context(), user, groupID, limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": msgs})
}

func (h *Handlers) markRead(c *fiber.Ctx) error {
	user := c.Locals("user_id").(string)
	if err := h.svc.MarkRead(c.Context(), c.Params("msg_id"), user); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) deleteMessage(c *fiber.Ctx) error {
	user := c.Locals("user_id").(string)
	if err := h.svc.SoftDelete(c.Context(), c.Params("msg_id"), user); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// upload stores a multipart file and returns the attachment descriptor the
// client passes back on send.
func (h *Handlers) upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file required"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable file"})
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable file"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()
	res, err := h.blobs.Put(ctx, storage.Blob{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		h.log.Error("upload failed", zap.String("name", fh.Filename), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upload failed"})
	}

	att := domain.Attachment{
		Type:       "file",
		URL:        res.URL,
		Key:        res.Key,
		Name:       fh.Filename,
		Size:       fh.Size,
		MimeType:   fh.Header.Get("Content-Type"),
		UploadedAt: time.Now().UTC(),
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": att})
}

func (h *Handlers) fail(c *fiber.Ctx, err error) error {
	var se *domain.StoreError
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrRecipientNotFound),
		errors.Is(err, domain.ErrGroupNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrNotAuthorized), errors.Is(err, domain.ErrNotAMember):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrCrypto):
		// never leak the cryptographic cause
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "message unreadable"})
	case errors.As(err, &se):
		h.log.Error("store failure", zap.String("op", se.Op), zap.Error(se.Err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "store unavailable"})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
}
