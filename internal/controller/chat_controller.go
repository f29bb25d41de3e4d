package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"ai-supportdesk-be/internal/dto"
	"ai-supportdesk-be/internal/pkg/serverutils"
	"ai-supportdesk-be/internal/service"
	"ai-supportdesk-be/pkg/dialogue"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	CreateSession(ctx *fiber.Ctx) error
	GetAllSessions(ctx *fiber.Ctx) error
	GetChatHistory(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	StreamMessage(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
	auth        fiber.Handler
}

func NewChatController(chatService service.IChatService, auth fiber.Handler) IChatController {
	return &chatController{
		chatService: chatService,
		auth:        auth,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(c.auth)
	h.Post("session", c.CreateSession)
	h.Get("session", c.GetAllSessions)
	h.Get("session/:id/history", c.GetChatHistory)
	h.Delete("session/:id", c.DeleteSession)
	h.Post("session/:id/message", c.StreamMessage)
}

func (c *chatController) CreateSession(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	var req dto.CreateChatSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.CreateSession(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create chat session", res))
}

func (c *chatController) GetAllSessions(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	res, err := c.chatService.GetAllSessions(ctx.Context(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get chat sessions", res))
}

func (c *chatController) GetChatHistory(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	idParam := ctx.Params("id")
	sessionId, err := uuid.Parse(idParam)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid session id")
	}

	res, err := c.chatService.GetChatHistory(ctx.Context(), userId, sessionId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get chat history", res))
}

func (c *chatController) DeleteSession(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	idParam := ctx.Params("id")
	sessionId, err := uuid.Parse(idParam)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid session id")
	}

	if err := c.chatService.DeleteSession(ctx.Context(), userId, sessionId); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success delete chat session", nil))
}

// StreamMessage runs one dialogue turn and streams typed events back as
// server-sent events: text tokens, mcq, ticket, node markers, then done.
func (c *chatController) StreamMessage(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	idParam := ctx.Params("id")
	sessionId, err := uuid.Parse(idParam)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid session id")
	}

	var req dto.SendChatMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// The fiber context is gone once this writer runs; a broken pipe on
		// flush cancels the in-flight turn so nothing half-done is committed.
		streamCtx, cancel := context.WithCancel(context.Background())
		defer cancel()

		emit := func(ev dialogue.StreamEvent) error {
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				cancel()
				return err
			}
			if err := w.Flush(); err != nil {
				cancel()
				return err
			}
			return nil
		}

		if err := c.chatService.StreamMessage(streamCtx, userId, sessionId, req.Message, emit); err != nil {
			data, _ := json.Marshal(dialogue.ErrorEvent(streamErrorMessage(err)))
			fmt.Fprintf(w, "data: %s\n\n", data)
			w.Flush()
		}
	}))

	return nil
}

func streamErrorMessage(err error) string {
	switch {
	case err == dialogue.ErrTurnInProgress:
		return "A turn is already being processed for this session"
	case dialogue.IsLanguageModelError(err):
		return "Language model call failed, please retry"
	default:
		return "Failed to process message"
	}
}
