package controller

import (
	"ai-supportdesk-be/internal/pkg/serverutils"
	"ai-supportdesk-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ITicketController interface {
	RegisterRoutes(r fiber.Router)
	Submit(ctx *fiber.Ctx) error
	GetAll(ctx *fiber.Ctx) error
}

type ticketController struct {
	ticketService service.ITicketService
	auth          fiber.Handler
}

func NewTicketController(ticketService service.ITicketService, auth fiber.Handler) ITicketController {
	return &ticketController{
		ticketService: ticketService,
		auth:          auth,
	}
}

func (c *ticketController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/ticket/v1")
	h.Use(c.auth)
	h.Post("session/:sessionId/submit", c.Submit)
	h.Get("", c.GetAll)
}

func (c *ticketController) Submit(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	sessionIdParam := ctx.Params("sessionId")
	sessionId, err := uuid.Parse(sessionIdParam)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid session id")
	}

	res, err := c.ticketService.Submit(ctx.Context(), userId, sessionId)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success submit ticket", res))
}

func (c *ticketController) GetAll(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	res, err := c.ticketService.GetAll(ctx.Context(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get tickets", res))
}
