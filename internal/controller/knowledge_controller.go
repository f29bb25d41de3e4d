package controller

import (
	"ai-supportdesk-be/internal/dto"
	"ai-supportdesk-be/internal/pkg/serverutils"
	"ai-supportdesk-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IKnowledgeController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	Update(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	GetAll(ctx *fiber.Ctx) error
}

type knowledgeController struct {
	knowledgeService service.IKnowledgeService
	auth             fiber.Handler
}

func NewKnowledgeController(knowledgeService service.IKnowledgeService, auth fiber.Handler) IKnowledgeController {
	return &knowledgeController{
		knowledgeService: knowledgeService,
		auth:             auth,
	}
}

func (c *knowledgeController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/knowledge/v1")
	h.Use(c.auth)
	h.Post("", c.Create)
	h.Get("", c.GetAll)
	h.Put(":id", c.Update)
	h.Delete(":id", c.Delete)
}

func (c *knowledgeController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateKnowledgeItemRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.knowledgeService.Create(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create knowledge passage", res))
}

func (c *knowledgeController) Update(ctx *fiber.Ctx) error {
	idParam := ctx.Params("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid passage id")
	}

	var req dto.UpdateKnowledgeItemRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.knowledgeService.Update(ctx.Context(), id, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update knowledge passage", res))
}

func (c *knowledgeController) Delete(ctx *fiber.Ctx) error {
	idParam := ctx.Params("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid passage id")
	}

	if err := c.knowledgeService.Delete(ctx.Context(), id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success delete knowledge passage", nil))
}

func (c *knowledgeController) GetAll(ctx *fiber.Ctx) error {
	res, err := c.knowledgeService.GetAll(ctx.Context())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get knowledge passages", res))
}
