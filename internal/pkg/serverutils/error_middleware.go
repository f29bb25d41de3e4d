package serverutils

import (
	"errors"

	"ai-supportdesk-be/internal/pkg/logger"
	"ai-supportdesk-be/pkg/dialogue"
	"ai-supportdesk-be/pkg/retrieval"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware maps domain errors bubbling out of handlers to
// stable status codes. Anything unrecognized is a 500 with the detail kept
// in the logs only.
func ErrorHandlerMiddleware(appLogger logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		statusCode := fiber.StatusInternalServerError
		message := "Internal server error"

		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &fiberErr):
			statusCode = fiberErr.Code
			message = fiberErr.Message
		case errors.Is(err, retrieval.ErrInvalidQuery):
			statusCode = fiber.StatusBadRequest
			message = "Query must not be empty"
		case errors.Is(err, retrieval.ErrRetrieverUnavailable):
			statusCode = fiber.StatusServiceUnavailable
			message = "Retrieval back-end unavailable"
		case errors.Is(err, dialogue.ErrClarificationAlreadyPending):
			statusCode = fiber.StatusConflict
			message = "A clarifying question is already awaiting a reply"
		case errors.Is(err, dialogue.ErrTicketAlreadySubmitted):
			statusCode = fiber.StatusConflict
			message = "Ticket has already been submitted"
		case errors.Is(err, dialogue.ErrNoTicketDraft):
			statusCode = fiber.StatusConflict
			message = "No ticket draft exists for this session"
		case errors.Is(err, dialogue.ErrTurnInProgress):
			statusCode = fiber.StatusConflict
			message = "A turn is already being processed for this session"
		case dialogue.IsLanguageModelError(err):
			statusCode = fiber.StatusBadGateway
			message = "Language model call failed"
		}

		if statusCode >= fiber.StatusInternalServerError {
			appLogger.Error("http", "Unhandled request error", map[string]interface{}{
				"path":  ctx.Path(),
				"error": err.Error(),
			})
		} else {
			appLogger.Warn("http", "Request failed", map[string]interface{}{
				"path":   ctx.Path(),
				"status": statusCode,
				"error":  err.Error(),
			})
		}

		return ctx.Status(statusCode).JSON(ErrorEnvelope(message))
	}
}
