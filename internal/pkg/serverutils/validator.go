package serverutils

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// ValidateRequest runs struct validation on an already-parsed request body
// and reports failures as a 400 with a readable message.
func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		var sb strings.Builder
		for _, fieldErr := range err.(validator.ValidationErrors) {
			if sb.Len() > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(fmt.Sprintf("field '%s' failed on '%s'", fieldErr.Field(), fieldErr.Tag()))
		}
		return fiber.NewError(fiber.StatusBadRequest, sb.String())
	}
	return nil
}
