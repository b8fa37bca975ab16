package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type CreateDocumentRequest struct {
	Title string `json:"title" validate:"max=200"`
}

type RenameRequest struct {
	Title string `json:"title" validate:"max=200"`
}

type ContentRequest struct {
	Content *string `json:"content" validate:"required"`
}

type ObfuscateRequest struct {
	Mode string `json:"mode" validate:"omitempty,oneof=standard premium auracrypt STANDARD PREMIUM"`
}

type SelectionRequest struct {
	Action string `json:"action" validate:"omitempty,oneof=uppercase lowercase capitalize remove"`
	Start  int    `json:"start" validate:"gte=0"`
	End    int    `json:"end" validate:"gtefield=Start"`
}

var validate = validator.New()

// validateRequest turns validator errors into a 400 listing the fields.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fiber.NewError(fiber.StatusBadRequest, strings.Join(msgs, "; "))
}

func parseBody(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	return validateRequest(req)
}
