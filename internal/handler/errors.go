package handler

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/requestr/api/internal/model"
	"github.com/requestr/api/pkg/response"
)

// StatusFor maps an error kind to its HTTP status code.
func StatusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindNotFound, model.KindOwnerNotFound:
		return fiber.StatusNotFound
	case model.KindForbidden:
		return fiber.StatusForbidden
	case model.KindUnauthorized:
		return fiber.StatusUnauthorized
	case model.KindOwnerInactive, model.KindInvalidTransition, model.KindInvalidArgument, model.KindInvalidPermutation:
		return fiber.StatusBadRequest
	case model.KindConflict:
		return fiber.StatusConflict
	case model.KindStoreUnavailable, model.KindUpstreamUnavailable:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// writeError renders a service error with the kind as the error code. The
// underlying cause is logged, never sent to the client.
func writeError(c *fiber.Ctx, err error) error {
	kind := model.KindOf(err)
	status := StatusFor(kind)

	if status >= fiber.StatusInternalServerError {
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "kind", kind, "error", err)
	}
	if kind == model.KindUnauthorized {
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	}

	return response.Error(c, status, string(kind), model.MessageOf(err), nil)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
