package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/opentraffic/analyst/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, not_found, region_too_large, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

// errConflict returns a 409 error.
func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusConflict, "conflict", msg)
}

// errRegionTooLarge returns a 422 error.
func errRegionTooLarge(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusUnprocessableEntity, "region_too_large", msg)
}

// errTooManyTiles returns a 422 error.
func errTooManyTiles(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusUnprocessableEntity, "too_many_tiles", msg)
}

// errUpstream returns a 502 error.
func errUpstream(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadGateway, "upstream_error", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errServiceUnavailable returns a 503 error.
func errServiceUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusServiceUnavailable, "unavailable", msg)
}

// pipelineError maps a region pipeline error onto the error envelope.
func pipelineError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidBounds):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrRegionTooLarge):
		return errRegionTooLarge(c, domain.MessageRegionTooLarge)
	case errors.Is(err, domain.ErrSuperseded):
		return errConflict(c, "a newer query replaced this one")
	case errors.Is(err, domain.ErrNoRoute):
		return errNotFound(c, "no route found for the selected area")
	default:
		LoggerFromCtx(c.UserContext()).Error("region pipeline error", "error", err)
		return errUpstream(c, domain.MessageFetchFailed)
	}
}
