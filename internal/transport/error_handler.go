package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/exception-collector/internal/domain"
	"github.com/kursadbilgin/exception-collector/internal/ratelimit"
	"go.uber.org/zap"
)

// StatusForError maps domain sentinel errors to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrRateLimited):
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := StatusForError(err)
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error("request error",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err),
			)
		}

		body := fiber.Map{"error": err.Error()}

		var limitErr *ratelimit.LimitExceededError
		if errors.As(err, &limitErr) {
			c.Set(fiber.HeaderRetryAfter, limitErr.ResetAt.UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT"))
			body["window"] = string(limitErr.Window)
			body["resetAt"] = limitErr.ResetAt.UTC()
		}

		return c.Status(code).JSON(body)
	}
}
