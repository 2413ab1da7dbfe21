package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgercast/ledgercast/internal/logging"
	"github.com/ledgercast/ledgercast/internal/models"
	"github.com/ledgercast/ledgercast/internal/services"
)

// StatusForCode maps a service error code to an HTTP status
func StatusForCode(code string) int {
	switch code {
	case services.CodeInvalidRequest:
		return fiber.StatusBadRequest
	case services.CodeInvalidSeries, services.CodeInsufficientData:
		return fiber.StatusUnprocessableEntity
	case services.CodeNotFound:
		return fiber.StatusNotFound
	case services.CodeTimeout:
		return fiber.StatusGatewayTimeout
	case services.CodeOverloaded:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// codeForStatus names fiber errors that do not come from the service layer
func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusUnprocessableEntity:
		return services.CodeInvalidRequest
	case fiber.StatusNotFound:
		return services.CodeNotFound
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	case fiber.StatusServiceUnavailable:
		return services.CodeOverloaded
	default:
		if status >= fiber.StatusInternalServerError {
			return services.CodeInternal
		}
		return "ERROR"
	}
}

// ErrorHandler renders service errors, fiber errors and anything else as an
// ErrorResponse
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		detail := models.ErrorDetail{
			Code:    services.CodeInternal,
			Message: "Internal Server Error",
		}

		var svcErr *services.ServiceError
		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &svcErr):
			status = StatusForCode(svcErr.Code)
			detail = models.ErrorDetail{Code: svcErr.Code, Message: svcErr.Message, Details: svcErr.Details}
		case errors.As(err, &fiberErr):
			status = fiberErr.Code
			detail = models.ErrorDetail{Code: codeForStatus(status), Message: fiberErr.Message}
		}

		fields := []interface{}{
			"path", c.Path(),
			"method", c.Method(),
			"status", status,
			"error", err,
		}
		if status >= fiber.StatusInternalServerError {
			logger.Error("Request error", fields...)
		} else {
			logger.Debug("Request rejected", fields...)
		}

		return c.Status(status).JSON(models.ErrorResponse{Error: detail})
	}
}
