package auth

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// HTTPResponse is the JSON envelope for messages and errors
type HTTPResponse struct {
	Timestamp  time.Time         `json:"timestamp"`
	Status     int               `json:"status"`
	Message    string            `json:"message"`
	Code       string            `json:"code,omitempty"`
	Validation map[string]string `json:"validation,omitempty"`
}

// NewHTTPResponse creates a response stamped with the current time
func NewHTTPResponse(status int, message string) HTTPResponse {
	return HTTPResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Message:   message,
	}
}

var statusByTextCode = map[string]int{
	TextCodeTokenMalformed:   http.StatusUnauthorized,
	TextCodeTokenInvalid:     http.StatusUnauthorized,
	TextCodeTokenExpired:     http.StatusUnauthorized,
	TextCodeTokenReplayed:    http.StatusUnauthorized,
	TextCodeUnauthenticated:  http.StatusUnauthorized,
	TextCodeBadCredentials:   http.StatusUnauthorized,
	TextCodeAccountInactive:  http.StatusForbidden,
	TextCodeAccountLocked:    http.StatusLocked,
	TextCodeAccountNotFound:  http.StatusNotFound,
	TextCodeEmailNotFound:    http.StatusNotFound,
	TextCodePasswordMismatch: http.StatusBadRequest,
	TextCodeDeliveryFailed:   http.StatusBadGateway,
	TextCodeForbidden:        http.StatusForbidden,
}

// StatusFromError maps an error to the HTTP status reported to clients
func StatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}

	if status, ok := statusByTextCode[TextCodeOf(err)]; ok {
		return status
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryBadInput, goerrors.CategoryValidation:
			return http.StatusBadRequest
		case goerrors.CategoryAuth:
			return http.StatusUnauthorized
		case goerrors.CategoryNotFound:
			return http.StatusNotFound
		case goerrors.CategoryRateLimit:
			return http.StatusTooManyRequests
		}
	}

	return http.StatusInternalServerError
}

// ErrorResponse writes err as an HTTPResponse. Internal failures are
// reported with a generic message.
func ErrorResponse(c router.Context, err error) error {
	status, resp, retryAfter := buildErrorResponse(err)
	if retryAfter > 0 {
		c.SetHeader(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
	}
	return c.JSON(status, resp)
}

// FiberErrorHandler renders errors raised below the router, such as
// unmatched routes, recovered panics and the login rate limiter, with
// the same envelope as ErrorResponse.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	status, resp, retryAfter := buildErrorResponse(err)
	if retryAfter > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
	}
	return c.Status(status).JSON(resp)
}

func buildErrorResponse(err error) (int, HTTPResponse, int) {
	status := StatusFromError(err)
	resp := NewHTTPResponse(status, err.Error())
	resp.Code = TextCodeOf(err)

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		resp.Message = "invalid request payload"
		resp.Validation = FormatValidationErrorToMap(verrs)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		resp.Message = fiberErr.Message
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		resp.Message = richErr.Message
	}

	if status == http.StatusInternalServerError {
		resp.Message = "internal server error"
		resp.Code = ""
	}

	retryAfter := 0
	if richErr != nil && resp.Code == TextCodeAccountLocked {
		if seconds, ok := richErr.Metadata["retry_after_seconds"].(int); ok && seconds > 0 {
			retryAfter = seconds
		}
	}

	return status, resp, retryAfter
}

// FormatValidationErrorToMap flattens ozzo validation errors by field
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		if err != nil {
			out["error"] = err.Error()
		}
		return out
	}

	for field, ferr := range verrs {
		if ferr != nil {
			out[field] = ferr.Error()
		}
	}
	return out
}
