package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
	"github.com/smallbiznis/recoverly/internal/recovery"
	reminderdomain "github.com/smallbiznis/recoverly/internal/reminder/domain"
	storefrontdomain "github.com/smallbiznis/recoverly/internal/storefront/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, storefrontdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, storefrontdomain.ErrNoConnection):
		return http.StatusNotFound, errorPayload{
			Type:    "no_connection",
			Message: "no active storefront connection",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, recovery.ErrRunInFlight):
		return http.StatusConflict, errorPayload{
			Type:    "run_in_flight",
			Message: "a recovery run is already in progress for this tenant",
		}
	case errors.Is(err, reminderdomain.ErrMissingTemplate):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "missing_template",
			Message: "reminder template is not configured",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, storefrontdomain.ErrTokenRefreshFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "token_refresh_failed",
			Message: "storefront token refresh failed",
		}
	case errors.Is(err, storefrontdomain.ErrFetchFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "fetch_failed",
			Message: "storefront request failed",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code logged with the request.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isCartValidationError(err),
		isReminderValidationError(err),
		isStorefrontValidationError(err):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, cartdomain.ErrNotFound),
		errors.Is(err, reminderdomain.ErrTemplateNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isCartValidationError(err error) bool {
	switch {
	case errors.Is(err, cartdomain.ErrInvalidTenant),
		errors.Is(err, cartdomain.ErrInvalidID),
		errors.Is(err, cartdomain.ErrInvalidStatus),
		errors.Is(err, cartdomain.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}

func isReminderValidationError(err error) bool {
	switch {
	case errors.Is(err, reminderdomain.ErrInvalidTenant),
		errors.Is(err, reminderdomain.ErrInvalidID),
		errors.Is(err, reminderdomain.ErrInvalidDelay),
		errors.Is(err, reminderdomain.ErrInvalidTemplateType),
		errors.Is(err, reminderdomain.ErrInvalidTemplateName),
		errors.Is(err, reminderdomain.ErrInvalidTemplateContent),
		errors.Is(err, reminderdomain.ErrTemplateTypeMismatch):
		return true
	default:
		return false
	}
}

func isStorefrontValidationError(err error) bool {
	switch {
	case errors.Is(err, storefrontdomain.ErrInvalidTenant),
		errors.Is(err, storefrontdomain.ErrInvalidWebhook),
		errors.Is(err, storefrontdomain.ErrMissingWebhookData),
		errors.Is(err, recovery.ErrInvalidTenant):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	for _, sentinel := range []error{
		ErrInvalidRequest,
		storefrontdomain.ErrInvalidWebhook,
		storefrontdomain.ErrMissingWebhookData,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
