package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/rentfold/rentfold/internal/billing/domain"
	gatewaydomain "github.com/rentfold/rentfold/internal/gateway/domain"
	rewardsdomain "github.com/rentfold/rentfold/internal/rewards/domain"
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
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, billingdomain.ErrGatewayDeclined):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "gateway_declined",
			Message: err.Error(),
		}
	case errors.Is(err, billingdomain.ErrNoActiveGateway),
		errors.Is(err, gatewaydomain.ErrNoActiveConfig):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "no_active_gateway",
			Message: "no active gateway configured",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
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
	case errors.Is(err, billingdomain.ErrInvalidAmount),
		errors.Is(err, billingdomain.ErrInvalidPageToken),
		errors.Is(err, rewardsdomain.ErrInvalidRewardAmount),
		errors.Is(err, gatewaydomain.ErrInvalidPayload),
		errors.Is(err, gatewaydomain.ErrInvalidSignature),
		errors.Is(err, gatewaydomain.ErrInvalidProvider),
		errors.Is(err, gatewaydomain.ErrProviderNotFound):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, billingdomain.ErrInvoiceNotFound),
		errors.Is(err, billingdomain.ErrPaymentNotFound),
		errors.Is(err, billingdomain.ErrLeaseNotFound),
		errors.Is(err, billingdomain.ErrLineItemNotFound),
		errors.Is(err, rewardsdomain.ErrBalanceNotFound),
		errors.Is(err, rewardsdomain.ErrConfigNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, billingdomain.ErrInvoiceNotMutable),
		errors.Is(err, billingdomain.ErrNothingDue),
		errors.Is(err, billingdomain.ErrAlreadyProcessed),
		errors.Is(err, billingdomain.ErrInvoiceAlreadyExists),
		errors.Is(err, billingdomain.ErrReceiptUnavailable),
		errors.Is(err, rewardsdomain.ErrNotRewardPayment):
		return true
	default:
		return false
	}
}
