package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/invoicekits/invoicekits/internal/account/domain"
	apikeydomain "github.com/invoicekits/invoicekits/internal/apikey/domain"
	batchdomain "github.com/invoicekits/invoicekits/internal/batch/domain"
	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
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
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
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

		var rateErr *batchdomain.RateLimitError
		if errors.As(lastErr.Err, &rateErr) && rateErr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(rateErr)))
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
		errors.Is(err, apikeydomain.ErrInvalidKey),
		errors.Is(err, apikeydomain.ErrInvalidCompany),
		errors.Is(err, invoicedomain.ErrInvalidCompany),
		errors.Is(err, batchdomain.ErrInvalidCompany):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, invoicedomain.ErrQuotaExceeded),
		errors.Is(err, accountdomain.ErrQuotaExceeded):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "quota_exceeded",
			Message: batchdomain.MsgQuotaExceeded,
		}
	case errors.Is(err, batchdomain.ErrUploadNotAllowed):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "plan_upgrade_required",
			Message: "Batch upload is not available on your plan.",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, batchdomain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "file_too_large",
			Message: "file too large",
		}
	case errors.Is(err, batchdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many uploads, retry later",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, invoicedomain.ErrInvalidTransition),
		errors.Is(err, invoicedomain.ErrNotEditable),
		errors.Is(err, invoicedomain.ErrLateFeeAlreadyApplied),
		errors.Is(err, invoicedomain.ErrNoLateFee),
		errors.Is(err, batchdomain.ErrNotPending),
		errors.Is(err, batchdomain.ErrBusy),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, invoicedomain.ErrRendererUnavailable):
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

// classifyErrorForLog returns the error type and code logged per request.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, invoicedomain.ErrInvalidTransition):
		return "invoice status does not allow this action"
	case errors.Is(err, invoicedomain.ErrNotEditable):
		return "only draft invoices can be edited"
	case errors.Is(err, invoicedomain.ErrLateFeeAlreadyApplied):
		return "a late fee has already been applied"
	case errors.Is(err, invoicedomain.ErrNoLateFee):
		return "no late fee to remove"
	case errors.Is(err, batchdomain.ErrNotPending):
		return "batch is not pending"
	case errors.Is(err, batchdomain.ErrBusy):
		return "batch is being processed"
	default:
		return "conflict"
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
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isInvoiceValidationError(err),
		isCompanyValidationError(err),
		isBatchValidationError(err),
		errors.Is(err, apikeydomain.ErrInvalidName),
		errors.Is(err, apikeydomain.ErrInvalidKeyID),
		errors.Is(err, accountdomain.ErrInvalidTier):
		return true
	default:
		return false
	}
}

func isInvoiceValidationError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, invoicedomain.ErrInvalidClientName),
		errors.Is(err, invoicedomain.ErrInvalidDescription),
		errors.Is(err, invoicedomain.ErrInvalidQuantity),
		errors.Is(err, invoicedomain.ErrInvalidRate),
		errors.Is(err, invoicedomain.ErrInvalidTaxRate),
		errors.Is(err, invoicedomain.ErrInvalidDiscount),
		errors.Is(err, invoicedomain.ErrInvalidCurrency),
		errors.Is(err, invoicedomain.ErrInvalidPaymentTerms),
		errors.Is(err, invoicedomain.ErrInvalidTemplateStyle),
		errors.Is(err, invoicedomain.ErrInvalidAmount),
		errors.Is(err, invoicedomain.ErrAmountOverflow):
		return true
	default:
		return false
	}
}

func isCompanyValidationError(err error) bool {
	switch {
	case errors.Is(err, companydomain.ErrInvalidName),
		errors.Is(err, companydomain.ErrInvalidPrefix),
		errors.Is(err, companydomain.ErrInvalidCurrency),
		errors.Is(err, companydomain.ErrInvalidTaxRate),
		errors.Is(err, companydomain.ErrInvalidPaymentTerms),
		errors.Is(err, companydomain.ErrInvalidTemplateStyle),
		errors.Is(err, companydomain.ErrInvalidLateFee):
		return true
	default:
		return false
	}
}

func isBatchValidationError(err error) bool {
	switch {
	case errors.Is(err, batchdomain.ErrInvalidID),
		errors.Is(err, batchdomain.ErrInvalidFile),
		errors.Is(err, batchdomain.ErrInvalidPolicy):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, companydomain.ErrNotFound),
		errors.Is(err, accountdomain.ErrNotFound),
		errors.Is(err, batchdomain.ErrNotFound),
		errors.Is(err, batchdomain.ErrArchiveUnavailable),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, invoicedomain.ErrAmountOverflow):
		return "invalid_amount"
	case errors.Is(err, batchdomain.ErrInvalidFile):
		return "invalid_file"
	case errors.Is(err, batchdomain.ErrInvalidPolicy):
		return "invalid_validation_policy"
	default:
		return err.Error()
	}
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
	case "invalid_file":
		return "upload a non-empty .csv or .xlsx file"
	case "invalid_validation_policy":
		return "validation_policy must be reject_file or skip_rows"
	default:
		return "invalid value"
	}
}

func retryAfterSeconds(err *batchdomain.RateLimitError) int {
	secs := int(err.RetryAfter / time.Second)
	if err.RetryAfter%time.Second != 0 {
		secs++
	}
	return max(secs, 1)
}
