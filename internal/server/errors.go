package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	academicdomain "github.com/smallbiznis/registrar/internal/academic/domain"
	auditdomain "github.com/smallbiznis/registrar/internal/audit/domain"
	"github.com/smallbiznis/registrar/internal/authorization"
	enrollmentdomain "github.com/smallbiznis/registrar/internal/enrollment/domain"
	feedomain "github.com/smallbiznis/registrar/internal/fee/domain"
	gradedomain "github.com/smallbiznis/registrar/internal/grade/domain"
	paymentdomain "github.com/smallbiznis/registrar/internal/payment/domain"
	settlementdomain "github.com/smallbiznis/registrar/internal/settlement/domain"
	soadomain "github.com/smallbiznis/registrar/internal/soa/domain"
	"github.com/smallbiznis/registrar/pkg/db/pagination"
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
	Code    string            `json:"code,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
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

	code := errorCode(err)
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: validationMessage(err),
			Code:    code,
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationMessage(err),
				},
			},
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isPermissionError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
			Code:    code,
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
			Code:    code,
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
			Code:    code,
		}
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, paymentdomain.ErrPaymentRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, paymentdomain.ErrGatewayRequestFailed),
		errors.Is(err, paymentdomain.ErrGatewayNotConfigured):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: err.Error(),
			Code:    code,
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code attached to request logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && payload.Code == "" {
		return payload.Type, "internal_error"
	}
	return payload.Type, payload.Code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrors = []error{
	ErrInvalidRequest,
	pagination.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	enrollmentdomain.ErrInvalidStep,
	enrollmentdomain.ErrInvalidStatus,
	enrollmentdomain.ErrInvalidTransition,
	enrollmentdomain.ErrClassNotInSemester,
	enrollmentdomain.ErrEmployeeNotFound,
	enrollmentdomain.ErrDependentNotFound,
	enrollmentdomain.ErrSiblingNotFound,
	enrollmentdomain.ErrDiscountNotFound,
	enrollmentdomain.ErrMinimumDueNotPaid,
	enrollmentdomain.ErrCurriculumPeriodMissing,
	feedomain.ErrInvalidPeriod,
	paymentdomain.ErrInvalidGateway,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrAmountBelowMinimum,
	paymentdomain.ErrInvalidChannel,
	paymentdomain.ErrInvalidSignature,
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrInvalidStatus,
	paymentdomain.ErrUnsupportedTransaction,
	settlementdomain.ErrUnsupportedGateway,
	settlementdomain.ErrEmptyFile,
	settlementdomain.ErrMissingJVNumber,
	settlementdomain.ErrDecodeFile,
	gradedomain.ErrInvalidField,
	gradedomain.ErrInvalidValue,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isPermissionError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, enrollmentdomain.ErrStepNotAllowed),
		errors.Is(err, enrollmentdomain.ErrEnrollmentClosed),
		errors.Is(err, paymentdomain.ErrAlreadyVoided),
		errors.Is(err, paymentdomain.ErrNotVoidable),
		errors.Is(err, gradedomain.ErrGradeLocked):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, academicdomain.ErrSemesterNotFound),
		errors.Is(err, academicdomain.ErrStudentNotFound),
		errors.Is(err, academicdomain.ErrNoCurrentSemester),
		errors.Is(err, enrollmentdomain.ErrEnrollmentNotFound),
		errors.Is(err, enrollmentdomain.ErrClassNotFound),
		errors.Is(err, soadomain.ErrStatementNotFound),
		errors.Is(err, soadomain.ErrEnrollmentNotFound),
		errors.Is(err, paymentdomain.ErrStatementNotFound),
		errors.Is(err, paymentdomain.ErrTransactionNotFound),
		errors.Is(err, settlementdomain.ErrBatchNotFound),
		errors.Is(err, settlementdomain.ErrJournalVoucherNotFound),
		errors.Is(err, gradedomain.ErrEnrolledClassNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, enrollmentdomain.ErrEnrollmentExists),
		errors.Is(err, settlementdomain.ErrAlreadyProcessed),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	default:
		return false
	}
}

// errorCode returns the sentinel code at the root of err's chain.
func errorCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	code := err.Error()
	if strings.ContainsAny(code, " :") {
		return ""
	}
	return code
}

// validationMessage keeps the detail of wrapped errors such as
// "step_not_allowed: step ... cannot be written".
func validationMessage(err error) string {
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return "invalid value"
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
