package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/accounts/internal/auth/domain"
	"github.com/smallbiznis/accounts/internal/authorization"
	catalogdomain "github.com/smallbiznis/accounts/internal/catalog/domain"
	chargedomain "github.com/smallbiznis/accounts/internal/charge/domain"
	orgdomain "github.com/smallbiznis/accounts/internal/organization/domain"
	orgtypedomain "github.com/smallbiznis/accounts/internal/orgtype/domain"
	paymentdomain "github.com/smallbiznis/accounts/internal/payment/domain"
	"github.com/smallbiznis/accounts/internal/ratelimit"
	signupdomain "github.com/smallbiznis/accounts/internal/signup/domain"
	userdomain "github.com/smallbiznis/accounts/internal/user/domain"
	"github.com/smallbiznis/accounts/pkg/db/pagination"
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

var validationErrors = []error{
	ErrInvalidRequest,
	signupdomain.ErrInvalidRequest,
	pagination.ErrInvalidPageToken,

	userdomain.ErrInvalidUsername,
	userdomain.ErrInvalidEmail,
	userdomain.ErrInvalidPassword,
	userdomain.ErrInvalidSource,

	orgdomain.ErrInvalidName,
	orgdomain.ErrInvalidUser,
	orgdomain.ErrInvalidEmail,
	orgdomain.ErrInvalidMaxUsers,
	orgdomain.ErrInvalidPlan,
	orgdomain.ErrInvalidSubtype,
	orgdomain.ErrIndividualOrganization,
	orgdomain.ErrLastAdmin,

	orgtypedomain.ErrInvalidName,
	orgtypedomain.ErrInvalidType,
	orgtypedomain.ErrInvalidSubtype,

	catalogdomain.ErrInvalidName,
	catalogdomain.ErrInvalidSlug,
	catalogdomain.ErrInvalidPrice,
	catalogdomain.ErrInvalidMinimumUsers,
	catalogdomain.ErrInvalidPlan,
	catalogdomain.ErrInvalidEntitlement,
	catalogdomain.ErrInvalidAudience,

	chargedomain.ErrInvalidAmount,
	chargedomain.ErrAmountBelowMinimum,
	chargedomain.ErrInvalidFeeAmount,
	chargedomain.ErrInvalidDescription,
	chargedomain.ErrInvalidToken,
	chargedomain.ErrNoPaymentMethod,

	paymentdomain.ErrInvalidSignature,
	paymentdomain.ErrInvalidPayload,
}

var notFoundErrors = []error{
	ErrNotFound,
	userdomain.ErrUserNotFound,
	orgdomain.ErrOrganizationNotFound,
	orgdomain.ErrMembershipNotFound,
	orgtypedomain.ErrTypeNotFound,
	orgtypedomain.ErrSubtypeNotFound,
	catalogdomain.ErrPlanNotFound,
	catalogdomain.ErrEntitlementNotFound,
	chargedomain.ErrChargeNotFound,
	paymentdomain.ErrProviderNotFound,
	paymentdomain.ErrWebhookDisabled,
	gorm.ErrRecordNotFound,
}

var conflictErrors = []error{
	ErrConflict,
	userdomain.ErrDuplicateUser,
	orgdomain.ErrDuplicateMembership,
	orgdomain.ErrOrganizationHasCharges,
	orgtypedomain.ErrDuplicateType,
	orgtypedomain.ErrDuplicateSubtype,
	orgtypedomain.ErrTypeProtected,
	catalogdomain.ErrDuplicatePlan,
	catalogdomain.ErrDuplicateEntitlement,
	chargedomain.ErrChargeInProgress,
}

// field names for codes that do not follow the invalid_<field> convention
var validationFields = map[string]string{
	"amount_below_minimum":            "amount",
	"no_payment_method":               "token",
	"last_admin":                      "admin",
	"invalid_individual_organization": "organization",
	"invalid_signup_request":          "request",
	"invalid_signature":               "signature",
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

		var limitErr *ratelimit.LimitError
		if errors.As(lastErr.Err, &limitErr) && limitErr.RetryAfter > 0 {
			seconds := int(limitErr.RetryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
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

	var paymentErr *chargedomain.PaymentError
	if errors.As(err, &paymentErr) {
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_failed",
			Message: paymentErr.Message,
		}
	}

	if matched := firstMatch(err, validationErrors); matched != nil {
		code := matched.Error()
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
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidToken),
		errors.Is(err, authdomain.ErrTokenExpired):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case firstMatch(err, conflictErrors) != nil:
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: firstMatch(err, conflictErrors).Error(),
		}
	case firstMatch(err, notFoundErrors) != nil:
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, chargedomain.ErrRateLimited),
		errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many charge attempts, retry later",
		}
	case errors.Is(err, chargedomain.ErrChargeNotRecorded):
		return http.StatusInternalServerError, errorPayload{
			Type:    "charge_not_recorded",
			Message: "the payment succeeded but could not be recorded; do not retry",
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

// classifyErrorForLog feeds the request logger's error_type and error_code fields.
func classifyErrorForLog(err error) (string, string) {
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

func firstMatch(err error, targets []error) error {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

func validationErrorField(code string) string {
	if field, ok := validationFields[code]; ok {
		return field
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
	case "amount_below_minimum":
		return "amount is below the minimum charge"
	case "no_payment_method":
		return "no card on file; provide a token"
	case "last_admin":
		return "an organization must keep at least one admin"
	case "invalid_individual_organization":
		return "not allowed on an individual organization"
	default:
		return "invalid value"
	}
}
