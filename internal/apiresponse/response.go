// Package apiresponse is the standardized JSON envelope for both HTTP
// surfaces, adapted from ksred-klear-api/pkg/response with two status
// codes added beyond its original set: QuotaExceeded (409) and
// RateLimited (429).
package apiresponse

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ksred/botfleet-control-plane/internal/coordinator"
	"github.com/ksred/botfleet-control-plane/internal/iaas"
	"github.com/ksred/botfleet-control-plane/internal/repository"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
	ErrCodeQuotaExceeded     = "QUOTA_EXCEEDED"
	ErrCodeRateLimited       = "RATE_LIMITED"
)

// Handle maps a domain/repository/coordinator error to the right HTTP
// status. Internal details (DB statements, IaaS bodies) never reach the
// response body.
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	var validationErr *repository.ValidationError
	var quotaErr *coordinator.QuotaExceededError
	var rateLimitedErr *iaas.RateLimitedError

	switch {
	case errors.As(err, &validationErr):
		BadRequest(c, validationErr.Error())
	case errors.As(err, &quotaErr):
		QuotaExceeded(c, quotaErr.Error())
	case repository.IsNotFound(err), errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "resource not found")
	case repository.IsConflict(err), repository.IsInvariantViolation(err):
		Conflict(c, err.Error())
	case errors.As(err, &rateLimitedErr):
		RateLimited(c, "iaas provider rate limited this request")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "resource already exists")
	default:
		InternalError(c, "an unexpected error occurred")
	}
}

func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == http.MethodPost {
		status = http.StatusCreated
	}
	c.JSON(status, Response{Success: true, Data: data})
}

func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{Success: false, Error: &Error{Code: ErrCodeNotFound, Message: message}})
}

func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: &Error{Code: ErrCodeBadRequest, Message: message}})
}

func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{Success: false, Error: &Error{Code: ErrCodeUnauthorized, Message: message}})
}

func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, Response{Success: false, Error: &Error{Code: ErrCodeForbidden, Message: message}})
}

func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Response{Success: false, Error: &Error{Code: ErrCodeInternalError, Message: message}})
}

func Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, Response{Success: false, Error: &Error{Code: ErrCodeDuplicateResource, Message: message}})
}

func QuotaExceeded(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, Response{Success: false, Error: &Error{Code: ErrCodeQuotaExceeded, Message: message}})
}

func RateLimited(c *gin.Context, message string) {
	c.JSON(http.StatusTooManyRequests, Response{Success: false, Error: &Error{Code: ErrCodeRateLimited, Message: message}})
}
