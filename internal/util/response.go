package util

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/zfogg/daybook/internal/errors"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/repository"
	"go.uber.org/zap"
)

// ErrorResponse is the error half of the response envelope
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// Envelope wraps every /api/v1 response body
type Envelope struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Meta    interface{}    `json:"meta,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// PageMeta is the meta block for paginated lists
type PageMeta struct {
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	Count   int   `json:"count"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"has_more"`
}

// NewPageMeta fills HasMore from the total
func NewPageMeta(limit, offset, count int, total int64) PageMeta {
	return PageMeta{
		Limit:   limit,
		Offset:  offset,
		Count:   count,
		Total:   total,
		HasMore: int64(offset+count) < total,
	}
}

// RespondOK sends a 200 envelope
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// RespondCreated sends a 201 envelope
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// RespondWithMeta sends a 200 envelope with a meta block
func RespondWithMeta(c *gin.Context, data interface{}, meta interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data, Meta: meta})
}

// RespondStatus sends an envelope with an explicit status code
func RespondStatus(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Envelope{Success: true, Data: data})
}

// RespondWithAPIError sends a structured API error response and aborts the chain
func RespondWithAPIError(c *gin.Context, apiErr *errors.APIError) {
	if apiErr.Status >= http.StatusInternalServerError {
		logger.Log.Error("API error",
			zap.String("code", string(apiErr.Code)),
			zap.String("message", apiErr.Message),
			zap.String("path", c.FullPath()),
			zap.Int("status", apiErr.Status),
		)
	} else if apiErr.Status >= http.StatusBadRequest {
		logger.Log.Debug("API error",
			zap.String("code", string(apiErr.Code)),
			zap.String("message", apiErr.Message),
			zap.String("field", apiErr.Field),
		)
	}

	c.AbortWithStatusJSON(apiErr.Status, Envelope{
		Success: false,
		Error: &ErrorResponse{
			Code:    string(apiErr.Code),
			Message: apiErr.Message,
			Field:   apiErr.Field,
			Details: apiErr.Details,
		},
	})
}

// RespondUnauthorized sends a 401 Unauthorized response
func RespondUnauthorized(c *gin.Context, message ...string) {
	msg := "user not authenticated"
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	RespondWithAPIError(c, errors.Unauthorized(msg))
}

// RespondNotFound sends a 404 Not Found response
func RespondNotFound(c *gin.Context, resource string) {
	RespondWithAPIError(c, errors.NotFound(resource))
}

// RespondBadRequest sends a 400 Bad Request response
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithAPIError(c, errors.BadRequest(message))
}

// RespondForbidden sends a 403 Forbidden response
func RespondForbidden(c *gin.Context, message ...string) {
	msg := "forbidden"
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	RespondWithAPIError(c, errors.Forbidden(msg))
}

// RespondInternalError sends a 500 Internal Server Error response
func RespondInternalError(c *gin.Context, message ...string) {
	msg := "internal server error"
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	RespondWithAPIError(c, errors.InternalError(msg))
}

// RespondValidationError sends a 422 Unprocessable Entity response
func RespondValidationError(c *gin.Context, field, message string) {
	RespondWithAPIError(c, errors.ValidationError(field, message))
}

// RespondServiceError maps an error returned by a service or repository to the envelope.
// resource names the entity in NOT_FOUND / ALREADY_EXISTS messages.
func RespondServiceError(c *gin.Context, err error, resource string) {
	var apiErr *errors.APIError
	switch {
	case stderrors.As(err, &apiErr):
		RespondWithAPIError(c, apiErr)
	case stderrors.Is(err, repository.ErrNotFound):
		RespondNotFound(c, resource)
	case stderrors.Is(err, repository.ErrDuplicate):
		RespondWithAPIError(c, errors.AlreadyExists(resource))
	case stderrors.Is(err, repository.ErrInvalidInput):
		RespondBadRequest(c, err.Error())
	default:
		logger.Log.Error("Unhandled service error",
			zap.String("resource", resource),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		RespondInternalError(c, fmt.Sprintf("failed to process %s", resource))
	}
}

// RespondBindError turns a ShouldBind* failure into a 422 naming the offending field,
// or a 400 when the body could not be decoded at all.
func RespondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		RespondValidationError(c, fe.Field(), validationMessage(fe))
		return
	}
	RespondBadRequest(c, "invalid request body: "+err.Error())
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "uuid", "uuid4":
		return fmt.Sprintf("%s must be a UUID", field)
	case "hexcolor":
		return fmt.Sprintf("%s must be a hex color like #1e90ff", field)
	case "gtefield":
		return fmt.Sprintf("%s must not be before %s", field, fe.Param())
	case "weekday":
		return fmt.Sprintf("%s must contain weekday names (mon..sun)", field)
	case "date":
		return fmt.Sprintf("%s must be a date formatted YYYY-MM-DD", field)
	case "timezone":
		return fmt.Sprintf("%s must be an IANA timezone name", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
