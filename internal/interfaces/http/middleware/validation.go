package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var setupOnce sync.Once

// SetupValidator configures gin's validator: field names come from json/form
// tags and the match_field tag accepts the fields a rule may group by.
func SetupValidator() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
		_ = v.RegisterValidation("match_field", func(fl validator.FieldLevel) bool {
			return reconciliation.MatchField(fl.Field().String()).IsValid()
		})
	})
}

// FormatValidationErrors formats binding errors into the standard envelope
func FormatValidationErrors(err error, requestID string) dto.Response {
	var details []dto.ValidationDetail

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			details = append(details, dto.ValidationDetail{
				Field:   e.Field(),
				Message: getValidationMessage(e),
				Tag:     e.Tag(),
			})
		}
		return dto.NewValidationErrorResponse("Request validation failed", requestID, details)
	}

	return dto.NewValidationErrorResponse("Malformed request: "+err.Error(), requestID, nil)
}

// HandleValidationError writes a 400 validation error response
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, GetRequestID(c)))
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		if e.Kind() == reflect.Slice {
			return "Must contain at least " + e.Param() + " items"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "gtfield":
		return "Must be after " + e.Param()
	case "match_field":
		return "Must be one of: reference_number amount date"
	case "datetime":
		return "Must be a date formatted as " + e.Param()
	default:
		return "Invalid value"
	}
}
