package middleware

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/fitpulse/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var planNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,49}$`)

// SetupValidator configures gin's validator: errors name fields by their
// json tag and the plan_name tag is available to request DTOs
func SetupValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		registerValidations(v)
	}
}

func registerValidations(v *validator.Validate) {
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
	// Only fails on a duplicate tag name
	_ = v.RegisterValidation("plan_name", func(fl validator.FieldLevel) bool {
		return planNamePattern.MatchString(fl.Field().String())
	})
}

// FormatValidationErrors converts binding errors into a validation response
func FormatValidationErrors(err error, requestID string) dto.Response {
	var details []dto.ValidationError

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			details = append(details, dto.ValidationError{
				Field:   e.Field(),
				Message: validationMessage(e),
			})
		}
	}

	resp := dto.NewErrorResponse(dto.ErrCodeValidation, "Request validation failed").WithRequestID(requestID)
	resp.Error.Details = details
	return resp
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "plan_name":
		return "Must be a lowercase plan name"
	case "max":
		return "Must be at most " + e.Param() + " characters"
	case "oneof":
		return "Must be one of: " + e.Param()
	default:
		return "Invalid value"
	}
}
