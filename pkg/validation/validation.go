// Package validation wraps go-playground/validator with the tags used by
// request types and turns failures into domain validation errors.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "shikkha/pkg/domain-errors"
	s "shikkha/pkg/platform/strings"
)

// CredentialTypes are the accepted certificate kinds.
var CredentialTypes = []string{"Degree", "Diploma", "Certificate", "Transcript"}

var (
	personNamePattern      = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
	institutionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9\s-]+$`)
	httpURLPattern         = regexp.MustCompile(`^https?://.+`)
	logoURLPattern         = regexp.MustCompile(`(?i)^https?://.+\.(png|jpg|jpeg|svg)$`)
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("person_name", matches(personNamePattern))
	_ = v.RegisterValidation("institution_name", matches(institutionNamePattern))
	_ = v.RegisterValidation("http_url", matches(httpURLPattern))
	_ = v.RegisterValidation("logo_url", matches(logoURLPattern))
	return v
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// Validate validates a struct using the default validator and returns a domain error.
func Validate(req any) error {
	if err := defaultValidator.Struct(req); err != nil {
		return dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
	}
	return nil
}

// ErrorMessage converts a validator error into a human-readable message
// naming the first failing field.
func ErrorMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "invalid request body"
	}

	fe := validationErrs[0]
	field := s.ToSnakeCase(fe.StructField())

	switch fe.ActualTag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "notblank":
		return fmt.Sprintf("%s must not be blank", field)
	case "person_name":
		return fmt.Sprintf("%s may only contain letters, spaces, apostrophes and hyphens", field)
	case "institution_name":
		return fmt.Sprintf("%s may only contain letters, digits, spaces and hyphens", field)
	case "http_url":
		return fmt.Sprintf("%s must be an http or https url", field)
	case "logo_url":
		return fmt.Sprintf("%s must be an http or https url ending in .png, .jpg, .jpeg or .svg", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
