// Package validation wraps a shared go-playground validator and renders its
// failures as VALIDATION_ERROR messages.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/Clark-Hu/universal-rate/internal/domain"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed constraint.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// Error collects every failed constraint of a struct.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		messages = append(messages, f.Message)
	}
	return strings.Join(messages, "; ")
}

// Get returns the singleton validator. Field names are reported by their
// json or query tag, and the "category" and "window" tags are registered.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "query"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
		_ = validate.RegisterValidation("category", func(fl validator.FieldLevel) bool {
			_, err := domain.ParseCategory(fl.Field().String())
			return err == nil
		})
		_ = validate.RegisterValidation("window", func(fl validator.FieldLevel) bool {
			_, err := domain.ParseWindow(fl.Field().String(), domain.WindowAll)
			return err == nil
		})
	})
	return validate
}

// Struct validates s. It returns nil or an *Error.
func Struct(s interface{}) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}
	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: message(fe),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "category":
		return fmt.Sprintf("%s must be one of: %s", field, domain.CategoryList())
	case "window":
		return fmt.Sprintf("%s must be one of: 7d, 30d, all", field)
	case "url", "http_url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
