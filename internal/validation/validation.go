// Package validation checks the shape of mutation payloads before anything reaches the store.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/anonto42/nano-feed/backend/internal/apperr"
	"github.com/go-playground/validator/v10"
)

// PostInput is the payload of a post create. The image is mandatory.
type PostInput struct {
	Title    string `json:"title" validate:"required,min=5"`
	Content  string `json:"content" validate:"required,min=5"`
	ImageURL string `json:"image" validate:"required"`
}

// PostUpdateInput is the payload of a post update. An empty image keeps the current one.
type PostUpdateInput struct {
	Title    string `json:"title" validate:"required,min=5"`
	Content  string `json:"content" validate:"required,min=5"`
	ImageURL string `json:"image"`
}

// SignupInput is the payload of an account signup.
type SignupInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=5"`
}

// Engine runs struct-tag validation and reports every violation at once.
type Engine struct {
	validate *validator.Validate
}

func New() *Engine {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Engine{validate: v}
}

// ValidatePost checks a post create payload.
func (e *Engine) ValidatePost(in PostInput) error {
	return e.run(in, "Validation failed, entered data is incorrect.")
}

// ValidatePostUpdate checks a post update payload.
func (e *Engine) ValidatePostUpdate(in PostUpdateInput) error {
	return e.run(in, "Validation failed, entered data is incorrect.")
}

// ValidateSignup checks a signup payload.
func (e *Engine) ValidateSignup(in SignupInput) error {
	return e.run(in, "Validation failed.")
}

func (e *Engine) run(in any, message string) error {
	err := e.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal(fmt.Errorf("validate payload: %w", err))
	}

	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{
			Field:  fe.Field(),
			Reason: reason(fe),
		})
	}

	return apperr.InvalidInput(message, fields)
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s must not be empty", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
	case "email":
		return "email is invalid"
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
