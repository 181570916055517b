package luco

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// validateRequest checks a request's struct tags and reports the first failure.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}

	fe := errs[0]
	return &ValidationError{
		Field:   fieldPath(fe),
		Message: validationMessage(fe),
	}
}

// fieldPath drops the struct name from the namespace: "recipients[2].email".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "to":
		return "Recipient email is required"
	case "subject":
		return "Subject is required"
	case "content", "template":
		return "Either content or template must be provided"
	case "recipients":
		return "Recipients list cannot be empty"
	case "email":
		return fieldPath(fe) + " is required"
	}
	return fieldPath(fe) + " is invalid"
}
