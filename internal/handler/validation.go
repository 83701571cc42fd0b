package handler

import "github.com/go-playground/validator/v10"

// NewValidator returns the validator shared by all handlers.
func NewValidator() *validator.Validate {
	return validator.New()
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
