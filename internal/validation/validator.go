// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package validation provides struct validation using go-playground/validator v10.
// It maintains a thread-safe singleton validator instance with custom validators
// for gatewarden-specific rules.
//
//	type SimulateRequest struct {
//	    Principal string `validate:"required,resource_name"`
//	    Action    string `validate:"required"`
//	}
//
//	if err := validation.ValidateStruct(&req); err != nil { ... }
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// resourceNamePattern constrains entity and principal names declared in
// manifests: lowercase alphanumerics, dash, underscore, dot and slash.
var resourceNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._/-]*$`)

// FieldError describes a single failed validation constraint.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// Error returns a human-readable message for the failed field.
func (e FieldError) Error() string {
	return e.Message
}

// Errors is a collection of field validation failures.
type Errors struct {
	fields []FieldError
}

// Fields returns the individual field errors.
func (ve *Errors) Fields() []FieldError {
	return ve.fields
}

// Error joins all field messages into one string.
func (ve *Errors) Error() string {
	msgs := make([]string, len(ve.fields))
	for i, f := range ve.fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// GetValidator returns the singleton validator instance, creating it on
// first use. The instance caches struct metadata and is safe for
// concurrent use.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// resource_name: manifest entity/principal naming rule.
		//nolint:errcheck // registration for a fixed tag never fails
		validate.RegisterValidation("resource_name", func(fl validator.FieldLevel) bool {
			return resourceNamePattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidateStruct validates a struct and returns *Errors describing every
// failed field, or nil if the struct is valid.
func ValidateStruct(s interface{}) *Errors {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return &Errors{fields: []FieldError{{
			Field:   "",
			Tag:     "struct",
			Message: fmt.Sprintf("invalid validation target: %s", invalid.Error()),
		}}}
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Errors{fields: []FieldError{{Field: "", Tag: "unknown", Message: err.Error()}}}
	}

	out := &Errors{fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.fields = append(out.fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: messageFor(fe),
		})
	}
	return out
}

// messageFor translates a validator error into a stable, readable message.
func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "resource_name":
		return fmt.Sprintf("%s must match %s", fe.Field(), resourceNamePattern.String())
	default:
		return fmt.Sprintf("%s failed validation on %s", fe.Field(), fe.Tag())
	}
}
