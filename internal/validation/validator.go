// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

// Package validation provides struct validation using go-playground/validator
// v10. It exposes a thread-safe singleton validator with struct-level rules
// for canary deployment specs (traffic split sum, distinct model references).
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/canaryd/internal/models"
)

// singleton validator instance
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError represents a single field validation failure.
type FieldError struct {
	field   string
	tag     string
	param   string
	message string
}

// Field returns the struct field path that failed validation.
func (e *FieldError) Field() string { return e.field }

// Tag returns the validation tag that failed.
func (e *FieldError) Tag() string { return e.tag }

// Error returns a human-readable message.
func (e *FieldError) Error() string { return e.message }

// Errors is a collection of field validation failures.
type Errors struct {
	fields []FieldError
}

// Fields returns the individual field errors.
func (ve *Errors) Fields() []FieldError { return ve.fields }

// Error implements the error interface with a combined message.
func (ve *Errors) Error() string {
	if len(ve.fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(ve.fields))
	for i := range ve.fields {
		msgs = append(msgs, ve.fields[i].Error())
	}
	return strings.Join(msgs, "; ")
}

// getValidator returns the singleton validator, initializing it on first use.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterStructValidation(deploymentStructLevel, models.CanaryDeployment{})
	})
	return validate
}

// deploymentStructLevel enforces the cross-field rules a tag cannot express:
// split percentages must sum to 100 and the model references must be distinct.
func deploymentStructLevel(sl validator.StructLevel) {
	dep := sl.Current().Interface().(models.CanaryDeployment)

	if !dep.TrafficSplit.Valid() {
		sl.ReportError(dep.TrafficSplit, "TrafficSplit", "traffic_split", "splitsum", "")
	}
	if dep.ProductionModelID != "" && dep.ProductionModelID == dep.CanaryModelID {
		sl.ReportError(dep.CanaryModelID, "CanaryModelID", "canary_model_id", "distinctmodels", "")
	}
}

// ValidateStruct validates any struct using its validate tags plus any
// registered struct-level rules. Returns *Errors on failure.
func ValidateStruct(s interface{}) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return fmt.Errorf("invalid validation input: %w", err)
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &Errors{fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.fields = append(out.fields, FieldError{
			field:   fe.Namespace(),
			tag:     fe.Tag(),
			param:   fe.Param(),
			message: messageFor(fe),
		})
	}
	return out
}

// messageFor translates a validator field error into a stable message.
func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "splitsum":
		return "traffic split percentages must be in [0,100] and sum to 100"
	case "distinctmodels":
		return "production and canary models must be distinct"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Namespace(), fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Namespace(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Namespace(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Namespace(), fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", fe.Namespace(), fe.Tag())
	}
}
