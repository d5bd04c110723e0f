// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	initOnce sync.Once
)

// FieldError is one failed constraint on one request field. Field is
// the wire name (json tag), not the Go struct field.
type FieldError struct {
	Field   string
	Tag     string
	Message string
}

// RequestValidationError aggregates every failed constraint of one
// request body. Error() is the user-facing message placed verbatim in
// the {"error": "..."} response body.
type RequestValidationError struct {
	Fields []FieldError
}

func (ve *RequestValidationError) Error() string {
	switch len(ve.Fields) {
	case 0:
		return "Requête invalide"
	case 1:
		return ve.Fields[0].Message
	}
	parts := make([]string, len(ve.Fields))
	for i, f := range ve.Fields {
		parts[i] = f.Message
	}
	return strings.Join(parts, "; ")
}

// instance builds the process-wide validator on first use. Two custom
// tags cover what the stock set lacks:
//
//   - identifier: the URL-safe resource-ID shape shared by files,
//     tasks, sessions and sources
//   - notblank: a string with at least one non-whitespace rune;
//     "required" alone accepts "   "
func instance() *validator.Validate {
	initOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})

		// Static patterns with unique tag names cannot fail to register.
		_ = validate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
			return ValidIdentifier(fl.Field().String())
		})
		_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
	return validate
}

// ValidateStruct checks s against its `validate` tags. The returned
// error is nil or a *RequestValidationError carrying translated
// French messages.
func ValidateStruct(s interface{}) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// Struct-level misuse (nil pointer, non-struct). A programming
		// error, not user input; surface it as-is.
		return &RequestValidationError{Fields: []FieldError{{
			Field: "request", Tag: "invalid", Message: "Requête invalide",
		}}}
	}

	out := make([]FieldError, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: translate(fe),
		}
	}
	return &RequestValidationError{Fields: out}
}

// translate renders one field failure in the register the rest of the
// API speaks.
func translate(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("Le champ '%s' est requis", field)
	case "email":
		return fmt.Sprintf("'%s' doit être une adresse email valide", field)
	case "identifier":
		return fmt.Sprintf("'%s' ne doit contenir que lettres, chiffres, '-' ou '_' (max 64 caractères)", field)
	case "hexcolor":
		return fmt.Sprintf("'%s' doit être une couleur au format #RRGGBB", field)
	case "oneof":
		return fmt.Sprintf("'%s' doit être parmi: %s", field, param)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("'%s' doit contenir au moins %s caractères", field, param)
		}
		return fmt.Sprintf("'%s' doit être au moins %s", field, param)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("'%s' est trop long (max %s caractères)", field, param)
		}
		return fmt.Sprintf("'%s' doit être au plus %s", field, param)
	case "gt":
		return fmt.Sprintf("'%s' doit être supérieur à %s", field, param)
	case "gte":
		return fmt.Sprintf("'%s' doit être au moins %s", field, param)
	case "lt":
		return fmt.Sprintf("'%s' doit être inférieur à %s", field, param)
	case "lte":
		return fmt.Sprintf("'%s' doit être au plus %s", field, param)
	default:
		return fmt.Sprintf("'%s' est invalide", field)
	}
}
