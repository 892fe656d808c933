package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// BindJSON binds and validates the body; on failure it writes the 400
// envelope itself and reports false.
func BindJSON(ctx *gin.Context, out interface{}) bool {
	err := ctx.ShouldBindJSON(out)

	if err != nil {
		RespondValidation(ctx, "Invalid request body", parseBindError(err, out))

		return false
	}

	return true
}

func parseBindError(err error, out interface{}) interface{} {
	// validator errors (struct binding tags)
	var validatorErrs validator.ValidationErrors

	if errors.As(err, &validatorErrs) {
		fields := make([]FieldError, 0, len(validatorErrs))

		for _, fieldErr := range validatorErrs {
			rule := fieldErr.Tag()
			param := fieldErr.Param()

			fields = append(fields, FieldError{
				Field:   jsonFieldName(out, fieldErr.StructField()),
				Rule:    rule,
				Param:   param,
				Message: validationMessage(rule, param),
			})
		}
		return fields
	}

	var syntaxErr *json.SyntaxError

	if errors.As(err, &syntaxErr) {
		return []FieldError{{Field: "", Rule: "json", Message: "body is not valid JSON"}}
	}

	var typeErr *json.UnmarshalTypeError

	if errors.As(err, &typeErr) {
		return []FieldError{{
			Field:   typeErr.Field,
			Rule:    "type",
			Message: fmt.Sprintf("must be of type %s", typeErr.Type.String()),
		}}
	}

	// fallback if the error could not be deciphered
	return []FieldError{{Field: "", Rule: "invalid", Message: err.Error()}}
}

// jsonFieldName maps a struct field of the (flat) request type to its json
// tag name.
func jsonFieldName(out interface{}, structField string) string {
	t := reflect.TypeOf(out)

	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t == nil || t.Kind() != reflect.Struct {
		return structField
	}

	sf, ok := t.FieldByName(structField)
	if !ok {
		return structField
	}

	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return structField
	}

	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "gt":
		return "must be greater than " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
