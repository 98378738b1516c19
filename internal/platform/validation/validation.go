// Package validation wraps go-playground/validator with the project's custom
// rules and turns failures into apierror validation errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/curameet/curameet/internal/platform/apierror"
)

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	_ = v.RegisterValidation("hasupper", hasRune(unicode.IsUpper))
	_ = v.RegisterValidation("haslower", hasRune(unicode.IsLower))
	_ = v.RegisterValidation("hasdigit", hasRune(unicode.IsDigit))
	_ = v.RegisterValidation("maxbytes", maxBytes)
	_ = v.RegisterValidation("notblank", notBlank)
	return &Validator{v: v}
}

// Struct validates s and returns an *apierror.Error with one message per
// failing field, or nil.
func (val *Validator) Struct(s interface{}) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierror.Internal(fmt.Errorf("validate %T: %w", s, err))
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = message(fe)
		}
	}
	return apierror.InvalidFields(fields)
}

// Validate implements echo.Validator.
func (val *Validator) Validate(i interface{}) error {
	return val.Struct(i)
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

func hasRune(pred func(rune) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			if pred(r) {
				return true
			}
		}
		return false
	}
}

// maxBytes bounds the UTF-8 encoded length, unlike max which counts runes.
// bcrypt rejects passwords longer than 72 bytes.
func maxBytes(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= n
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func message(fe validator.FieldError) string {
	f := fe.Field()
	switch fe.Tag() {
	case "required", "required_if", "notblank":
		return f + " is required"
	case "email":
		return f + " must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", f, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", f, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s may not be greater than %s characters", f, fe.Param())
		}
		return fmt.Sprintf("%s may not be greater than %s", f, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", f, fe.Param())
	case "lte":
		return fmt.Sprintf("%s may not be greater than %s", f, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", f, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "eqfield":
		return strings.TrimSuffix(f, "_confirmation") + " confirmation does not match"
	case "datetime":
		return fmt.Sprintf("%s must be a date in the format %s", f, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", f, fe.Param())
	case "hasupper":
		return f + " must contain an uppercase letter"
	case "haslower":
		return f + " must contain a lowercase letter"
	case "hasdigit":
		return f + " must contain a digit"
	case "maxbytes":
		return fmt.Sprintf("%s may not be longer than %s bytes", f, fe.Param())
	case "uuid", "uuid4":
		return f + " must be a valid id"
	case "dive", "unique":
		return f + " contains invalid or duplicate entries"
	default:
		return f + " is invalid"
	}
}
