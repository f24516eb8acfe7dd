package apperr

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	nhsNumberPattern = regexp.MustCompile(`^\d{10}$`)
	slugPattern      = regexp.MustCompile(`^[a-z0-9-]{3,63}$`)

	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("nhs_number", func(fl validator.FieldLevel) bool {
			return nhsNumberPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			return slugPattern.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// Validate runs struct tag validation and converts failures into a
// *ValidationError keyed by JSON field name. When s is a pointer, optional
// *string fields holding only whitespace are reset to nil first so that
// omitempty treats them as absent.
func Validate(s interface{}) error {
	clearBlankOptionals(reflect.ValueOf(s))
	err := instance().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	ve := &ValidationError{Message: "validation failed"}
	for _, fe := range verrs {
		ve.Add(fe.Field(), message(fe))
	}
	return ve
}

func clearBlankOptionals(v reflect.Value) {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if !v.IsNil() {
			clearBlankOptionals(v.Elem())
		}
	case reflect.Slice:
		if k := v.Type().Elem().Kind(); k != reflect.Struct && k != reflect.Ptr {
			return
		}
		for i := 0; i < v.Len(); i++ {
			clearBlankOptionals(v.Index(i))
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			f := v.Field(i)
			if !t.Field(i).IsExported() || !f.CanSet() {
				continue
			}
			if f.Kind() == reflect.Ptr && !f.IsNil() && f.Elem().Kind() == reflect.String {
				if strings.TrimSpace(f.Elem().String()) == "" {
					f.Set(reflect.Zero(f.Type()))
				}
				continue
			}
			clearBlankOptionals(f)
		}
	}
}

// ValidNHSNumber reports whether s is a 10-digit NHS number.
func ValidNHSNumber(s string) bool {
	return nhsNumberPattern.MatchString(s)
}

func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "nhs_number":
		return "must be a 10-digit NHS number"
	case "slug":
		return "must be 3-63 lowercase letters, digits or hyphens"
	case "email":
		return "must be a valid email address"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gtfield":
		return "must be after " + snake(fe.Param())
	case "gtefield":
		return "must not be before " + snake(fe.Param())
	}
	return "is invalid"
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
