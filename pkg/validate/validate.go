// Package validate checks request inputs with struct tags and turns the
// first failure into a client-facing InvalidArgument error.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"polygram/pkg/apperr"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z0-9_-]*$`)
	namePattern     = regexp.MustCompile(`^[a-zA-Z]+(([',. -][a-zA-Z ])?[a-zA-Z]*)*$`)
	letterPattern   = regexp.MustCompile(`[A-Za-z]`)
	digitPattern    = regexp.MustCompile(`[0-9]`)
	specialPattern  = regexp.MustCompile(`[#?!@$ %^&*-]`)
)

var (
	once     sync.Once
	instance *validator.Validate
)

func engine() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "query"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernamePattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("name", func(fl validator.FieldLevel) bool {
			return namePattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
			return Password(fl.Field().String())
		})
		instance = v
	})
	return instance
}

// Password reports whether p is 8–50 characters and contains a letter, a
// digit and one of #?!@$ %^&*-.
func Password(p string) bool {
	n := len([]rune(p))
	if n < 8 || n > 50 {
		return false
	}
	return letterPattern.MatchString(p) && digitPattern.MatchString(p) && specialPattern.MatchString(p)
}

// Username reports whether u satisfies the username rule, including length.
func Username(u string) bool {
	n := len(u)
	return n >= 4 && n <= 15 && usernamePattern.MatchString(u)
}

// Struct validates s and returns an apperr InvalidArgument on failure.
func Struct(s any) error {
	err := engine().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return apperr.InvalidArg(message(fieldErrs[0]))
	}
	return apperr.InvalidArg("Invalid request")
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	isList := fe.Kind() == reflect.Slice || fe.Kind() == reflect.Array
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s field cannot be empty", field)
	case "min":
		if isList {
			return fmt.Sprintf("%s must have minimum %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s should contain at least %s characters", field, fe.Param())
	case "max":
		if isList {
			return fmt.Sprintf("%s must not have more than %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must not exceed the %s character limit", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "unique":
		return fmt.Sprintf("%s must not contain duplicate entries", field)
	case "username":
		return fmt.Sprintf("%s can only contain lowercase letters, numbers, underscores and hyphens", field)
	case "password":
		return fmt.Sprintf("%s must be 8-50 characters and contain a letter, a number and a special character", field)
	case "numeric":
		return fmt.Sprintf("%s must only contain digits", field)
	default:
		return fmt.Sprintf("Invalid %s", field)
	}
}
