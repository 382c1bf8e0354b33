package server

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validationError holds per-field failures in request order.
type validationError struct {
	fields []fieldError
}

type fieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

func (e *validationError) Error() string {
	msgs := make([]string, 0, len(e.fields))
	for _, f := range e.fields {
		if f.Param != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", f.Field, f.Tag, f.Param))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", f.Field, f.Tag))
		}
	}
	return strings.Join(msgs, "; ")
}

// validateStruct returns nil or a *validationError.
func validateStruct(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	out := &validationError{fields: make([]fieldError, 0, len(ves))}
	for _, fe := range ves {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		out.fields = append(out.fields, fieldError{Field: field, Tag: fe.Tag(), Param: fe.Param()})
	}
	return out
}
