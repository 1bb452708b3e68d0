// Package validation decodes JSON request bodies and validates them with
// go-playground/validator struct tags.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/infofluencer/infofluencer/platform/go/problem"
)

// ErrEmptyBody is returned when a body is required but missing.
var ErrEmptyBody = errors.New("request body is required")

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Error reports field-level failures.
type Error struct {
	Fields problem.FieldErrors
}

func (e *Error) Error() string {
	return "validation failed"
}

// Struct validates s and converts failures into field errors keyed by JSON name.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return err
	}
	fields := problem.FieldErrors{}
	for _, fe := range invalid {
		name := fe.Field()
		fields[name] = append(fields[name], message(fe))
	}
	return &Error{Fields: fields}
}

// Decode reads a JSON body into dst (unknown fields rejected) and validates it.
func Decode(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return &Error{Fields: problem.FieldErrors{"body": {fmt.Sprintf("invalid JSON: %v", err)}}}
	}
	return Struct(dst)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "numeric":
		return "must be numeric"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
