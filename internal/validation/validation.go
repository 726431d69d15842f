// Package validation configures gin's request validator and turns its failures
// into field-keyed apperr.ValidationError values.
package validation

import (
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"tradevera/internal/apperr"
)

var (
	setup    sync.Once
	msgMu    sync.RWMutex
	messages = map[string]string{}
)

// Engine returns the validator gin binds with, reporting fields by their JSON names.
func Engine() *validator.Validate {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		panic("validation: gin binding validator is not validator/v10")
	}
	setup.Do(func() {
		v.RegisterTagNameFunc(jsonName)
	})
	return v
}

// RegisterTag adds a custom binding tag and the message reported when it fails.
// Call it from package init.
func RegisterTag(tag string, fn validator.Func, message string) {
	if err := Engine().RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
	msgMu.Lock()
	messages[tag] = message
	msgMu.Unlock()
}

// RegisterType validates fields of the given types through the value fn extracts.
// fn returns nil when there is nothing to validate.
func RegisterType(fn validator.CustomTypeFunc, types ...interface{}) {
	Engine().RegisterCustomTypeFunc(fn, types...)
}

// Struct validates obj's binding tags.
func Struct(obj interface{}) error {
	if err := Engine().Struct(obj); err != nil {
		return FromBindError(err)
	}
	return nil
}

// FromBindError converts a gin bind error into a ValidationError keyed by field.
// Decode failures that cannot be tied to a field are reported under "body".
func FromBindError(err error) *apperr.ValidationError {
	verr := &apperr.ValidationError{}
	if errors.As(err, &verr) {
		return verr
	}

	var (
		fieldErrs validator.ValidationErrors
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
	)
	switch {
	case errors.As(err, &fieldErrs):
		for _, fe := range fieldErrs {
			verr.Add(fieldPath(fe), message(fe))
		}
	case errors.As(err, &typeErr) && typeErr.Field != "":
		verr.Add(typeErr.Field, "must be "+describeType(typeErr.Type))
	case errors.Is(err, io.EOF):
		verr.Add("body", "is required")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		verr.Add("body", "must be valid JSON")
	default:
		verr.Add("body", "must be a valid JSON object")
	}
	return verr
}

func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	param := fe.Param()
	isString := fe.Kind() == reflect.String

	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + param
	case "gte":
		return "must be " + param + " or greater"
	case "lt":
		return "must be less than " + param
	case "min":
		if isString {
			return "must be at least " + param + " characters"
		}
		return "must be at least " + param
	case "max":
		if isString {
			return "must be at most " + param + " characters"
		}
		return "must be at most " + param
	case "oneof":
		return "must be one of " + strings.Join(strings.Fields(param), ", ")
	}

	msgMu.RLock()
	defer msgMu.RUnlock()
	if m, ok := messages[fe.Tag()]; ok {
		return m
	}
	return "is invalid"
}

func describeType(t reflect.Type) string {
	if t == nil {
		return "a valid value"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "a whole number"
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "true or false"
	case reflect.Slice, reflect.Array:
		return "a list"
	case reflect.Map, reflect.Struct:
		return "an object"
	}
	return "a valid " + t.String()
}
