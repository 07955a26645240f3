// Package relay_validate binds JSON request bodies into DTOs and validates
// them with struct tags. Failures come back as ValidationFailed failures whose
// detail lists every offending field, so clients can show all problems at once.
//
// Usage Example:
//
//	type registerRequest struct {
//	    Email    string `json:"email" validate:"required,email"`
//	    Password string `json:"password" validate:"required,min=8"`
//	}
//
//	router.MustHandleFunc(relay.Post, "/users", register, relay_validate.Body[registerRequest]())
//
//	func register(rc *relay.RequestContext) (*relay.HttpResponse, error) {
//	    req, _ := relay_validate.BodyOf[registerRequest](rc)
//	    ...
//	}
package relay_validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/jacksonzamorano/relay"
)

// BodyKey is the attribute key Body stores the bound value under.
const BodyKey = "relay.body"

// FieldError describes one failed rule.
//
// JSON Output Example:
//
//	{"field": "password", "rule": "min", "param": "8", "message": "must be at least 8 characters"}
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator. Field names in errors follow the
// json tags.
func Validator() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
		instance.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := fld.Tag.Get("json")
			if name == "-" {
				return ""
			}
			if idx := strings.Index(name, ","); idx != -1 {
				name = name[:idx]
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return instance
}

// Struct validates v and converts rule violations into a failure.
func Struct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return relay.InternalFailure(err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, FieldError{
			Field:   fieldPath(e),
			Rule:    e.Tag(),
			Param:   e.Param(),
			Message: message(e),
		})
	}
	return relay.ValidationFailure("Request body is invalid", fields)
}

// fieldPath drops the root struct name from the namespace, e.g.
// "registerRequest.address.city" becomes "address.city".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if idx := strings.Index(ns, "."); idx != -1 {
		return ns[idx+1:]
	}
	return e.Field()
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "credit_card":
		return "must be a valid card number"
	case "min":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", e.Param())
		}
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", e.Param())
		}
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", e.Param())
	default:
		return fmt.Sprintf("failed validation (%s)", e.Tag())
	}
}

// Decode decodes a JSON body into dst without validating it. Unknown fields
// and trailing data are rejected.
func Decode(body []byte, dst any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return relay.ValidationFailure("Request body is required", nil)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return relay.ValidationFailure("Request body is not valid JSON", []FieldError{{
			Field:   jsonErrorField(err),
			Rule:    "json",
			Message: err.Error(),
		}})
	}
	if _, err := dec.Token(); err != io.EOF {
		return relay.ValidationFailure("Request body has trailing data", nil)
	}
	return nil
}

func jsonErrorField(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Field
	}
	if msg := err.Error(); strings.HasPrefix(msg, "json: unknown field ") {
		return strings.Trim(strings.TrimPrefix(msg, "json: unknown field "), `"`)
	}
	return ""
}

// Bind decodes the request body into dst and validates it.
func Bind(rc *relay.RequestContext, dst any) error {
	if err := Decode(rc.Body(), dst); err != nil {
		return err
	}
	return Struct(dst)
}

// Body returns a middleware that binds the body into a *T before the handler
// runs and short-circuits with ValidationFailed when it does not bind.
func Body[T any]() relay.Middleware {
	var zero T
	name := "body:" + reflect.TypeOf(zero).Name()
	return relay.Named(name, relay.MiddlewareFn(func(rc *relay.RequestContext, next relay.Next) (*relay.HttpResponse, error) {
		dst := new(T)
		if err := Bind(rc, dst); err != nil {
			return nil, err
		}
		rc.Set(BodyKey, dst)
		return next()
	}))
}

// BodyOf returns the value bound by Body[T].
func BodyOf[T any](rc *relay.RequestContext) (*T, bool) {
	return relay.Attr[*T](rc, BodyKey)
}
