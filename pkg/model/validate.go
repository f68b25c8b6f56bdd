package model

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// dnsLabelRe matches a single RFC 1035 DNS label: 1-63 characters,
// alphanumeric with interior hyphens.
var dnsLabelRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// unitNameRe matches a plain systemd unit name without a type suffix.
var unitNameRe = regexp.MustCompile(`^[a-zA-Z0-9:_.@-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report violations with the on-disk key names rather than Go field
	// names, so "networking.hostname" instead of "Config.Networking.Hostname".
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	mustRegister(v, "dns_label", func(fl validator.FieldLevel) bool {
		return dnsLabelRe.MatchString(fl.Field().String())
	})
	mustRegister(v, "unit_name", func(fl validator.FieldLevel) bool {
		return unitNameRe.MatchString(fl.Field().String())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("model: register validation %q: %v", tag, err))
	}
}

// Violation is one violated invariant.
type Violation struct {
	// Field is the dotted path of the offending field, e.g.
	// "networking.wifi[1].ssid".
	Field string `json:"field"`

	// Rule is the invariant that was violated, e.g. "dns_label".
	Rule string `json:"rule"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// ValidationError carries every violated invariant of a model, not just the
// first, so callers can report all problems at once.
type ValidationError struct {
	Violations []Violation
}

// Error implements the error interface, listing all violations.
func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "invalid configuration"
	}
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return fmt.Sprintf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks every model invariant and returns a ValidationError
// listing all violations, or nil when the model is valid. It has no side
// effects.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError and friends; should not happen for a
		// well-formed Config value.
		return err
	}

	ve := &ValidationError{Violations: make([]Violation, 0, len(verrs))}
	for _, fe := range verrs {
		ve.Violations = append(ve.Violations, Violation{
			Field:   fieldPath(fe.Namespace()),
			Rule:    fe.Tag(),
			Message: violationMessage(fe),
		})
	}
	return ve
}

// fieldPath strips the root struct name from a validator namespace, leaving
// the dotted on-disk path.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func violationMessage(fe validator.FieldError) string {
	path := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: required field is empty", path)
	case "dns_label":
		return fmt.Sprintf("%s: %q is not a valid DNS label", path, fe.Value())
	case "iso3166_1_alpha2":
		return fmt.Sprintf("%s: %q is not an ISO 3166-1 alpha-2 country code", path, fe.Value())
	case "unique":
		return fmt.Sprintf("%s: duplicate %s entries", path, strings.ToLower(fe.Param()))
	case "oneof":
		return fmt.Sprintf("%s: %q is not one of %s", path, fe.Value(), fe.Param())
	case "unit_name":
		return fmt.Sprintf("%s: invalid service name", path)
	case "min":
		return fmt.Sprintf("%s: shorter than %s characters", path, fe.Param())
	case "max":
		return fmt.Sprintf("%s: longer than %s characters", path, fe.Param())
	case "gt":
		return fmt.Sprintf("%s: must be greater than %s", path, fe.Param())
	default:
		return fmt.Sprintf("%s: failed %s constraint", path, fe.Tag())
	}
}
