package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// newValidator returns a validator that reports fields by their environment
// variable names and knows the tcpport and trimmed tags.
//
// Single word fields carry no envconfig tag: envconfig falls back to the bare
// tag name when the prefixed variable is unset, so a USER or PORT tag would
// silently read the shell's $USER or $PORT. Their names derive from the field.
func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("envconfig"); name != "" {
			return name
		}
		return strings.ToUpper(f.Name)
	})

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("tcpport", func(fl validator.FieldLevel) bool {
		_, err := parsePort(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("trimmed", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.TrimSpace(s) == s
	})

	return v
}

// explain turns validator errors into one line per offending variable.
func explain(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, envName(fe.Namespace())+" "+describeRule(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// envName maps a namespace such as Config.SERVER.CONTROL.PORT to the
// variable SKYLAB_SERVER_CONTROL_PORT.
func envName(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return EnvPrefix + "_" + strings.Join(parts, "_")
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "ltefield":
		return "cannot exceed " + fe.Param()
	case "len":
		return "must be " + fe.Param() + " characters long"
	case "hexadecimal":
		return "must be hexadecimal"
	case "startswith":
		return "must start with " + fe.Param()
	case "tcpport":
		return "must be a port between 1 and 65535"
	case "trimmed":
		return "cannot have leading or trailing whitespace"
	default:
		return "failed the " + fe.Tag() + " check"
	}
}

func parsePort(port string) (int, error) {
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0, fmt.Errorf("port %q is not a number", port)
	}
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("port %d is out of range", n)
	}
	return n, nil
}

// parseURL parses a connection URL and checks its scheme and host.
func parseURL(raw string, schemes ...string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if !slices.Contains(schemes, u.Scheme) {
		return nil, fmt.Errorf("scheme %q is not one of %v", u.Scheme, schemes)
	}
	if u.Hostname() == "" {
		return nil, errors.New("URL has no host")
	}
	return u, nil
}
