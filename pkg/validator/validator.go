package validator

import (
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

// ValidationErrors collects multiple validation failures.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v))
	for i, err := range v {
		if err.Param != "" {
			parts[i] = err.Field + " failed on " + err.Tag + "=" + err.Param
		} else {
			parts[i] = err.Field + " failed on " + err.Tag
		}
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct validates s using the registered rules, returning ValidationErrors on failure.
func ValidateStruct(s interface{}) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	failures := make(ValidationErrors, 0, len(ve))
	for _, fe := range ve {
		failures = append(failures, ValidationError{
			Field: fe.Field(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return failures
}

// IsLaunchURL reports whether raw is an absolute http(s) URL with a host.
func IsLaunchURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := fld.Tag.Get("json")
			if comma := strings.Index(name, ","); comma != -1 {
				name = name[:comma]
			}
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		// launch_url: tools are reached through an absolute http(s) endpoint.
		_ = validate.RegisterValidation("launch_url", func(fl validator.FieldLevel) bool {
			return IsLaunchURL(fl.Field().String())
		})
	})
	return validate
}
