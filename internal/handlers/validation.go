package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/coursehub/pkg/errors"
	"github.com/charlesng35/coursehub/pkg/response"
	appValidator "github.com/charlesng35/coursehub/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}

	return true
}

func formatValidationError(err error) string {
	var ve appValidator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(ve))
	for _, failure := range ve {
		field := prettifyFieldName(failure.Field)
		switch failure.Tag {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "required_without":
			messages = append(messages, fmt.Sprintf("%s is required unless %s is set", field, prettifyFieldName(failure.Param)))
		case "launch_url":
			messages = append(messages, fmt.Sprintf("%s must be an absolute http(s) url", field))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", field, failure.Param))
		case "gte":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", field, failure.Param))
		default:
			if failure.Param != "" {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s=%s", field, failure.Tag, failure.Param))
			} else {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, failure.Tag))
			}
		}
	}
	return strings.Join(messages, "; ")
}

// prettifyFieldName turns "consumer_key" or "ParentID" into "consumer key" / "parent id".
func prettifyFieldName(name string) string {
	if name == "" {
		return "field"
	}
	var b strings.Builder
	prevLower := false
	for _, r := range name {
		switch {
		case r == '_':
			b.WriteByte(' ')
			prevLower = false
			continue
		case r >= 'A' && r <= 'Z':
			if prevLower {
				b.WriteByte(' ')
			}
			r += 'a' - 'A'
			prevLower = false
		default:
			prevLower = true
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
