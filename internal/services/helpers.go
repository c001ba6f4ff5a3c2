package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	apperrors "github.com/charlesng35/coursehub/pkg/errors"
	"github.com/charlesng35/coursehub/pkg/validator"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// normaliseIDs drops zero ids and duplicates, returning the rest in ascending order.
func normaliseIDs(values []uint) []uint {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[uint]struct{}, len(values))
	out := make([]uint, 0, len(values))
	for _, value := range values {
		if value == 0 {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func pagination(page, perPage, fallback, max int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = fallback
	}
	if perPage > max {
		perPage = max
	}
	return page, perPage
}

// validateInput runs struct validation and turns failures into a 400.
func validateInput(input any) error {
	if err := validator.ValidateStruct(input); err != nil {
		return apperrors.NewBadRequest(err.Error()).WithInternal(err)
	}
	return nil
}

// notFound maps gorm.ErrRecordNotFound onto the API not-found error.
func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrNotFound.WithMessage(message)
	}
	return err
}

// serviceError passes API errors through and wraps anything else with op.
func serviceError(err error, op string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return fmt.Errorf("%s: %w", op, err)
}
