package store

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func ExportShortfall(ingredient string, available decimal.Decimal, requested decimal.Decimal) error {
	return fmt.Errorf("%w for ingredient '%s'. Available: %s, Requested: %s", ErrInsufficientStock, ingredient, available.String(), requested.String())
}

func OrderShortfall(ingredient string, required decimal.Decimal, available decimal.Decimal) error {
	return fmt.Errorf("%w for ingredient '%s'. Required: %s, Available: %s", ErrInsufficientStock, ingredient, required.String(), available.String())
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func Duplicate(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDuplicate, fmt.Sprintf(format, args...))
}

func Missing(entity string, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}
