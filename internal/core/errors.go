package core

import (
	"errors"
	"fmt"
)

// Closed error taxonomy of the costing core. Callers match with errors.Is.
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrInvalidDateRange   = errors.New("invalid date range")
	ErrMilestoneCycle     = errors.New("milestone hierarchy contains a cycle")
)

// Validation errors for entity input.
var (
	ErrEmptyName       = errors.New("empty name")
	ErrEmptyCode       = errors.New("empty code")
	ErrEmptyInvoiceNo  = errors.New("empty invoice number")
	ErrInvalidItemType = errors.New("invalid line item type")
	ErrInvalidUnit     = errors.New("invalid unit")
	ErrInvalidCostType = errors.New("invalid cost type")
	ErrInvalidDate     = errors.New("invalid date")
	ErrUnknownParent   = errors.New("parent milestone not in project")
	ErrDuplicateCode   = errors.New("project code already in use")
	ErrNotFound        = errors.New("not found")
)

// ItemError ties a failure to the entity that caused it.
type ItemError struct {
	Kind string // "line_item", "material", "payment", "milestone"
	ID   string
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// ErrorCode maps an error to a short stable tag for API responses.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrArithmeticOverflow):
		return "arithmetic_overflow"
	case errors.Is(err, ErrInvalidDateRange):
		return "invalid_date_range"
	case errors.Is(err, ErrMilestoneCycle):
		return "milestone_cycle"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateCode):
		return "duplicate_code"
	case IsValidation(err):
		return "validation_error"
	default:
		return "internal_error"
	}
}

// IsValidation reports whether err stems from bad input rather than a fault.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrArithmeticOverflow, ErrInvalidDateRange, ErrMilestoneCycle,
		ErrEmptyName, ErrEmptyCode, ErrEmptyInvoiceNo, ErrInvalidItemType,
		ErrInvalidUnit, ErrInvalidCostType, ErrInvalidDate, ErrUnknownParent,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
