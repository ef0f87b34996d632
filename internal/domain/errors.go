package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPersistenceRead  = errors.New("cart persistence read failed")
	ErrPersistenceWrite = errors.New("cart persistence write failed")
)

type ValidationCode int

const (
	CodeInvalidQuantity ValidationCode = iota
	CodeOutOfStock
	CodeSizeRequired
	CodeColorRequired
	CodeProductIDRequired
	CodeInvalidPrice
	CodeQuantityTooLarge
)

// Messages shown to shoppers.
const (
	ErrMsgInvalidQuantity   = "quantity must be at least 1"
	ErrMsgOutOfStock        = "out of stock"
	ErrMsgSizeRequired      = "please select a size"
	ErrMsgColorRequired     = "please select a color"
	ErrMsgProductIDRequired = "product id is required"
	ErrMsgInvalidPrice      = "price cannot be negative"
	ErrMsgQuantityTooLarge  = "quantity is too large"
)

func (c ValidationCode) String() string {
	switch c {
	case CodeInvalidQuantity:
		return "INVALID_QUANTITY"
	case CodeOutOfStock:
		return "OUT_OF_STOCK"
	case CodeSizeRequired:
		return "SIZE_REQUIRED"
	case CodeColorRequired:
		return "COLOR_REQUIRED"
	case CodeProductIDRequired:
		return "PRODUCT_ID_REQUIRED"
	case CodeInvalidPrice:
		return "INVALID_PRICE"
	case CodeQuantityTooLarge:
		return "QUANTITY_TOO_LARGE"
	default:
		return "UNKNOWN"
	}
}

// ValidationError is an expected, recoverable rejection of a cart operation.
type ValidationError struct {
	Code    ValidationCode
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is matches any ValidationError with the same code, so sentinels like ErrOutOfStock
// work with errors.Is.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

func NewValidationError(code ValidationCode, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}

func NewValidationErrorf(code ValidationCode, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidQuantity   = NewValidationError(CodeInvalidQuantity, ErrMsgInvalidQuantity)
	ErrOutOfStock        = NewValidationError(CodeOutOfStock, ErrMsgOutOfStock)
	ErrSizeRequired      = NewValidationError(CodeSizeRequired, ErrMsgSizeRequired)
	ErrColorRequired     = NewValidationError(CodeColorRequired, ErrMsgColorRequired)
	ErrProductIDRequired = NewValidationError(CodeProductIDRequired, ErrMsgProductIDRequired)
	ErrInvalidPrice      = NewValidationError(CodeInvalidPrice, ErrMsgInvalidPrice)
	ErrQuantityTooLarge  = NewValidationError(CodeQuantityTooLarge, ErrMsgQuantityTooLarge)
)
