package model

import "fmt"

// Stable machine-readable error codes surfaced to API clients.
const (
	ErrCodeUnsupportedFormat         = "unsupported_format"
	ErrCodeParseFailure              = "parse_failure"
	ErrCodeMissingNetSalesColumn     = "missing_net_sales_column"
	ErrCodeNegativeNetSales          = "negative_net_sales"
	ErrCodeCategoryBreakdownRequired = "category_breakdown_required"
	ErrCodeNoRateForCategory         = "no_rate_for_category"
	ErrCodeUnknownCategory           = "unknown_category"
	ErrCodeInvalidRateSpec           = "invalid_rate_spec"
)

// CodedError carries a stable code for machines and a message for the UI.
type CodedError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewCodedError creates a CodedError with a formatted message.
func NewCodedError(code, format string, args ...interface{}) *CodedError {
	return &CodedError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorCode extracts the machine code from err, or "internal_error" if err is
// not a CodedError.
func ErrorCode(err error) string {
	if ce, ok := err.(*CodedError); ok {
		return ce.Code
	}
	return "internal_error"
}
