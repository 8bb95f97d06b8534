package dto

import "net/http"

// Transport-level codes. Business failures carry the domain error code
// unchanged (NOT_FOUND, INVALID_STATE, ...).
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeTokenExpired    = "TOKEN_EXPIRED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeTimeout         = "REQUEST_TIMEOUT"
	ErrCodeUnavailable     = "SERVICE_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeTokenExpired:    http.StatusUnauthorized,
	ErrCodeForbidden:       http.StatusForbidden,
	ErrCodeNotFound:        http.StatusNotFound,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeTimeout:         http.StatusGatewayTimeout,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,

	// settlement domain
	"INVALID_AMOUNT":          http.StatusBadRequest,
	"INVALID_DATE":            http.StatusBadRequest,
	"INVALID_ENTRY_TYPE":      http.StatusBadRequest,
	"INVALID_NAME":            http.StatusBadRequest,
	"INVALID_SERIAL_NUMBER":   http.StatusBadRequest,
	"INVALID_CUSTOMER":        http.StatusBadRequest,
	"INVALID_AGENT":           http.StatusBadRequest,
	"INVALID_ITEMS":           http.StatusBadRequest,
	"INVALID_QUANTITY":        http.StatusBadRequest,
	"INVALID_RETURN_QUANTITY": http.StatusUnprocessableEntity,
	"INVALID_STATE":           http.StatusUnprocessableEntity,
	"NOT_ASSIGNED":            http.StatusUnprocessableEntity,
	"AGENT_INACTIVE":          http.StatusUnprocessableEntity,
	"ALREADY_ASSIGNED":        http.StatusConflict,
	"ALREADY_EXISTS":          http.StatusConflict,
	"CONCURRENCY_CONFLICT":    http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status for an error code. Unknown codes
// are treated as server errors.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
