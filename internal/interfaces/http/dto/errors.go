package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Input error codes
const (
	// ErrCodeValidation is used when input data fails validation
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeConflict is used for resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
)

// Session error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for the
	// current session state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeSessionBusy is used when the pairing already has a live session
	ErrCodeSessionBusy = "ERR_SESSION_BUSY"
)

// Upstream error codes
const (
	// ErrCodeUpstreamUnavailable is used when the remote system cannot be reached
	ErrCodeUpstreamUnavailable = "ERR_UPSTREAM_UNAVAILABLE"
	// ErrCodeUpstreamRejected is used when the remote system rejected a request
	ErrCodeUpstreamRejected = "ERR_UPSTREAM_REJECTED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation: http.StatusBadRequest,
	ErrCodeBadRequest: http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,

	ErrCodeNotFound: http.StatusNotFound,
	ErrCodeConflict: http.StatusConflict,

	ErrCodeInvalidState: http.StatusUnprocessableEntity,
	ErrCodeSessionBusy:  http.StatusConflict,

	ErrCodeUpstreamUnavailable: http.StatusServiceUnavailable,
	ErrCodeUpstreamRejected:    http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"INVALID_CREDENTIALS": ErrCodeUnauthorized,
	"INVALID_TICKET":      ErrCodeUnauthorized,

	"SESSION_BUSY": ErrCodeSessionBusy,

	"PROTOCOL_VIOLATION":  ErrCodeInvalidState,
	"NO_OUTSTANDING_ITEM": ErrCodeInvalidState,
	"SEQUENCE_MISMATCH":   ErrCodeInvalidState,
	"SESSION_FINISHED":    ErrCodeInvalidState,

	"INVALID_ENTITY_TYPE":         ErrCodeValidation,
	"UNPARSABLE_VALUE":            ErrCodeValidation,
	"TABLE_INVALID_RULE":          ErrCodeValidation,
	"TABLE_UNKNOWN_ENTITY":        ErrCodeValidation,
	"MAPPING_INVALID_ENTITY":      ErrCodeValidation,
	"MAPPING_INVALID_SOURCE":      ErrCodeValidation,
	"MAPPING_INVALID_DESTINATION": ErrCodeValidation,

	"CHECKPOINT_NOT_FOUND": ErrCodeNotFound,
	"MAPPING_NOT_FOUND":    ErrCodeNotFound,
	"ERP_RECORD_NOT_FOUND": ErrCodeNotFound,

	"CHECKPOINT_REGRESSION": ErrCodeConflict,

	"ERP_UNAVAILABLE": ErrCodeUpstreamUnavailable,
	"ERP_AUTH_FAILED": ErrCodeUpstreamUnavailable,
	"ERP_REJECTED":    ErrCodeUpstreamRejected,
}

// NormalizeErrorCode converts a domain error code to the API format
// If the code is already in the API format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
