package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeMessagingError     ErrorCode = "COMMON_015"
	ErrCodeStorageError       ErrorCode = "COMMON_016"
)

// Similarity engine error codes
const (
	ErrCodeEmbeddingUnavailable ErrorCode = "ENG_001"
	ErrCodeSearchUnavailable    ErrorCode = "ENG_002"
	ErrCodeDocumentInvalid      ErrorCode = "ENG_003"
	ErrCodeMarketTableInvalid   ErrorCode = "ENG_004"
)

// Analysis job error codes
const (
	ErrCodeJobNotFound          ErrorCode = "JOB_001"
	ErrCodeJobInvalidTransition ErrorCode = "JOB_002"
	ErrCodeJobQueueFull         ErrorCode = "JOB_003"
)

// Alert error codes
const (
	ErrCodeAlertNotFound        ErrorCode = "ALT_001"
	ErrCodeNotificationNotFound ErrorCode = "ALT_002"
	ErrCodeConcurrencyConflict  ErrorCode = "ALT_003"
)

// Short aliases used across layers.
const (
	CodeOK       = ErrorCode("OK")
	CodeUnknown  = ErrorCode("")
	CodeInternal = ErrCodeInternal
	CodeNotFound = ErrCodeNotFound
	CodeConflict = ErrCodeConflict
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeMessagingError:     http.StatusInternalServerError,
	ErrCodeStorageError:       http.StatusInternalServerError,

	ErrCodeEmbeddingUnavailable: http.StatusServiceUnavailable,
	ErrCodeSearchUnavailable:    http.StatusServiceUnavailable,
	ErrCodeDocumentInvalid:      http.StatusBadGateway,
	ErrCodeMarketTableInvalid:   http.StatusInternalServerError,

	ErrCodeJobNotFound:          http.StatusNotFound,
	ErrCodeJobInvalidTransition: http.StatusConflict,
	ErrCodeJobQueueFull:         http.StatusServiceUnavailable,

	ErrCodeAlertNotFound:        http.StatusNotFound,
	ErrCodeNotificationNotFound: http.StatusNotFound,
	ErrCodeConcurrencyConflict:  http.StatusConflict,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeMessagingError:     "messaging error",
	ErrCodeStorageError:       "object storage error",

	ErrCodeEmbeddingUnavailable: "embedding provider unavailable",
	ErrCodeSearchUnavailable:    "document search unavailable",
	ErrCodeDocumentInvalid:      "upstream document record invalid",
	ErrCodeMarketTableInvalid:   "market domain table invalid",

	ErrCodeJobNotFound:          "analysis job not found",
	ErrCodeJobInvalidTransition: "invalid analysis job transition",
	ErrCodeJobQueueFull:         "analysis queue full",

	ErrCodeAlertNotFound:        "alert not found",
	ErrCodeNotificationNotFound: "notification not found",
	ErrCodeConcurrencyConflict:  "concurrent alert evaluation",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
