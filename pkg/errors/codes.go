package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string identifier of a specific failure condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Common error codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeStorageError       ErrorCode = "COMMON_017"
	ErrCodeMessagingError     ErrorCode = "COMMON_018"
)

// Dataset error codes
const (
	ErrCodeDatasetNotFound  ErrorCode = "DATA_001"
	ErrCodeDatasetMalformed ErrorCode = "DATA_002"
	ErrCodeIDOutOfRange     ErrorCode = "DATA_003"
	ErrCodeUnknownName      ErrorCode = "DATA_004"
)

// Model error codes
const (
	ErrCodeCheckpointNotFound  ErrorCode = "MODEL_001"
	ErrCodeCheckpointMalformed ErrorCode = "MODEL_002"
	ErrCodeDimensionMismatch   ErrorCode = "MODEL_003"
	ErrCodeModelUnavailable    ErrorCode = "MODEL_004"
)

// Evaluation error codes
const (
	ErrCodeInvalidMarginRange ErrorCode = "EVAL_001"
	ErrCodeNoExamples         ErrorCode = "EVAL_002"
	ErrCodeReportWriteFailed  ErrorCode = "EVAL_003"
	ErrCodeRunNotFound        ErrorCode = "EVAL_004"
)

// ErrorCodeHTTPStatus maps codes surfaced by the HTTP API to status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeRunNotFound:        http.StatusNotFound,
	ErrCodeInvalidMarginRange: http.StatusBadRequest,
}

// HTTPStatusForCode returns the HTTP status for code, 500 when unmapped.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ModuleForCode returns the lowercase module prefix of code ("data", "model",
// "eval", "common"), or "unknown".
func ModuleForCode(code ErrorCode) string {
	s := string(code)
	i := strings.IndexByte(s, '_')
	if i <= 0 {
		return "unknown"
	}
	return strings.ToLower(s[:i])
}
