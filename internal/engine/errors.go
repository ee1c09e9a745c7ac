// internal/engine/errors.go
package engine

import (
	"errors"
	"fmt"
)

// Pipeline stage errors
var (
	ErrNoMatchingRule  = errors.New("no enabled rule matches URL")
	ErrFetchFailed     = errors.New("document fetch failed")
	ErrScriptFailed    = errors.New("rule script failed")
	ErrAssetFailed     = errors.New("asset materialization failed")
	ErrSchemaSync      = errors.New("tag schema sync failed")
	ErrBrowserNotFound = errors.New("chrome browser not found")
	ErrInvalidURL      = errors.New("invalid URL")
	ErrTimeout         = errors.New("request timeout")
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	ErrCodeNoRule       ErrorCode = "NO_RULE"
	ErrCodeFetch        ErrorCode = "FETCH_ERROR"
	ErrCodeScript       ErrorCode = "SCRIPT_ERROR"
	ErrCodeAsset        ErrorCode = "ASSET_ERROR"
	ErrCodeSchemaSync   ErrorCode = "SCHEMA_SYNC"
	ErrCodeValidation   ErrorCode = "VALIDATION"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"
	ErrCodeBrowserCrash ErrorCode = "BROWSER_CRASH"
)

// sentinels maps codes onto the sentinel each EngineError also matches
var sentinels = map[ErrorCode]error{
	ErrCodeNoRule:     ErrNoMatchingRule,
	ErrCodeFetch:      ErrFetchFailed,
	ErrCodeScript:     ErrScriptFailed,
	ErrCodeAsset:      ErrAssetFailed,
	ErrCodeSchemaSync: ErrSchemaSync,
	ErrCodeValidation: ErrInvalidURL,
	ErrCodeTimeout:    ErrTimeout,
}

// EngineError wraps errors with additional context
type EngineError struct {
	Code       ErrorCode
	Message    string
	Underlying error
	Retry      bool
	Details    map[string]interface{}
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// Is matches another EngineError by code, the sentinel for this code,
// or anything in the underlying chain
func (e *EngineError) Is(target error) bool {
	if t, ok := target.(*EngineError); ok {
		return e.Code == t.Code
	}
	if s, ok := sentinels[e.Code]; ok && s == target {
		return true
	}
	return errors.Is(e.Underlying, target)
}

// NewEngineError creates a new EngineError
func NewEngineError(code ErrorCode, message string, err error) *EngineError {
	return &EngineError{
		Code:       code,
		Message:    message,
		Underlying: err,
		Retry:      false,
		Details:    make(map[string]interface{}),
	}
}

// WithRetry marks the error as retryable
func (e *EngineError) WithRetry() *EngineError {
	e.Retry = true
	return e
}

// WithDetail adds a detail to the error
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	e.Details[key] = value
	return e
}

// CodeOf returns the code of the first EngineError in err's chain, or ""
func CodeOf(err error) ErrorCode {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}
