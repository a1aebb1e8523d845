package sigbridge

import (
	"errors"
	"fmt"

	"github.com/AnatoleLucet/sigbridge/internal"
)

type ErrorCode string

const (
	ErrCodeDuplicateKey       ErrorCode = "DUPLICATE_KEY"
	ErrCodeReservedKey        ErrorCode = "RESERVED_KEY"
	ErrCodeMissingFunction    ErrorCode = "MISSING_FUNCTION"
	ErrCodeMissingName        ErrorCode = "MISSING_NAME"
	ErrCodeScopeActive        ErrorCode = "SCOPE_ACTIVE"
	ErrCodeUnsupportedHost    ErrorCode = "UNSUPPORTED_HOST"
	ErrCodeNoSubscribe        ErrorCode = "NO_SUBSCRIBE"
	ErrCodeInvalidDeclaration ErrorCode = "INVALID_DECLARATION"
)

// ConfigError reports a misuse detected when declaring or driving a scope.
type ConfigError struct {
	Code    ErrorCode
	Key     string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Key != "" {
		msg = fmt.Sprintf("%s (key=%s)", msg, e.Key)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func newConfigError(code ErrorCode, key, format string, args ...any) *ConfigError {
	return &ConfigError{Code: code, Key: key, Message: fmt.Sprintf(format, args...)}
}

func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

func IsDuplicateKey(err error) bool {
	return hasCode(err, ErrCodeDuplicateKey)
}

func IsScopeActive(err error) bool {
	return hasCode(err, ErrCodeScopeActive)
}

func hasCode(err error, code ErrorCode) bool {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.Code == code
	}
	return false
}

// PanicError wraps a value recovered from a panicking callback.
type PanicError = internal.PanicError
