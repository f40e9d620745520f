package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Decode errors

	ErrMissingDefault     = errors.New("missing default value")
	ErrUnsupportedVariant = errors.New("unsupported variant")
	ErrVersionTooNew      = errors.New("data version too new")

	// Encode errors

	ErrVariantNotYetSupported = errors.New("variant not supported at target version")

	// Shared errors

	ErrIO                 = errors.New("byte codec failure")
	ErrUnsupportedVersion = errors.New("version outside supported range")
	ErrUnsupportedType    = errors.New("unsupported type")
	ErrInvalidValue       = errors.New("invalid value")
	ErrDefaultType        = errors.New("default value has wrong type")

	// Registration errors

	ErrInvalidDescriptor = errors.New("invalid type descriptor")
	ErrInvalidFallback   = errors.New("invalid variant fallback")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrNotRegistered     = errors.New("not registered")
	ErrRegistryFrozen    = errors.New("registry is frozen")
)

// ErrorCode represents a numeric error code for efficient error handling
type ErrorCode int

const (
	ErrorCodeSuccess ErrorCode = 0

	// Decode error codes (1000-1999)

	ErrorCodeMissingDefault     ErrorCode = 1001
	ErrorCodeUnsupportedVariant ErrorCode = 1002
	ErrorCodeVersionTooNew      ErrorCode = 1003

	// Encode error codes (2000-2999)

	ErrorCodeVariantNotYetSupported ErrorCode = 2001

	// Shared error codes (3000-3999)

	ErrorCodeIO                 ErrorCode = 3001
	ErrorCodeUnsupportedVersion ErrorCode = 3002
	ErrorCodeUnsupportedType    ErrorCode = 3003
	ErrorCodeInvalidValue       ErrorCode = 3004
	ErrorCodeDefaultType        ErrorCode = 3005

	// Registration error codes (4000-4999)

	ErrorCodeInvalidDescriptor ErrorCode = 4001
	ErrorCodeInvalidFallback   ErrorCode = 4002
	ErrorCodeAlreadyRegistered ErrorCode = 4003
	ErrorCodeNotRegistered     ErrorCode = 4004
	ErrorCodeRegistryFrozen    ErrorCode = 4005

	ErrorCodeUnknownError ErrorCode = 9999
)

var errorCodeMap = map[error]ErrorCode{
	ErrMissingDefault:         ErrorCodeMissingDefault,
	ErrUnsupportedVariant:     ErrorCodeUnsupportedVariant,
	ErrVersionTooNew:          ErrorCodeVersionTooNew,
	ErrVariantNotYetSupported: ErrorCodeVariantNotYetSupported,
	ErrIO:                     ErrorCodeIO,
	ErrUnsupportedVersion:     ErrorCodeUnsupportedVersion,
	ErrUnsupportedType:        ErrorCodeUnsupportedType,
	ErrInvalidValue:           ErrorCodeInvalidValue,
	ErrDefaultType:            ErrorCodeDefaultType,
	ErrInvalidDescriptor:      ErrorCodeInvalidDescriptor,
	ErrInvalidFallback:        ErrorCodeInvalidFallback,
	ErrAlreadyRegistered:      ErrorCodeAlreadyRegistered,
	ErrNotRegistered:          ErrorCodeNotRegistered,
	ErrRegistryFrozen:         ErrorCodeRegistryFrozen,
}

var codeErrorMap = func() map[ErrorCode]error {
	m := make(map[ErrorCode]error, len(errorCodeMap))
	for err, code := range errorCodeMap {
		m[code] = err
	}
	return m
}()

// Error describes a failed encode, decode or registration together with
// the type and field path it happened at.
type Error struct {
	Code    ErrorCode
	Message string
	// Type is the name of the innermost type being processed.
	Type string
	// Path is the dotted field path from the value passed by the caller.
	Path    string
	Cause   error
	Context map[string]any
}

// NewError creates an error whose code is derived from sentinel.
func NewError(sentinel error, typeName, message string) *Error {
	return &Error{
		Code:    GetErrorCode(sentinel),
		Message: message,
		Type:    typeName,
	}
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Type != "" {
		sb.WriteString(e.Type)
	}
	if e.Path != "" {
		if sb.Len() > 0 {
			sb.WriteString(" at ")
		}
		sb.WriteString(e.Path)
	}
	if sb.Len() > 0 {
		sb.WriteString(": ")
	}
	parts := make([]string, 0, 2)
	if s, ok := codeErrorMap[e.Code]; ok {
		parts = append(parts, s.Error())
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	sb.WriteString(strings.Join(parts, ": "))
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap exposes both the sentinel for e.Code and the cause, so errors.Is
// matches either.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := codeErrorMap[e.Code]; ok {
		errs = append(errs, s)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithCause sets the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithPath sets the field path.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// IsVersionMismatch reports whether the error comes from a version
// incompatibility rather than from the byte codec. Such errors are logic
// errors and retrying cannot help.
func (e *Error) IsVersionMismatch() bool {
	switch e.Code {
	case ErrorCodeMissingDefault,
		ErrorCodeUnsupportedVariant,
		ErrorCodeVersionTooNew,
		ErrorCodeVariantNotYetSupported,
		ErrorCodeUnsupportedVersion:
		return true
	default:
		return false
	}
}

// GetErrorCode returns the error code for a given error
func GetErrorCode(err error) ErrorCode {
	if code, exists := errorCodeMap[err]; exists {
		return code
	}

	var schemaErr *Error
	if errors.As(err, &schemaErr) {
		return schemaErr.Code
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return ErrorCodeUnknownError
}

// WrapError wraps a standard error into an *Error. Errors that are already
// an *Error are returned unchanged.
func WrapError(err error, typeName, message string) *Error {
	var schemaErr *Error
	if errors.As(err, &schemaErr) {
		return schemaErr
	}
	code := GetErrorCode(err)
	if code == ErrorCodeUnknownError {
		code = ErrorCodeIO
	}
	return &Error{Code: code, Message: message, Type: typeName, Cause: err}
}

// AtPath attaches a path segment to err. A plain error (typically from the
// byte codec) becomes an ErrIO *Error for typeName at seg; an *Error gets
// seg prepended to its path.
func AtPath(err error, typeName, seg string) error {
	if err == nil {
		return nil
	}
	var schemaErr *Error
	if !errors.As(err, &schemaErr) {
		return &Error{Code: ErrorCodeIO, Type: typeName, Path: seg, Cause: err}
	}
	switch {
	case seg == "":
	case schemaErr.Path == "":
		schemaErr.Path = seg
	case strings.HasPrefix(schemaErr.Path, "["):
		schemaErr.Path = seg + schemaErr.Path
	default:
		schemaErr.Path = seg + "." + schemaErr.Path
	}
	return schemaErr
}

func errorf(sentinel error, typeName, format string, args ...any) *Error {
	return NewError(sentinel, typeName, fmt.Sprintf(format, args...))
}
