package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeStoreUnavailable  Code = "STORE_UNAVAILABLE"
	CodeStoreMalformed    Code = "STORE_MALFORMED"
	CodePublishConnection Code = "PUBLISH_CONNECTION_FAILED"
	CodePublishTimeout    Code = "PUBLISH_TIMEOUT"
	CodeSchedulingAnomaly Code = "SCHEDULING_ANOMALY"
	CodeInternal          Code = "INTERNAL_ERROR"
)

type Metadata struct {
	Retryable     bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeStoreUnavailable: {
		Retryable:     true,
		PublicMessage: "event store unavailable",
	},
	CodeStoreMalformed: {
		Retryable:     false,
		PublicMessage: "event is missing required fields",
	},
	CodePublishConnection: {
		Retryable:     true,
		PublicMessage: "event bus connection failed",
	},
	CodePublishTimeout: {
		Retryable:     true,
		PublicMessage: "event bus acknowledgment timed out",
	},
	CodeSchedulingAnomaly: {
		Retryable:     false,
		PublicMessage: "scheduling anomaly detected",
	},
	CodeInternal: {
		Retryable:     true,
		PublicMessage: "internal error",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts a domain *Error from an arbitrary error chain, or nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether err carries the given domain code.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// IsRetryable reports whether the error's code is marked retryable. Unknown
// errors are treated as retryable internal failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	typed := As(err)
	if typed == nil {
		return MetadataFor(CodeInternal).Retryable
	}
	return MetadataFor(typed.Code()).Retryable
}
