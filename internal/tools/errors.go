package tools

import (
	"errors"
	"fmt"
)

// Dispatcher error codes.
const (
	CodeInvalidArgumentsType = "INVALID_TOOL_ARGUMENTS_TYPE"
	CodeToolNotFound         = "TOOL_NOT_FOUND"
	CodeToolNotAllowed       = "TOOL_NOT_ALLOWED"
	CodeInternal             = "INTERNAL"
)

// Collaborator error codes.
const (
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeNotFound           = "NOT_FOUND"
	CodeNotDirectory       = "NOT_DIRECTORY"
	CodeNotFile            = "NOT_FILE"
	CodeBinaryNotSupported = "BINARY_NOT_SUPPORTED"
	CodeSizeLimitExceeded  = "SIZE_LIMIT_EXCEEDED"
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeApplyFailed        = "APPLY_FAILED"
	CodeCommandNotFound    = "COMMAND_NOT_FOUND"
	CodeNotGitRepository   = "NOT_GIT_REPOSITORY"
)

// InvokeError is raised by the Dispatcher. Its message is "<CODE>: <message>".
type InvokeError struct {
	Code     string
	ToolName string
	Message  string
	Err      error // underlying cause, if any
}

func (e *InvokeError) Error() string {
	return e.Code + ": " + e.Message
}

func (e *InvokeError) Unwrap() error { return e.Err }

// CodedError is a domain failure reported by a tool handler.
type CodedError struct {
	Code    string
	Message string
	Err     error
}

// NewError creates a CodedError with a formatted message.
func NewError(code, format string, args ...any) *CodedError {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *CodedError) Error() string {
	return e.Code + ": " + e.Message
}

func (e *CodedError) Unwrap() error { return e.Err }

// AsCoded returns err unchanged when it already carries a code, otherwise
// wraps it as INTERNAL. Nil stays nil.
func AsCoded(err error) error {
	if err == nil {
		return nil
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return err
	}
	return &CodedError{Code: CodeInternal, Message: err.Error(), Err: err}
}

// ErrorCode extracts the code of a CodedError or InvokeError, or "".
func ErrorCode(err error) string {
	var inv *InvokeError
	if errors.As(err, &inv) {
		return inv.Code
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}
